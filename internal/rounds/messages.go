package rounds

import (
	"fmt"
	"strings"
	"time"
)

// Message templates posted to the chat platform.
const (
	MatchIntro       = "You've been matched for a donut! Schedule a time to meet :)"
	ReminderFallback = "Reminder: Did you have your coffee chat this week?"
	ReminderQuestion = "Were you able to meet this week?"
	ResponseYes      = "Awesome to hear! Hope you had fun :)"
	ResponseNo       = "Aw, always a next time!"
)

// SummaryText renders the round summary posted to the pairing channel.
func SummaryText(roundDate time.Time, c Counts) string {
	return strings.Join([]string{
		"This week's donut dates:",
		fmt.Sprintf("_Round %s_", roundDate.Format("2006-01-02")),
		"",
		fmt.Sprintf("%d out of %d met. Let's get that to 100%% this week!", c.Met, c.Total),
	}, "\n")
}
