package slack

import (
	"github.com/slack-go/slack"

	"github.com/eldtechnologies/donut/internal/rounds"
)

// Identifiers carried by the did-you-meet prompt.
const (
	PromptBlockID = "did_you_meet_block"
	ActionMetYes  = "did_you_meet_yes"
	ActionMetNo   = "did_you_meet_no"
)

// PromptBlocks renders the question and its Yes/No buttons. Both buttons
// carry the match ID as their value.
func PromptBlocks(p *rounds.Prompt) []slack.Block {
	question := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, p.Text, false, false),
		nil, nil,
	)

	id := p.MatchID.String()
	yes := slack.NewButtonBlockElement(ActionMetYes, id,
		slack.NewTextBlockObject(slack.PlainTextType, "Yes", false, false)).
		WithStyle(slack.StylePrimary)
	no := slack.NewButtonBlockElement(ActionMetNo, id,
		slack.NewTextBlockObject(slack.PlainTextType, "No", false, false))

	return []slack.Block{question, slack.NewActionBlock(PromptBlockID, yes, no)}
}
