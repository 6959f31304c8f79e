package rounds

import (
	"time"

	"github.com/google/uuid"
)

// Status is the machine-readable result of an invocation.
type Status string

const (
	StatusCreated                  Status = "created"
	StatusSkipped                  Status = "skipped"
	StatusMisconfigured            Status = "misconfigured"
	StatusInsufficientParticipants Status = "insufficient_participants"
	StatusCompleted                Status = "completed"
	StatusRecorded                 Status = "recorded"
	StatusNotFound                 Status = "not_found"
	StatusFailed                   Status = "failed"
)

// Reasons qualify skipped, misconfigured and failed outcomes.
const (
	ReasonNotDue               = "not_due"
	ReasonConflict             = "conflict"
	ReasonNoRounds             = "no_rounds"
	ReasonChannelNotConfigured = "round_channel_not_configured"
	ReasonStoreFailure         = "store_failure"
	ReasonGatewayFailure       = "gateway_failure"
	ReasonInvalidPairing       = "invalid_pairing"
)

// Gate reports the interval check that led to a skip.
type Gate struct {
	DaysSinceLast int `json:"days_since_last"`
	IntervalDays  int `json:"interval_days"`
}

// SkippedMember is a channel member excluded from the pool.
type SkippedMember struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Roster summarizes participant resolution.
type Roster struct {
	ChannelMembers int             `json:"channel_members"`
	Humans         int             `json:"humans"`
	Skipped        []SkippedMember `json:"skipped"`
}

// GroupCounts tracks how far each group of a new round got.
type GroupCounts struct {
	Count     int      `json:"groups_count"`
	Created   int      `json:"groups_created"`
	Announced int      `json:"groups_announced"`
	Unplaced  []string `json:"unplaced"`
}

// RoundOutcome is the result of TryStartRound.
type RoundOutcome struct {
	Status  Status       `json:"status"`
	Reason  string       `json:"reason,omitempty"`
	Message string       `json:"message"`
	Error   string       `json:"error,omitempty"`
	RoundID *uuid.UUID   `json:"round_id,omitempty"`
	Gate    *Gate        `json:"gate,omitempty"`
	Roster  *Roster      `json:"roster,omitempty"`
	Groups  *GroupCounts `json:"groups,omitempty"`
}

// ReminderOutcome is the result of SendReminders.
type ReminderOutcome struct {
	Status       Status     `json:"status"`
	Reason       string     `json:"reason,omitempty"`
	Message      string     `json:"message"`
	Error        string     `json:"error,omitempty"`
	RoundID      *uuid.UUID `json:"round_id,omitempty"`
	PendingCount int        `json:"pending_count"`
	Sent         int        `json:"sent"`
}

// Counts aggregates match statuses for a round.
type Counts struct {
	Met     int `json:"met"`
	NotMet  int `json:"not_met"`
	Pending int `json:"pending"`
	Total   int `json:"total"`
}

// SummaryOutcome is the result of PostSummary and RoundSummary.
type SummaryOutcome struct {
	Status    Status     `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	Message   string     `json:"message"`
	Error     string     `json:"error,omitempty"`
	RoundID   *uuid.UUID `json:"round_id,omitempty"`
	RoundDate *time.Time `json:"round_date,omitempty"`
	Counts    *Counts    `json:"counts,omitempty"`
}

// OutcomeResult is the result of RecordOutcome.
type OutcomeResult struct {
	Status       Status    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	Error        string    `json:"error,omitempty"`
	MatchID      uuid.UUID `json:"match_id"`
	MetStatus    string    `json:"met_status,omitempty"`
	Acknowledged bool      `json:"acknowledged"`
}
