package rounds

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/donut/internal/models"
)

func TestSendRemindersPendingOnly(t *testing.T) {
	h := newHarness()
	old := h.store.addRound(monday.Add(-7 * 24 * time.Hour))
	h.store.addMatch(old, "G-old", models.MetStatusPending, "U1", "U2")

	r := h.store.addRound(monday)
	pending := h.store.addMatch(r, "G-1", models.MetStatusPending, "U1", "U3")
	h.store.addMatch(r, "G-2", models.MetStatusYes, "U2", "U4")
	h.store.addMatch(r, "", models.MetStatusPending, "U5", "U6")

	out := h.svc.SendReminders(context.Background())
	if out.Status != StatusCompleted {
		t.Fatalf("expected completed, got %+v", out)
	}
	if out.PendingCount != 1 || out.Sent != 1 {
		t.Fatalf("expected 1 pending and 1 sent, got %+v", out)
	}
	if *out.RoundID != r.ID {
		t.Fatal("expected latest round")
	}
	p := h.gw.posts[0]
	if p.conv != "G-1" || p.text != ReminderFallback {
		t.Fatalf("unexpected reminder %+v", p)
	}
	if p.prompt == nil || p.prompt.MatchID != pending.ID || p.prompt.Text != ReminderQuestion {
		t.Fatalf("expected prompt for pending match, got %+v", p.prompt)
	}
}

func TestSendRemindersNoRounds(t *testing.T) {
	h := newHarness()
	out := h.svc.SendReminders(context.Background())
	if out.Status != StatusSkipped || out.Reason != ReasonNoRounds {
		t.Fatalf("expected no_rounds skip, got %+v", out)
	}
}

func TestSendRemindersCountsFailures(t *testing.T) {
	h := newHarness()
	r := h.store.addRound(monday)
	h.store.addMatch(r, "G-1", models.MetStatusPending, "U1", "U2")
	h.gw.postErr = errBoom

	out := h.svc.SendReminders(context.Background())
	if out.Status != StatusCompleted || out.PendingCount != 1 || out.Sent != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestRecordOutcome(t *testing.T) {
	h := newHarness()
	r := h.store.addRound(monday)
	m := h.store.addMatch(r, "G-1", models.MetStatusPending, "U1", "U2")
	ctx := context.Background()

	res := h.svc.RecordOutcome(ctx, OutcomeEvent{MatchID: m.ID, Met: true, ResponseURL: "https://hooks.example/1"})
	if res.Status != StatusRecorded || res.MetStatus != "yes" || !res.Acknowledged {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.gw.responses[0] != "https://hooks.example/1|"+ResponseYes {
		t.Fatalf("unexpected response %q", h.gw.responses[0])
	}

	// Repeating the same answer leaves the state unchanged.
	h.svc.RecordOutcome(ctx, OutcomeEvent{MatchID: m.ID, Met: true})
	if m.MetStatus != models.MetStatusYes {
		t.Fatalf("expected yes, got %s", m.MetStatus)
	}

	// The latest answer wins.
	res = h.svc.RecordOutcome(ctx, OutcomeEvent{MatchID: m.ID, Met: false, ResponseURL: "https://hooks.example/2"})
	if res.MetStatus != "no" || m.MetStatus != models.MetStatusNo {
		t.Fatalf("expected no, got %+v / %s", res, m.MetStatus)
	}
	if !strings.HasSuffix(h.gw.responses[1], ResponseNo) {
		t.Fatalf("unexpected response %q", h.gw.responses[1])
	}
}

func TestRecordOutcomeUnknownMatch(t *testing.T) {
	h := newHarness()
	res := h.svc.RecordOutcome(context.Background(), OutcomeEvent{MatchID: uuid.New(), Met: true, ResponseURL: "https://hooks.example/1"})
	if res.Status != StatusNotFound {
		t.Fatalf("expected not_found, got %+v", res)
	}
	if len(h.gw.responses) != 0 {
		t.Fatal("unknown match must not be acknowledged")
	}
}

func TestRecordOutcomeAckFailureStillRecords(t *testing.T) {
	h := newHarness()
	r := h.store.addRound(monday)
	m := h.store.addMatch(r, "G-1", models.MetStatusPending, "U1", "U2")
	h.gw.respErr = errBoom

	res := h.svc.RecordOutcome(context.Background(), OutcomeEvent{MatchID: m.ID, Met: true, ResponseURL: "https://hooks.example/1"})
	if res.Status != StatusRecorded || res.Acknowledged {
		t.Fatalf("expected recorded without ack, got %+v", res)
	}
	if m.MetStatus != models.MetStatusYes {
		t.Fatalf("expected yes, got %s", m.MetStatus)
	}
}

func TestTally(t *testing.T) {
	matches := []models.Match{
		{MetStatus: models.MetStatusYes},
		{MetStatus: models.MetStatusYes},
		{MetStatus: models.MetStatusNo},
		{MetStatus: models.MetStatusPending},
	}
	got := Tally(matches)
	want := Counts{Met: 2, NotMet: 1, Pending: 1, Total: 4}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if Tally(nil) != (Counts{}) {
		t.Fatal("expected zero counts for no matches")
	}
}

func TestPostSummary(t *testing.T) {
	h := newHarness()
	r := h.store.addRound(monday)
	h.store.addMatch(r, "G-1", models.MetStatusYes, "U1", "U2")
	h.store.addMatch(r, "G-2", models.MetStatusNo, "U3", "U4")

	out := h.svc.PostSummary(context.Background())
	if out.Status != StatusCompleted {
		t.Fatalf("expected completed, got %+v", out)
	}
	if out.Counts.Met != 1 || out.Counts.Total != 2 {
		t.Fatalf("unexpected counts %+v", out.Counts)
	}
	p := h.gw.posts[0]
	if p.conv != "C123" {
		t.Fatalf("expected post to round channel, got %s", p.conv)
	}
	if !strings.Contains(p.text, "1 out of 2 met") || !strings.Contains(p.text, "2026-03-02") {
		t.Fatalf("unexpected summary text %q", p.text)
	}
}

func TestPostSummaryRequiresChannel(t *testing.T) {
	h := newHarness()
	h.store.addRound(monday)
	delete(h.store.config, models.ConfigRoundChannelID)

	out := h.svc.PostSummary(context.Background())
	if out.Status != StatusMisconfigured {
		t.Fatalf("expected misconfigured, got %+v", out)
	}
}

func TestPostSummaryNoRounds(t *testing.T) {
	h := newHarness()
	out := h.svc.PostSummary(context.Background())
	if out.Status != StatusSkipped || out.Reason != ReasonNoRounds {
		t.Fatalf("expected no_rounds skip, got %+v", out)
	}
	if len(h.gw.posts) != 0 {
		t.Fatal("nothing should be posted")
	}
}

func TestPostSummaryGatewayFailure(t *testing.T) {
	h := newHarness()
	h.store.addRound(monday)
	h.gw.postErr = errBoom

	out := h.svc.PostSummary(context.Background())
	if out.Status != StatusFailed || out.Reason != ReasonGatewayFailure {
		t.Fatalf("expected gateway failure, got %+v", out)
	}
	if out.Counts == nil || out.Counts.Total != 0 {
		t.Fatalf("expected counts to be reported, got %+v", out.Counts)
	}
}

func TestRoundSummaryDoesNotPost(t *testing.T) {
	h := newHarness()
	r := h.store.addRound(monday)
	h.store.addMatch(r, "G-1", models.MetStatusPending, "U1", "U2")

	out := h.svc.RoundSummary(context.Background())
	if out.Status != StatusCompleted || out.Counts.Pending != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(h.gw.posts) != 0 {
		t.Fatal("RoundSummary must not post")
	}
}

func TestSummaryText(t *testing.T) {
	got := SummaryText(monday, Counts{Met: 3, Total: 4})
	want := "This week's donut dates:\n_Round 2026-03-02_\n\n3 out of 4 met. Let's get that to 100% this week!"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
