package rounds

import (
	"context"

	"github.com/eldtechnologies/donut/internal/metrics"
	"github.com/eldtechnologies/donut/internal/models"
)

// SendReminders posts a did-you-meet prompt to every pending match of the
// most recent round that has a conversation. Failed sends are logged and
// counted out of Sent.
func (s *Service) SendReminders(ctx context.Context) ReminderOutcome {
	cctx, cancel := s.call(ctx)
	round, err := s.store.GetMostRecentRound(cctx)
	cancel()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read latest round")
		return ReminderOutcome{Status: StatusFailed, Reason: ReasonStoreFailure, Message: "failed to read latest round", Error: err.Error()}
	}
	if round == nil {
		return ReminderOutcome{Status: StatusSkipped, Reason: ReasonNoRounds, Message: "no rounds found"}
	}

	id := round.ID
	log := s.logger.With().Str("round_id", id.String()).Logger()

	cctx, cancel = s.call(ctx)
	matches, err := s.store.GetMatchesForRound(cctx, id)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("failed to read matches")
		return ReminderOutcome{Status: StatusFailed, Reason: ReasonStoreFailure, Message: "failed to read matches", Error: err.Error(), RoundID: &id}
	}

	var pending []models.Match
	for _, m := range matches {
		if m.MetStatus == models.MetStatusPending && m.ConversationID != "" {
			pending = append(pending, m)
		}
	}

	sent := 0
	for _, m := range pending {
		cctx, cancel := s.call(ctx)
		err := s.gateway.PostMessage(cctx, m.ConversationID, ReminderFallback, &Prompt{MatchID: m.ID, Text: ReminderQuestion})
		cancel()
		if err != nil {
			log.Error().Err(err).Str("match_id", m.ID.String()).Msg("failed to send reminder")
			continue
		}
		metrics.RemindersSent.Inc()
		sent++
	}

	log.Info().Int("pending", len(pending)).Int("sent", sent).Msg("reminders sent")
	return ReminderOutcome{
		Status:       StatusCompleted,
		Message:      "reminders sent",
		RoundID:      &id,
		PendingCount: len(pending),
		Sent:         sent,
	}
}
