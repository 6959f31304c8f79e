package rounds

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/eldtechnologies/donut/internal/metrics"
	"github.com/eldtechnologies/donut/internal/models"
	"github.com/eldtechnologies/donut/internal/store"
)

// OutcomeEvent is a participant's answer to a did-you-meet prompt.
type OutcomeEvent struct {
	MatchID uuid.UUID
	Met     bool
	// ResponseURL replaces the prompt message when set.
	ResponseURL string
}

// RecordOutcome sets the match status from an answer. The latest answer
// wins; repeating one is a no-op on the stored state.
func (s *Service) RecordOutcome(ctx context.Context, ev OutcomeEvent) OutcomeResult {
	status := models.MetStatusNo
	reply := ResponseNo
	if ev.Met {
		status = models.MetStatusYes
		reply = ResponseYes
	}
	log := s.logger.With().Str("match_id", ev.MatchID.String()).Logger()

	cctx, cancel := s.call(ctx)
	err := s.store.SetMatchStatus(cctx, ev.MatchID, status)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().Msg("outcome for unknown match")
		return OutcomeResult{Status: StatusNotFound, MatchID: ev.MatchID}
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to record outcome")
		return OutcomeResult{Status: StatusFailed, Reason: ReasonStoreFailure, Error: err.Error(), MatchID: ev.MatchID}
	}
	metrics.OutcomesRecorded.WithLabelValues(string(status)).Inc()

	res := OutcomeResult{Status: StatusRecorded, MatchID: ev.MatchID, MetStatus: string(status)}
	if ev.ResponseURL == "" {
		return res
	}

	cctx, cancel = s.call(ctx)
	err = s.gateway.Respond(cctx, ev.ResponseURL, reply)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("failed to acknowledge outcome")
		return res
	}
	res.Acknowledged = true
	return res
}
