package rounds

import (
	"context"

	"github.com/eldtechnologies/donut/internal/models"
)

// Tally counts match statuses. Unknown statuses count toward Total only.
func Tally(matches []models.Match) Counts {
	c := Counts{Total: len(matches)}
	for _, m := range matches {
		switch m.MetStatus {
		case models.MetStatusYes:
			c.Met++
		case models.MetStatusNo:
			c.NotMet++
		case models.MetStatusPending:
			c.Pending++
		}
	}
	return c
}

// RoundSummary tallies the most recent round without posting anything.
func (s *Service) RoundSummary(ctx context.Context) SummaryOutcome {
	out, _ := s.latestSummary(ctx)
	return out
}

// PostSummary tallies the most recent round and posts the result to the
// pairing channel.
func (s *Service) PostSummary(ctx context.Context) SummaryOutcome {
	channelID, err := s.channelID(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read round channel")
		return SummaryOutcome{Status: StatusFailed, Reason: ReasonStoreFailure, Message: "failed to read round channel", Error: err.Error()}
	}
	if channelID == "" {
		return SummaryOutcome{Status: StatusMisconfigured, Reason: ReasonChannelNotConfigured, Message: "round_channel_id not configured"}
	}

	out, round := s.latestSummary(ctx)
	if round == nil {
		return out
	}

	cctx, cancel := s.call(ctx)
	err = s.gateway.PostMessage(cctx, channelID, SummaryText(round.RoundDate, *out.Counts), nil)
	cancel()
	if err != nil {
		s.logger.Error().Err(err).Str("round_id", round.ID.String()).Msg("failed to post summary")
		out.Status = StatusFailed
		out.Reason = ReasonGatewayFailure
		out.Message = "failed to post summary"
		out.Error = err.Error()
		return out
	}

	out.Message = "summary posted"
	return out
}

// latestSummary returns the tally for the most recent round. The round is
// nil unless the outcome is completed.
func (s *Service) latestSummary(ctx context.Context) (SummaryOutcome, *models.Round) {
	cctx, cancel := s.call(ctx)
	round, err := s.store.GetMostRecentRound(cctx)
	cancel()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read latest round")
		return SummaryOutcome{Status: StatusFailed, Reason: ReasonStoreFailure, Message: "failed to read latest round", Error: err.Error()}, nil
	}
	if round == nil {
		return SummaryOutcome{Status: StatusSkipped, Reason: ReasonNoRounds, Message: "no rounds found"}, nil
	}

	id, date := round.ID, round.RoundDate
	cctx, cancel = s.call(ctx)
	matches, err := s.store.GetMatchesForRound(cctx, id)
	cancel()
	if err != nil {
		s.logger.Error().Err(err).Str("round_id", id.String()).Msg("failed to read matches")
		return SummaryOutcome{Status: StatusFailed, Reason: ReasonStoreFailure, Message: "failed to read matches", Error: err.Error(), RoundID: &id, RoundDate: &date}, nil
	}

	counts := Tally(matches)
	return SummaryOutcome{
		Status:    StatusCompleted,
		Message:   "round summary",
		RoundID:   &id,
		RoundDate: &date,
		Counts:    &counts,
	}, round
}
