package rounds

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eldtechnologies/donut/internal/metrics"
	"github.com/eldtechnologies/donut/internal/models"
	"github.com/eldtechnologies/donut/internal/pairing"
	"github.com/eldtechnologies/donut/internal/store"
)

// TryStartRound creates and announces a new round if one is due at now.
// Calling it again inside the interval only reads the store.
func (s *Service) TryStartRound(ctx context.Context, now time.Time) RoundOutcome {
	out := s.tryStartRound(ctx, now)
	metrics.RoundAttempts.WithLabelValues(string(out.Status)).Inc()
	return out
}

func (s *Service) tryStartRound(ctx context.Context, now time.Time) RoundOutcome {
	interval, err := s.intervalDays(ctx)
	if err != nil {
		return s.startFailed(ReasonStoreFailure, "failed to read pairing interval", err)
	}

	cctx, cancel := s.call(ctx)
	last, err := s.store.GetMostRecentRound(cctx)
	cancel()
	if err != nil {
		return s.startFailed(ReasonStoreFailure, "failed to read latest round", err)
	}
	if last != nil {
		days := DaysSince(last.RoundDate, now)
		if days < interval-1 {
			return RoundOutcome{
				Status:  StatusSkipped,
				Reason:  ReasonNotDue,
				Message: "not yet time for next round",
				Gate:    &Gate{DaysSinceLast: days, IntervalDays: interval},
			}
		}
	}

	channelID, err := s.channelID(ctx)
	if err != nil {
		return s.startFailed(ReasonStoreFailure, "failed to read round channel", err)
	}
	if channelID == "" {
		return RoundOutcome{
			Status:  StatusMisconfigured,
			Reason:  ReasonChannelNotConfigured,
			Message: "round_channel_id not configured",
		}
	}

	humans, roster, err := s.resolveRoster(ctx, channelID)
	if err != nil {
		return s.startFailed(ReasonGatewayFailure, "failed to list channel members", err)
	}
	if len(humans) < 2 {
		return RoundOutcome{
			Status:  StatusInsufficientParticipants,
			Message: "not enough humans to match",
			Roster:  roster,
		}
	}

	s.syncUsers(ctx, humans)

	ids := make([]string, len(humans))
	for i, m := range humans {
		ids[i] = m.ID
	}

	input, err := s.pairingInput(ctx, ids, now)
	if err != nil {
		return s.startFailed(ReasonStoreFailure, "failed to load pairing history", err)
	}
	result := pairing.Compute(input)
	if err := result.Validate(ids, input.Avoid); err != nil {
		return s.startFailed(ReasonInvalidPairing, "pairing produced an invalid result", err)
	}

	roundDate := models.DateOnly(now)
	if s.locker != nil {
		owner := uuid.NewString()
		cctx, cancel := s.call(ctx)
		ok, err := s.locker.AcquireRoundLock(cctx, roundDate, owner)
		cancel()
		switch {
		case err != nil:
			// The unique round date in the store still serializes creation.
			s.logger.Warn().Err(err).Msg("round lock unavailable")
		case !ok:
			return s.conflict()
		default:
			defer func() {
				cctx, cancel := s.call(context.WithoutCancel(ctx))
				defer cancel()
				if err := s.locker.ReleaseRoundLock(cctx, roundDate, owner); err != nil {
					s.logger.Warn().Err(err).Msg("failed to release round lock")
				}
			}()
		}
	}

	cctx, cancel = s.call(ctx)
	round, err := s.store.CreateRound(cctx, roundDate)
	cancel()
	if errors.Is(err, store.ErrConflict) {
		return s.conflict()
	}
	if err != nil {
		return s.startFailed(ReasonStoreFailure, "failed to create round", err)
	}

	log := s.logger.With().Str("round_id", round.ID.String()).Logger()

	counts := &GroupCounts{Count: len(result.Groups), Unplaced: result.Unplaced}
	if len(result.Unplaced) > 0 {
		metrics.UnplacedUsers.Add(float64(len(result.Unplaced)))
		log.Warn().Strs("unplaced", result.Unplaced).Msg("users left out of round")
	}

	matches := s.persistGroups(ctx, log, round.ID, result.Groups)
	counts.Created = len(matches)
	counts.Announced = s.announce(ctx, log, matches)

	log.Info().
		Int("groups", counts.Count).
		Int("created", counts.Created).
		Int("announced", counts.Announced).
		Msg("round created")

	id := round.ID
	msg := "matches created"
	if counts.Count == 0 {
		msg = "no matches this round"
	}
	return RoundOutcome{
		Status:  StatusCreated,
		Message: msg,
		RoundID: &id,
		Roster:  roster,
		Groups:  counts,
	}
}

func (s *Service) startFailed(reason, msg string, err error) RoundOutcome {
	s.logger.Error().Err(err).Str("reason", reason).Msg(msg)
	return RoundOutcome{Status: StatusFailed, Reason: reason, Message: msg, Error: err.Error()}
}

func (s *Service) conflict() RoundOutcome {
	s.logger.Info().Msg("round already being created")
	return RoundOutcome{
		Status:  StatusSkipped,
		Reason:  ReasonConflict,
		Message: "another invocation is creating this round",
	}
}

// DaysSince returns the whole days elapsed from roundDate to now.
func DaysSince(roundDate, now time.Time) int {
	return int(math.Floor(now.Sub(roundDate).Hours() / 24))
}

// intervalDays reads pairing_interval_days, falling back to the default
// when it is missing or not a positive integer.
func (s *Service) intervalDays(ctx context.Context) (int, error) {
	cctx, cancel := s.call(ctx)
	defer cancel()
	raw, ok, err := s.store.GetConfig(cctx, models.ConfigPairingIntervalDays)
	if err != nil {
		return 0, err
	}
	if !ok {
		return models.DefaultPairingIntervalDays, nil
	}
	return ParseInterval(raw), nil
}

// ParseInterval parses a stored interval value. Invalid values yield the
// default.
func ParseInterval(raw string) int {
	raw = unquote(raw)
	if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f >= 1 && f == math.Trunc(f) && f <= math.MaxInt32 {
		return int(f)
	}
	return models.DefaultPairingIntervalDays
}

func (s *Service) channelID(ctx context.Context) (string, error) {
	cctx, cancel := s.call(ctx)
	defer cancel()
	raw, ok, err := s.store.GetConfig(cctx, models.ConfigRoundChannelID)
	if err != nil || !ok {
		return "", err
	}
	return ParseChannelID(raw), nil
}

// ParseChannelID reads a stored channel id, which may be JSON-quoted.
func ParseChannelID(raw string) string {
	return unquote(raw)
}

// unquote strips surrounding whitespace and JSON string quotes.
func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		v = v[1 : len(v)-1]
	}
	return strings.TrimSpace(v)
}

// resolveRoster lists channel members and keeps the humans.
func (s *Service) resolveRoster(ctx context.Context, channelID string) ([]Member, *Roster, error) {
	cctx, cancel := s.call(ctx)
	memberIDs, err := s.directory.ChannelMembers(cctx, channelID)
	cancel()
	if err != nil {
		return nil, nil, err
	}

	roster := &Roster{ChannelMembers: len(memberIDs), Skipped: []SkippedMember{}}
	var humans []Member
	for _, id := range memberIDs {
		cctx, cancel := s.call(ctx)
		info, err := s.directory.UserInfo(cctx, id)
		cancel()
		switch {
		case err != nil || info == nil:
			if err != nil {
				s.logger.Warn().Err(err).Str("user_id", id).Msg("user lookup failed")
			}
			roster.Skipped = append(roster.Skipped, SkippedMember{ID: id, Reason: "user lookup failed"})
		case info.IsBot:
			roster.Skipped = append(roster.Skipped, SkippedMember{ID: id, Reason: "bot"})
		default:
			humans = append(humans, *info)
		}
	}
	roster.Humans = len(humans)
	return humans, roster, nil
}

// syncUsers marks current humans active and deactivates departed users.
// Failures are logged; pairing proceeds on the resolved roster.
func (s *Service) syncUsers(ctx context.Context, humans []Member) {
	ids := make([]string, 0, len(humans))
	for _, m := range humans {
		ids = append(ids, m.ID)
		cctx, cancel := s.call(ctx)
		if err := s.store.UpsertUser(cctx, m.ID, m.DisplayName); err != nil {
			s.logger.Error().Err(err).Str("user_id", m.ID).Msg("user upsert failed")
		}
		cancel()
	}

	cctx, cancel := s.call(ctx)
	defer cancel()
	n, err := s.store.DeactivateUsersExcept(cctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Msg("user deactivation failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int64("count", n).Msg("deactivated departed users")
	}
}

func (s *Service) pairingInput(ctx context.Context, ids []string, now time.Time) (pairing.Input, error) {
	cctx, cancel := s.call(ctx)
	avoid, err := s.store.GetAvoidList(cctx)
	cancel()
	if err != nil {
		return pairing.Input{}, err
	}

	var since time.Time
	if s.cfg.HistoryWindow > 0 {
		since = now.Add(-s.cfg.HistoryWindow)
	}
	cctx, cancel = s.call(ctx)
	prior, err := s.store.GetPriorPairings(cctx, since)
	cancel()
	if err != nil {
		return pairing.Input{}, err
	}

	return pairing.Input{
		Users:   ids,
		History: pairing.NewHistory(prior),
		Avoid:   pairing.NewAvoidRelation(avoid),
		Seed:    s.seed(),
	}, nil
}

// persistGroups stores every group as a pending match. Groups that fail to
// persist are logged and left out.
func (s *Service) persistGroups(ctx context.Context, log zerolog.Logger, roundID uuid.UUID, groups []pairing.Group) []*models.Match {
	matches := make([]*models.Match, 0, len(groups))
	for _, g := range groups {
		cctx, cancel := s.call(ctx)
		m, err := s.store.CreateMatch(cctx, roundID, g)
		cancel()
		if err != nil {
			metrics.GroupFailures.WithLabelValues("persist").Inc()
			log.Error().Err(err).Strs("participants", g).Msg("failed to insert match")
			continue
		}
		metrics.MatchesCreated.Inc()
		matches = append(matches, m)
	}
	return matches
}

// announce opens a conversation per match and posts the intro, running up
// to AnnounceConcurrency groups at once. It returns how many succeeded.
func (s *Service) announce(ctx context.Context, log zerolog.Logger, matches []*models.Match) int {
	var announced atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.AnnounceConcurrency)

	for _, m := range matches {
		g.Go(func() error {
			if s.announceMatch(ctx, log, m) {
				announced.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(announced.Load())
}

func (s *Service) announceMatch(ctx context.Context, log zerolog.Logger, m *models.Match) bool {
	log = log.With().Str("match_id", m.ID.String()).Logger()

	cctx, cancel := s.call(ctx)
	conv, err := s.gateway.OpenConversation(cctx, m.ParticipantIDs)
	cancel()
	if err != nil {
		metrics.GroupFailures.WithLabelValues("open").Inc()
		log.Error().Err(err).Strs("participants", m.ParticipantIDs).Msg("failed to open conversation")
		return false
	}

	cctx, cancel = s.call(ctx)
	err = s.store.SetMatchConversation(cctx, m.ID, conv)
	cancel()
	if err != nil {
		// The intro still goes out; reminders skip matches without a handle.
		metrics.GroupFailures.WithLabelValues("store_conversation").Inc()
		log.Error().Err(err).Str("conversation_id", conv).Msg("failed to store conversation")
	}

	cctx, cancel = s.call(ctx)
	err = s.gateway.PostMessage(cctx, conv, MatchIntro, nil)
	cancel()
	if err != nil {
		metrics.GroupFailures.WithLabelValues("announce").Inc()
		log.Error().Err(err).Str("conversation_id", conv).Msg("failed to post intro")
		return false
	}
	return true
}
