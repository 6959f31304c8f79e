package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/donut/internal/slack"
)

// SlackInteraction records a did-you-meet answer. The signature is checked
// by middleware before this runs.
func (h *Handler) SlackInteraction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	ev, err := slack.ParseInteraction(body)
	if errors.Is(err, slack.ErrIgnored) {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		h.logger.Warn().Err(err).Msg("malformed interaction payload")
		h.Error(w, http.StatusBadRequest, "invalid payload")
		return
	}

	zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("match_id", ev.MatchID.String())
	})
	res := h.rounds.RecordOutcome(r.Context(), ev)
	h.JSON(w, statusCode(res.Status), res)
}
