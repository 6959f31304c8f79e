package handlers

import "net/http"

// StartRound creates and announces a round if one is due.
func (h *Handler) StartRound(w http.ResponseWriter, r *http.Request) {
	out := h.rounds.TryStartRound(r.Context(), h.now())
	logRound(r, out.RoundID)
	h.JSON(w, statusCode(out.Status), out)
}

// SendReminders prompts pending matches of the latest round.
func (h *Handler) SendReminders(w http.ResponseWriter, r *http.Request) {
	out := h.rounds.SendReminders(r.Context())
	logRound(r, out.RoundID)
	h.JSON(w, statusCode(out.Status), out)
}

// PostSummary posts the latest round's results to the pairing channel.
func (h *Handler) PostSummary(w http.ResponseWriter, r *http.Request) {
	out := h.rounds.PostSummary(r.Context())
	logRound(r, out.RoundID)
	h.JSON(w, statusCode(out.Status), out)
}

// LatestSummary returns the latest round's results without posting.
func (h *Handler) LatestSummary(w http.ResponseWriter, r *http.Request) {
	out := h.rounds.RoundSummary(r.Context())
	logRound(r, out.RoundID)
	h.JSON(w, statusCode(out.Status), out)
}
