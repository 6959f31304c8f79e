package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/eldtechnologies/donut/internal/models"
	"github.com/eldtechnologies/donut/internal/rounds"
	"github.com/eldtechnologies/donut/internal/store"
)

// ConfigResponse is the operator view of the round settings.
type ConfigResponse struct {
	RoundChannelID      string            `json:"round_channel_id"`
	PairingIntervalDays int               `json:"pairing_interval_days"`
	Raw                 map[string]string `json:"raw"`
}

// UpdateChannelRequest sets the pairing channel.
type UpdateChannelRequest struct {
	ChannelID string `json:"channel_id"`
}

// UpdateIntervalRequest sets the pairing interval.
type UpdateIntervalRequest struct {
	Days int `json:"days"`
}

// AvoidRequest forbids two users from being grouped.
type AvoidRequest struct {
	UserID      string `json:"user_id"`
	AvoidUserID string `json:"avoid_user_id"`
}

// GetConfig returns the current round settings.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := h.db.ListConfig(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list config")
		h.Error(w, http.StatusInternalServerError, "failed to read config")
		return
	}

	interval := models.DefaultPairingIntervalDays
	if v, ok := raw[models.ConfigPairingIntervalDays]; ok {
		interval = rounds.ParseInterval(v)
	}
	h.JSON(w, http.StatusOK, ConfigResponse{
		RoundChannelID:      rounds.ParseChannelID(raw[models.ConfigRoundChannelID]),
		PairingIntervalDays: interval,
		Raw:                 raw,
	})
}

// UpdateChannel sets the pairing channel.
func (h *Handler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	var req UpdateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.ChannelID = strings.TrimSpace(req.ChannelID)
	if !isSlackID(req.ChannelID) {
		h.Error(w, http.StatusBadRequest, "channel_id must be a Slack channel ID")
		return
	}

	if err := h.db.SetConfig(r.Context(), models.ConfigRoundChannelID, req.ChannelID); err != nil {
		h.logger.Error().Err(err).Msg("failed to set round channel")
		h.Error(w, http.StatusInternalServerError, "failed to update config")
		return
	}
	h.logger.Info().Str("channel_id", req.ChannelID).Msg("round channel updated")
	h.JSON(w, http.StatusOK, map[string]string{"round_channel_id": req.ChannelID})
}

// UpdateInterval sets the pairing interval in days.
func (h *Handler) UpdateInterval(w http.ResponseWriter, r *http.Request) {
	var req UpdateIntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Days < 1 {
		h.Error(w, http.StatusBadRequest, "days must be at least 1")
		return
	}

	if err := h.db.SetConfig(r.Context(), models.ConfigPairingIntervalDays, strconv.Itoa(req.Days)); err != nil {
		h.logger.Error().Err(err).Msg("failed to set pairing interval")
		h.Error(w, http.StatusInternalServerError, "failed to update config")
		return
	}
	h.logger.Info().Int("days", req.Days).Msg("pairing interval updated")
	h.JSON(w, http.StatusOK, map[string]int{"pairing_interval_days": req.Days})
}

// AddAvoid records that two users must never be grouped.
func (h *Handler) AddAvoid(w http.ResponseWriter, r *http.Request) {
	var req AvoidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.AvoidUserID = strings.TrimSpace(req.AvoidUserID)
	if !isSlackID(req.UserID) || !isSlackID(req.AvoidUserID) {
		h.Error(w, http.StatusBadRequest, "user_id and avoid_user_id must be Slack user IDs")
		return
	}
	if req.UserID == req.AvoidUserID {
		h.Error(w, http.StatusBadRequest, "a user cannot avoid themselves")
		return
	}

	err := h.db.AddAvoid(r.Context(), req.UserID, req.AvoidUserID)
	if errors.Is(err, store.ErrUnknownReference) {
		h.Error(w, http.StatusUnprocessableEntity, "both users must be synced from the pairing channel first")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to add avoid entry")
		h.Error(w, http.StatusInternalServerError, "failed to add avoid entry")
		return
	}
	h.JSON(w, http.StatusCreated, req)
}

// isSlackID checks for an uppercase alphanumeric Slack identifier.
func isSlackID(id string) bool {
	if len(id) < 2 || len(id) > 32 {
		return false
	}
	for _, r := range id {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
