package middleware

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/donut/internal/crypto"
	"github.com/eldtechnologies/donut/internal/metrics"
)

// Operator request headers.
const (
	HeaderNonce     = "X-Donut-Nonce"
	HeaderTimestamp = "X-Donut-Timestamp"
	HeaderSignature = "X-Donut-Signature"
)

// operatorKeyID namespaces operator nonces in Redis.
const operatorKeyID = "operator"

// NonceClaimer records nonces so a signed request cannot be replayed.
type NonceClaimer interface {
	ClaimNonce(ctx context.Context, keyID, nonce string) (bool, error)
}

// OperatorAuth verifies Ed25519 signatures on trigger and admin requests.
type OperatorAuth struct {
	pubkey ed25519.PublicKey
	nonces NonceClaimer
	window time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewOperatorAuth creates the operator auth middleware. A nil nonce store
// disables replay protection.
func NewOperatorAuth(pubkey ed25519.PublicKey, nonces NonceClaimer, logger zerolog.Logger) *OperatorAuth {
	return &OperatorAuth{
		pubkey: pubkey,
		nonces: nonces,
		window: 30 * time.Second, // Tight window to minimize replay attack surface
		now:    time.Now,
		logger: logger,
	}
}

// RequireOperator rejects requests not signed by the operator key.
func (m *OperatorAuth) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce := r.Header.Get(HeaderNonce)
		timestamp := r.Header.Get(HeaderTimestamp)
		signature := r.Header.Get(HeaderSignature)

		if nonce == "" || timestamp == "" || signature == "" {
			m.reject(w, "missing_headers", "missing auth headers")
			return
		}

		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			m.reject(w, "bad_timestamp", "invalid timestamp format")
			return
		}
		if !m.isTimestampValid(ts) {
			m.reject(w, "bad_timestamp", "timestamp expired or too far in future")
			return
		}

		// Validate nonce format (min 24 chars for adequate entropy)
		if len(nonce) < 24 {
			m.reject(w, "bad_nonce", "nonce must be at least 24 characters")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewBuffer(body)) // Reset for handler

		signed := crypto.SignaturePayload(r.Method, r.URL.Path, crypto.BodyHash(body), nonce, ts)
		if err := crypto.VerifySignature(m.pubkey, signed, signature); err != nil {
			m.reject(w, "bad_signature", "invalid signature")
			return
		}

		// Claim the nonce only after the signature checks out
		if m.nonces != nil {
			fresh, err := m.nonces.ClaimNonce(r.Context(), operatorKeyID, nonce)
			if err != nil {
				m.logger.Error().Err(err).Msg("nonce check failed")
				jsonError(w, http.StatusServiceUnavailable, "nonce store unavailable")
				return
			}
			if !fresh {
				m.reject(w, "nonce_reuse", "nonce already used")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *OperatorAuth) isTimestampValid(ts int64) bool {
	now := m.now().UnixMilli()
	windowMs := m.window.Milliseconds()
	// Only accept timestamps from the past (within window), reject future timestamps
	return ts > now-windowMs && ts <= now
}

func (m *OperatorAuth) reject(w http.ResponseWriter, reason, message string) {
	metrics.BlockedRequests.WithLabelValues("auth_" + reason).Inc()
	jsonError(w, http.StatusUnauthorized, message)
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
