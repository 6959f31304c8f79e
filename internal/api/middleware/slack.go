package middleware

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/donut/internal/metrics"
	"github.com/eldtechnologies/donut/internal/slack"
)

// SlackSignature rejects callbacks not signed with the Slack signing secret.
func SlackSignature(signingSecret string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := slack.VerifyRequest(r, signingSecret); err != nil {
				metrics.BlockedRequests.WithLabelValues("slack_signature").Inc()
				logger.Warn().Err(err).Str("ip", r.RemoteAddr).Msg("rejected slack callback")
				jsonError(w, http.StatusUnauthorized, "invalid signature")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
