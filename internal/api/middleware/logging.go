package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Logger returns a request logging middleware using zerolog. Each request
// carries a child logger tagged with its request id; handlers add fields
// such as round_id through zerolog.Ctx and they show up on the final line.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLogger := logger.With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Logger()
			r = r.WithContext(reqLogger.WithContext(r.Context()))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				l := zerolog.Ctx(r.Context())
				var ev *zerolog.Event
				switch status := ww.Status(); {
				case status >= 500:
					ev = l.Error()
				case status >= 400:
					ev = l.Warn()
				default:
					ev = l.Info()
				}
				ev.Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("latency", time.Since(start)).
					Str("ip", RealIP(r)).
					Bool("signed", r.Header.Get(HeaderSignature) != "").
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
