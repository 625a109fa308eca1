package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// credentialParams are query parameters that must never reach the log:
// authorization codes are single-use credentials and tokens are bearer
// credentials.
var credentialParams = []string{"code", "access_token", "refresh_token"}

func redactQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	redacted := url.Values{}
	for k, vs := range q {
		redacted[k] = vs
	}
	for _, p := range credentialParams {
		if redacted.Has(p) {
			redacted.Set(p, "REDACTED")
		}
	}
	return redacted.Encode()
}

// RequestLogger logs each request with method, path, status, duration, and
// remote IP. Credential-bearing query parameters are redacted.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", RealIP(r)),
			}
			if q := redactQuery(r.URL.Query()); q != "" {
				attrs = append(attrs, slog.String("query", q))
			}

			switch {
			case rec.status >= 500:
				logger.LogAttrs(r.Context(), slog.LevelError, "request", attrs...)
			case rec.status >= 400:
				logger.LogAttrs(r.Context(), slog.LevelWarn, "request", attrs...)
			default:
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request", attrs...)
			}
		})
	}
}
