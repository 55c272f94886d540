package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"permitflow/internal/guard"
	"permitflow/internal/session"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func newSlogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)
			logger.Info("http request", "method", r.Method, "path", r.URL.Path, "status", recorder.status, "duration", duration.String())
		})
	}
}

func newSecurityHeadersMiddleware(environment string) func(http.Handler) http.Handler {
	isDev := strings.EqualFold(environment, "development")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

			if !isDev {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// newGuardMiddleware gates protected routes on the auth state. While the
// initial session restore is pending the request is answered with a
// restoring status rather than a premature redirect; once the state has
// settled, anonymous requests are sent to the login page with the origin
// path preserved.
func newGuardMiddleware(g *guard.Guard, manager *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome := g.Protect(manager.State(), r.URL.Path)

			switch outcome.Decision {
			case guard.Wait:
				writeJSON(w, http.StatusOK, map[string]string{"status": "restoring"})
			case guard.Redirect:
				target := outcome.To
				if outcome.From != "" {
					target += "?redirectTo=" + url.QueryEscape(outcome.From)
				}
				http.Redirect(w, r, target, http.StatusSeeOther)
			case guard.Render:
				next.ServeHTTP(w, r)
			}
		})
	}
}
