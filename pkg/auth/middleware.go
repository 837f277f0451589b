package auth

import (
	"log/slog"
	"net/http"

	"github.com/angelhodar/neuro-exercises/pkg/api"
	"github.com/angelhodar/neuro-exercises/pkg/observability"
	"github.com/angelhodar/neuro-exercises/pkg/transport"
)

// Middleware creates HTTP middleware from an AuthChain. Paths in
// bypassEndpoints skip authentication.
func Middleware(chain *AuthChain, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)

			if result.Decision != Yes || result.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				observability.AuthRejectedTotal.Inc()
				transport.WriteErrorResponse(w,
					api.NewInvalidRequestError("authenticate", "authentication required"),
					http.StatusUnauthorized,
				)
				return
			}

			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteErrorResponse(w,
					api.NewInternalError("authenticate", "internal authentication error"),
					http.StatusInternalServerError,
				)
				return
			}

			slog.Debug("authentication succeeded",
				"subject", result.Identity.Subject,
				"path", r.URL.Path,
			)

			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), result.Identity)))
		})
	}
}

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/metrics"}
