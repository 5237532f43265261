package auth

import (
	"net/http"

	"github.com/botnev/botnev-auth/internal/platform/httpx"
	"github.com/botnev/botnev-auth/internal/shared"
)

// RequireSession guards protected routes. It resolves the session
// cookie, fails closed on any invalid or expired token, and injects
// the caller identity into the request context.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionTokenFromRequest(r)
		ip := clientIP(r)
		fingerprint := Fingerprint(r.Header, ip, r.Header.Get(FingerprintHeader))

		email, err := h.service.ValidateSession(r.Context(), token, fingerprint)
		if err != nil {
			httpx.RespondError(w, shared.ErrSessionInvalid)
			return
		}

		ctx := shared.ContextWithIdentity(r.Context(), shared.Identity{
			Email:        email,
			SessionToken: token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
