package httpx

import (
	"errors"
	"net/http"

	"github.com/botnev/botnev-auth/internal/shared"
)

// RespondError maps domain errors to HTTP responses. Messages stay
// generic on purpose: identity-related failures must not reveal which
// check rejected the request, and internal faults leak no detail.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Error(w, http.StatusBadRequest, "Invalid request.")
	case errors.Is(err, shared.ErrPasswordPolicy):
		Error(w, http.StatusBadRequest, "Password does not meet requirements.")
	case errors.Is(err, shared.ErrRateLimited):
		Error(w, http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	case errors.Is(err, shared.ErrCaptchaFailed):
		Error(w, http.StatusForbidden, "CAPTCHA verification failed")
	case errors.Is(err, shared.ErrSignupClosed):
		Error(w, http.StatusForbidden, "Signups are currently closed.")
	case errors.Is(err, shared.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, "Invalid email or password or device")
	case errors.Is(err, shared.ErrSessionInvalid):
		Error(w, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, shared.ErrDuplicate):
		Error(w, http.StatusConflict, "Account already exists.")
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, "Not found")
	default:
		Error(w, http.StatusInternalServerError, "Internal server error")
	}
}
