package auth

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/botnev/botnev-auth/internal/observability"
	"github.com/botnev/botnev-auth/internal/platform/httpx"
	"github.com/botnev/botnev-auth/internal/shared"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session_token"

// Handler wires HTTP endpoints for the authentication flows.
type Handler struct {
	logger        *slog.Logger
	service       *Service
	validator     *validator.Validate
	metrics       *observability.Metrics
	secureCookies bool
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics, secureCookies bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:        logger,
		service:       service,
		validator:     validator.New(),
		metrics:       metrics,
		secureCookies: secureCookies,
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/signup", h.handleSignup)
	r.Post("/verify", h.handleVerify)
	r.Post("/logout", h.handleLogout)
}

type loginRequest struct {
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required"`
	RememberMe       bool   `json:"remember_me"`
	CaptchaToken     string `json:"captcha_token"`
	Fingerprint      string `json:"fingerprint"`
	VerificationCode string `json:"verification_code"`
}

type loginResponse struct {
	Success              bool   `json:"success"`
	VerificationRequired bool   `json:"verification_required"`
	Message              string `json:"message,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	ip := clientIP(r)
	result, err := h.service.Login(r.Context(), LoginInput{
		Email:            req.Email,
		Password:         req.Password,
		RememberMe:       req.RememberMe,
		CaptchaToken:     req.CaptchaToken,
		Fingerprint:      Fingerprint(r.Header, ip, req.Fingerprint),
		VerificationCode: req.VerificationCode,
		RemoteIP:         ip,
	})
	if err != nil {
		h.metrics.RecordLogin(loginOutcome(err))
		if !isExpectedAuthError(err) {
			h.logger.Error("login failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	if result.VerificationRequired {
		h.metrics.RecordLogin("verification_required")
		h.metrics.RecordCodeIssued()
		httpx.JSON(w, http.StatusOK, loginResponse{
			Success:              true,
			VerificationRequired: true,
			Message:              "Verification code sent to email",
		})
		return
	}

	h.metrics.RecordLogin("success")
	h.setSessionCookie(w, result.Token, result.ExpiresAt)
	message := "Login successful!"
	if result.DeviceVerified {
		message = "Verification complete, login successful!"
	}
	httpx.JSON(w, http.StatusOK, loginResponse{Success: true, Message: message})
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"omitempty,min=2,max=32"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	if err := h.service.Signup(r.Context(), SignupInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	}); err != nil {
		if !isExpectedAuthError(err) {
			h.logger.Error("signup failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	h.metrics.RecordCodeIssued()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Signup successful, verification email sent!",
	})
}

type verifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	if err := h.service.VerifySignup(r.Context(), req.Email, req.Code); err != nil {
		if !isExpectedAuthError(err) {
			h.logger.Error("verify failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Email verified successfully!",
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := sessionTokenFromRequest(r)
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.logger.Error("logout failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.clearSessionCookie(w)
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func sessionTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// clientIP relies on chi's RealIP middleware having already rewritten
// RemoteAddr from the forwarding headers.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, shared.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, shared.ErrCaptchaFailed):
		return "captcha_failed"
	case errors.Is(err, shared.ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "error"
	}
}

// isExpectedAuthError reports whether the error is a routine protocol
// rejection rather than a fault worth an error log line.
func isExpectedAuthError(err error) bool {
	return errors.Is(err, shared.ErrInvalidCredentials) ||
		errors.Is(err, shared.ErrCaptchaFailed) ||
		errors.Is(err, shared.ErrRateLimited) ||
		errors.Is(err, shared.ErrSessionInvalid) ||
		errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrPasswordPolicy) ||
		errors.Is(err, shared.ErrSignupClosed) ||
		errors.Is(err, shared.ErrDuplicate)
}
