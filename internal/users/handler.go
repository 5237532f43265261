package users

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/botnev/botnev-auth/internal/auth"
	"github.com/botnev/botnev-auth/internal/platform/httpx"
	"github.com/botnev/botnev-auth/internal/shared"
)

// SessionRotator re-issues the caller's session token after sensitive
// writes. Satisfied by auth.Service.
type SessionRotator interface {
	RotateSession(ctx context.Context, token string) (string, time.Time, error)
}

// Handler manages the protected profile endpoints.
type Handler struct {
	logger        *slog.Logger
	service       *Service
	rotator       SessionRotator
	validator     *validator.Validate
	secureCookies bool
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rotator SessionRotator, secureCookies bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:        logger,
		service:       service,
		rotator:       rotator,
		validator:     validator.New(),
		secureCookies: secureCookies,
	}
}

// MountRoutes registers profile routes. Callers must wrap them with
// auth session middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
	r.Post("/profile", h.handleProfileStep)
	r.Get("/verified", h.handleVerifiedUsers)
}

type profileResponse struct {
	Email            string    `json:"email"`
	Username         string    `json:"username"`
	Bio              string    `json:"bio"`
	ProfilePicture   string    `json:"profile_picture"`
	AvatarIDs        []string  `json:"avatar_ids"`
	Verified         bool      `json:"verified"`
	CompletedProfile bool      `json:"completed_profile"`
	CreatedAt        time.Time `json:"created_at"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrSessionInvalid)
		return
	}
	profile, err := h.service.Profile(r.Context(), identity.Email)
	if err != nil {
		h.logger.Error("fetch profile", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user": profileResponse{
			Email:            profile.Email,
			Username:         profile.Username,
			Bio:              profile.Bio,
			ProfilePicture:   profile.ProfilePicture,
			AvatarIDs:        profile.AvatarIDs,
			Verified:         profile.Verified,
			CompletedProfile: profile.CompletedProfile,
			CreatedAt:        profile.CreatedAt,
		},
	})
}

type profileStepRequest struct {
	Step           int      `json:"step" validate:"required,min=1,max=4"`
	Username       string   `json:"username"`
	Bio            string   `json:"bio"`
	ProfilePicture string   `json:"profile_picture"`
	AvatarIDs      []string `json:"avatar_ids"`
}

func (h *Handler) handleProfileStep(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrSessionInvalid)
		return
	}

	var req profileStepRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	if err := h.service.ApplyStep(r.Context(), identity.Email, req.Step, StepInput{
		Username:       req.Username,
		Bio:            req.Bio,
		ProfilePicture: req.ProfilePicture,
		AvatarIDs:      req.AvatarIDs,
	}); err != nil {
		httpx.RespondError(w, err)
		return
	}

	// Rotate the session after the write to shorten the replay window
	// of a captured token. Rotation failure does not fail the write.
	h.rotateSession(w, r, identity.SessionToken)

	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Profile updated",
	})
}

func (h *Handler) handleVerifiedUsers(w http.ResponseWriter, r *http.Request) {
	usernames, err := h.service.VerifiedUsernames(r.Context())
	if err != nil {
		h.logger.Error("list verified users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"users":   usernames,
	})
}

func (h *Handler) rotateSession(w http.ResponseWriter, r *http.Request, token string) {
	if h.rotator == nil || token == "" {
		return
	}
	newToken, expiresAt, err := h.rotator.RotateSession(r.Context(), token)
	if err != nil {
		h.logger.Warn("session rotation failed", slog.Any("error", err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    newToken,
		Path:     "/",
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
