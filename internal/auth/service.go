package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/botnev/botnev-auth/internal/captcha"
	"github.com/botnev/botnev-auth/internal/notifier"
	"github.com/botnev/botnev-auth/internal/ratelimit"
	"github.com/botnev/botnev-auth/internal/shared"
)

const bcryptCost = 10

// ServiceConfig carries the tunable policy knobs of the protocol.
type ServiceConfig struct {
	SessionTTL       time.Duration // plain login session lifetime
	RememberTTL      time.Duration // remember-me session lifetime
	DeviceCodeTTL    time.Duration // device verification code lifetime
	SignupCodeTTL    time.Duration // signup verification window
	SignupCap        int64         // 0 disables the cap
	SignupAllowEmail string        // exempt from the cap
	BindFingerprint  bool          // bind sessions to the issuing device
	FailureDelayMin  time.Duration // uniform delay before identity failures
	FailureDelayMax  time.Duration
}

// ServiceParams groups the collaborators of the auth service.
type ServiceParams struct {
	Repo     Repository
	Limiter  *ratelimit.Limiter
	Captcha  captcha.Verifier
	Notifier notifier.Notifier
	Tokens   TokenStrategy
	Cache    *SessionCache
	Logger   *slog.Logger
	Config   ServiceConfig
}

// Service implements the authentication and device-verification protocol.
type Service struct {
	repo     Repository
	limiter  *ratelimit.Limiter
	captcha  captcha.Verifier
	notifier notifier.Notifier
	tokens   TokenStrategy
	cache    *SessionCache
	logger   *slog.Logger
	cfg      ServiceConfig

	// dummyHash keeps the bcrypt cost paid even when the user does not
	// exist, so response timing cannot distinguish the two cases.
	dummyHash []byte

	now   func() time.Time
	sleep func(time.Duration)
}

// NewService constructs the auth service.
func NewService(params ServiceParams) *Service {
	cfg := params.Config
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.RememberTTL <= 0 {
		cfg.RememberTTL = 90 * 24 * time.Hour
	}
	if cfg.DeviceCodeTTL <= 0 {
		cfg.DeviceCodeTTL = 10 * time.Minute
	}
	if cfg.SignupCodeTTL <= 0 {
		cfg.SignupCodeTTL = 15 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("botnev.timing.filler"), bcryptCost)
	if err != nil {
		// bcrypt only fails on an out-of-range cost, which is constant here.
		panic(fmt.Sprintf("auth: dummy hash: %v", err))
	}
	return &Service{
		repo:      params.Repo,
		limiter:   params.Limiter,
		captcha:   params.Captcha,
		notifier:  params.Notifier,
		tokens:    params.Tokens,
		cache:     params.Cache,
		logger:    logger,
		cfg:       cfg,
		dummyHash: dummyHash,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// LoginInput is the decoded login request.
type LoginInput struct {
	Email            string
	Password         string
	RememberMe       bool
	CaptchaToken     string
	Fingerprint      string
	VerificationCode string
	RemoteIP         string
}

// LoginResult describes a successful login step.
type LoginResult struct {
	VerificationRequired bool
	Token                string
	ExpiresAt            time.Time
	DeviceVerified       bool
}

// Login runs the full protocol in fixed order: rate limit, CAPTCHA,
// credentials, fingerprint, device verification, session issuance.
// Checks short-circuit on first failure, and every identity-related
// failure surfaces as shared.ErrInvalidCredentials after a uniform
// random delay.
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email, err := NormalizeIdentifier(input.Email)
	if err != nil || email == "" {
		return nil, shared.ErrValidation
	}
	limitKey := input.RemoteIP + email

	if !s.limiter.Allow(ctx, limitKey) {
		return nil, shared.ErrRateLimited
	}

	// CAPTCHA gates the unauthenticated entry point only; the code
	// confirmation resubmission is already past it.
	if input.VerificationCode == "" {
		if !s.captcha.Verify(ctx, input.CaptchaToken, input.RemoteIP) {
			s.limiter.LogAttempt(ctx, limitKey)
			s.delay()
			return nil, shared.ErrCaptchaFailed
		}
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if user == nil {
		// Burn the same bcrypt cost as a real comparison.
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(input.Password))
		return nil, s.identityFailure(ctx, limitKey)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		return nil, s.identityFailure(ctx, limitKey)
	}
	if !user.Verified || user.Honeytoken {
		return nil, s.identityFailure(ctx, limitKey)
	}

	newDevice := user.LastFingerprint == "" || user.LastFingerprint != input.Fingerprint
	if newDevice {
		if input.VerificationCode == "" {
			if err := s.issueDeviceCode(ctx, user, input.Fingerprint); err != nil {
				return nil, err
			}
			return &LoginResult{VerificationRequired: true}, nil
		}
		if err := s.consumeDeviceCode(ctx, email, input.Fingerprint, input.VerificationCode); err != nil {
			if errors.Is(err, shared.ErrInvalidCredentials) {
				return nil, s.identityFailure(ctx, limitKey)
			}
			return nil, err
		}
	}

	ttl := s.cfg.SessionTTL
	if input.RememberMe {
		ttl = s.cfg.RememberTTL
	}
	token, err := s.tokens.Mint()
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &Session{
		Token:       token,
		UserEmail:   email,
		Fingerprint: input.Fingerprint,
		Verified:    true,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLastFingerprint(ctx, email, input.Fingerprint); err != nil {
		s.logger.Warn("update last fingerprint", slog.Any("error", err))
	}
	s.limiter.Reset(ctx, limitKey)

	return &LoginResult{
		Token:          token,
		ExpiresAt:      sess.ExpiresAt,
		DeviceVerified: newDevice,
	}, nil
}

func (s *Service) issueDeviceCode(ctx context.Context, user *User, fingerprint string) error {
	code, err := generateDeviceCode()
	if err != nil {
		return err
	}
	now := s.now()
	pv := &PendingVerification{
		Email:       user.Email,
		Fingerprint: fingerprint,
		Code:        code,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.DeviceCodeTTL),
	}
	if err := s.repo.UpsertPendingVerification(ctx, pv); err != nil {
		return err
	}
	if err := s.notifier.SendVerificationCode(ctx, user.Email, user.Username, code); err != nil {
		s.logger.Error("send device code", slog.Any("error", err))
		return shared.ErrNotifierUnavailable
	}
	return nil
}

func (s *Service) consumeDeviceCode(ctx context.Context, email, fingerprint, code string) error {
	pv, err := s.repo.GetPendingVerification(ctx, email, fingerprint)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrInvalidCredentials
		}
		return err
	}
	if pv.Code != strings.TrimSpace(code) || s.now().After(pv.ExpiresAt) {
		return shared.ErrInvalidCredentials
	}
	// One-time use: the row is gone before the session exists.
	if err := s.repo.DeletePendingVerification(ctx, email, fingerprint); err != nil {
		return err
	}
	return nil
}

// SignupInput is the decoded signup request.
type SignupInput struct {
	Email    string
	Username string
	Password string
}

// Signup creates an unverified user and emails the signup code.
func (s *Service) Signup(ctx context.Context, input SignupInput) error {
	email, err := NormalizeIdentifier(input.Email)
	if err != nil || email == "" || !strings.Contains(email, "@") {
		return shared.ErrValidation
	}
	username := input.Username
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}
	username, err = NormalizeIdentifier(username)
	if err != nil {
		return shared.ErrValidation
	}
	if !PasswordStrongEnough(input.Password) {
		return shared.ErrPasswordPolicy
	}

	if s.cfg.SignupCap > 0 && email != s.cfg.SignupAllowEmail {
		count, err := s.repo.CountUsers(ctx)
		if err != nil {
			return err
		}
		if count >= s.cfg.SignupCap {
			return shared.ErrSignupClosed
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return err
	}
	code, err := generateSignupCode()
	if err != nil {
		return err
	}

	now := s.now()
	user := &User{
		Email:            email,
		Username:         username,
		PasswordHash:     string(hash),
		Verified:         false,
		VerificationCode: code,
		CodeIssuedAt:     now,
		CreatedAt:        now,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return err
	}

	if err := s.notifier.SendVerificationCode(ctx, email, username, code); err != nil {
		s.logger.Error("send signup code", slog.Any("error", err))
		return shared.ErrNotifierUnavailable
	}
	return nil
}

// VerifySignup consumes the signup code and marks the user verified.
// Unknown user, wrong code, and expired code fail identically.
func (s *Service) VerifySignup(ctx context.Context, email, code string) error {
	email, err := NormalizeIdentifier(email)
	if err != nil || email == "" {
		return shared.ErrValidation
	}
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.delay()
			return shared.ErrInvalidCredentials
		}
		return err
	}
	if user.Verified {
		return nil
	}
	if user.VerificationCode == "" ||
		user.VerificationCode != strings.TrimSpace(code) ||
		s.now().After(user.CodeIssuedAt.Add(s.cfg.SignupCodeTTL)) {
		s.delay()
		return shared.ErrInvalidCredentials
	}
	return s.repo.SetVerified(ctx, email)
}

// ValidateSession resolves the identity behind a session token,
// failing closed on a missing row, expiry, or fingerprint mismatch.
// An expired session behaves exactly like an absent one.
func (s *Service) ValidateSession(ctx context.Context, token, fingerprint string) (string, error) {
	if token == "" {
		return "", shared.ErrSessionInvalid
	}
	sess, err := s.cache.Fetch(ctx, token, func(ctx context.Context) (*Session, error) {
		return s.repo.GetSession(ctx, token)
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", shared.ErrSessionInvalid
		}
		return "", err
	}
	if sess.Expired(s.now()) {
		if err := s.repo.DeleteSession(ctx, token); err != nil {
			s.logger.Warn("delete expired session", slog.Any("error", err))
		}
		s.cache.Invalidate(ctx, token)
		return "", shared.ErrSessionInvalid
	}
	if s.cfg.BindFingerprint && sess.Fingerprint != "" && fingerprint != sess.Fingerprint {
		return "", shared.ErrSessionInvalid
	}
	return sess.UserEmail, nil
}

// RotateSession supersedes the current token with a fresh one carrying
// the same identity and expiry, shortening the replay window of a
// captured token.
func (s *Service) RotateSession(ctx context.Context, token string) (string, time.Time, error) {
	sess, err := s.repo.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", time.Time{}, shared.ErrSessionInvalid
		}
		return "", time.Time{}, err
	}
	if sess.Expired(s.now()) {
		return "", time.Time{}, shared.ErrSessionInvalid
	}
	newToken, err := s.tokens.Mint()
	if err != nil {
		return "", time.Time{}, err
	}
	next := &Session{
		Token:       newToken,
		UserEmail:   sess.UserEmail,
		Fingerprint: sess.Fingerprint,
		Verified:    sess.Verified,
		CreatedAt:   s.now(),
		ExpiresAt:   sess.ExpiresAt,
	}
	if err := s.repo.RotateSession(ctx, token, next); err != nil {
		return "", time.Time{}, err
	}
	s.cache.Invalidate(ctx, token)
	return newToken, next.ExpiresAt, nil
}

// Logout invalidates the session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.DeleteSession(ctx, token); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, token)
	return nil
}

// identityFailure logs the attempt, applies the uniform delay, and
// returns the one generic credentials error.
func (s *Service) identityFailure(ctx context.Context, limitKey string) error {
	s.limiter.LogAttempt(ctx, limitKey)
	s.delay()
	return shared.ErrInvalidCredentials
}

// delay sleeps for a uniform random duration inside the configured
// bounds, blunting timing side channels on identity-related failures.
func (s *Service) delay() {
	min, max := s.cfg.FailureDelayMin, s.cfg.FailureDelayMax
	if max <= min {
		if min > 0 {
			s.sleep(min)
		}
		return
	}
	jitter, err := rand.Int(rand.Reader, big.NewInt(int64(max-min)))
	if err != nil {
		s.sleep(min)
		return
	}
	s.sleep(min + time.Duration(jitter.Int64()))
}
