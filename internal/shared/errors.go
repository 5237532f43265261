package shared

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique-key conflict.
	ErrDuplicate = errors.New("duplicate")
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrPasswordPolicy indicates the password does not meet the policy.
	ErrPasswordPolicy = errors.New("password does not meet strength requirements")
	// ErrInvalidCredentials covers every identity-related login failure:
	// unknown user, wrong password, unverified account, honeytoken hit,
	// and bad or expired verification codes. Callers must not narrow it.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCaptchaFailed indicates the human-verification gate rejected the request.
	ErrCaptchaFailed = errors.New("captcha verification failed")
	// ErrRateLimited indicates the attempt ceiling was reached.
	ErrRateLimited = errors.New("rate limited")
	// ErrSessionInvalid covers missing, expired, and fingerprint-mismatched sessions.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrNotifierUnavailable indicates the verification email could not be queued.
	ErrNotifierUnavailable = errors.New("notifier unavailable")
	// ErrSignupClosed indicates the signup cap has been reached.
	ErrSignupClosed = errors.New("signup closed")
)
