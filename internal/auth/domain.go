package auth

import "time"

// User is the persisted identity record. Users are never physically
// deleted by this service.
type User struct {
	Email            string
	Username         string
	PasswordHash     string
	Verified         bool
	VerificationCode string
	CodeIssuedAt     time.Time
	LastFingerprint  string
	Honeytoken       bool
	CreatedAt        time.Time
}

// PendingVerification is the ephemeral one-time code gating a login
// from an unrecognized device. At most one active row exists per
// (email, fingerprint) pair; upserts keep the latest code.
type PendingVerification struct {
	Email       string
	Fingerprint string
	Code        string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Session binds an opaque token to an authenticated identity. A session
// must never be usable after ExpiresAt, whether or not the row still
// exists.
type Session struct {
	Token       string
	UserEmail   string
	Fingerprint string
	Verified    bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
