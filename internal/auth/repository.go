package auth

import (
	"context"
	"strings"

	"golang.org/x/text/secure/precis"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	SetVerified(ctx context.Context, email string) error
	UpdateLastFingerprint(ctx context.Context, email, fingerprint string) error
	CountUsers(ctx context.Context) (int64, error)

	UpsertPendingVerification(ctx context.Context, pv *PendingVerification) error
	GetPendingVerification(ctx context.Context, email, fingerprint string) (*PendingVerification, error)
	DeletePendingVerification(ctx context.Context, email, fingerprint string) error

	CreateSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
	RotateSession(ctx context.Context, oldToken string, next *Session) error

	DeleteExpiredSessions(ctx context.Context) (int64, error)
	DeleteExpiredPendingVerifications(ctx context.Context) (int64, error)
}

// NormalizeIdentifier canonicalizes an email or username so lookups and
// unique keys are case- and width-insensitive. PRECIS UsernameCaseMapped
// rejects identifiers with disallowed code points.
func NormalizeIdentifier(s string) (string, error) {
	return precis.UsernameCaseMapped.String(strings.TrimSpace(s))
}
