package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botnev/botnev-auth/internal/platform/db"
	"github.com/botnev/botnev-auth/internal/shared"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `email, username, password_hash, verified, verification_code, code_issued_at, last_fingerprint, honeytoken, created_at`

// FindUserByEmail fetches a user by normalized email.
func (r *PGRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	var user User
	if err := row.Scan(
		&user.Email, &user.Username, &user.PasswordHash, &user.Verified,
		&user.VerificationCode, &user.CodeIssuedAt, &user.LastFingerprint,
		&user.Honeytoken, &user.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a new unverified user record.
func (r *PGRepository) CreateUser(ctx context.Context, user *User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (email, username, password_hash, verified, verification_code, code_issued_at, last_fingerprint, honeytoken, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.Email, user.Username, user.PasswordHash, user.Verified,
		user.VerificationCode, timestamptz(user.CodeIssuedAt),
		user.LastFingerprint, user.Honeytoken, timestamptz(user.CreatedAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrDuplicate
		}
		return err
	}
	return nil
}

// SetVerified flips the verification flag and consumes the signup code.
func (r *PGRepository) SetVerified(ctx context.Context, email string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET verified = TRUE, verification_code = '', code_issued_at = to_timestamp(0)
		WHERE email = $1`, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateLastFingerprint records the device that completed the latest login.
func (r *PGRepository) UpdateLastFingerprint(ctx context.Context, email, fingerprint string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_fingerprint = $2 WHERE email = $1`, email, fingerprint)
	return err
}

// CountUsers returns the total number of user records.
func (r *PGRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// UpsertPendingVerification keeps at most one active code per
// (email, fingerprint) pair; the latest issued code wins.
func (r *PGRepository) UpsertPendingVerification(ctx context.Context, pv *PendingVerification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pending_verifications (email, fingerprint, code, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email, fingerprint)
		DO UPDATE SET code = EXCLUDED.code, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		pv.Email, pv.Fingerprint, pv.Code, timestamptz(pv.CreatedAt), timestamptz(pv.ExpiresAt),
	)
	return err
}

// GetPendingVerification fetches the active code for a device, if any.
func (r *PGRepository) GetPendingVerification(ctx context.Context, email, fingerprint string) (*PendingVerification, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT email, fingerprint, code, created_at, expires_at
		FROM pending_verifications WHERE email = $1 AND fingerprint = $2`, email, fingerprint)
	var pv PendingVerification
	if err := row.Scan(&pv.Email, &pv.Fingerprint, &pv.Code, &pv.CreatedAt, &pv.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &pv, nil
}

// DeletePendingVerification consumes a code.
func (r *PGRepository) DeletePendingVerification(ctx context.Context, email, fingerprint string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pending_verifications WHERE email = $1 AND fingerprint = $2`, email, fingerprint)
	return err
}

// CreateSession persists a newly issued session.
func (r *PGRepository) CreateSession(ctx context.Context, sess *Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (token, user_email, fingerprint, verified, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.Token, sess.UserEmail, sess.Fingerprint, sess.Verified,
		timestamptz(sess.CreatedAt), timestamptz(sess.ExpiresAt),
	)
	return err
}

// GetSession looks up a session by token.
func (r *PGRepository) GetSession(ctx context.Context, token string) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT token, user_email, fingerprint, verified, created_at, expires_at
		FROM sessions WHERE token = $1`, token)
	var sess Session
	if err := row.Scan(&sess.Token, &sess.UserEmail, &sess.Fingerprint, &sess.Verified, &sess.CreatedAt, &sess.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

// RotateSession supersedes the old token with the next session in one
// transaction so no moment exists where both tokens are valid.
func (r *PGRepository) RotateSession(ctx context.Context, oldToken string, next *Session) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, oldToken)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO sessions (token, user_email, fingerprint, verified, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			next.Token, next.UserEmail, next.Fingerprint, next.Verified,
			timestamptz(next.CreatedAt), timestamptz(next.ExpiresAt),
		)
		return err
	})
}

// DeleteExpiredSessions purges rows past their expiry.
func (r *PGRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredPendingVerifications purges stale one-time codes.
func (r *PGRepository) DeleteExpiredPendingVerifications(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pending_verifications WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

var _ Repository = (*PGRepository)(nil)
