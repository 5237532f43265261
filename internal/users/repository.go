package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botnev/botnev-auth/internal/shared"
)

// RepositoryPort defines data access methods for profiles.
type RepositoryPort interface {
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	UpdateIdentity(ctx context.Context, email, username, bio string) error
	UpdatePicture(ctx context.Context, email, pictureURL string) error
	UpdateAvatars(ctx context.Context, email string, avatarIDs []string) error
	MarkCompleted(ctx context.Context, email string) error
	ListVerifiedUsernames(ctx context.Context) ([]string, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByEmail fetches a profile by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT email, username, bio, profile_picture, avatar_ids, verified, completed_profile, created_at
		FROM users WHERE email = $1`, email)
	var p Profile
	if err := row.Scan(&p.Email, &p.Username, &p.Bio, &p.ProfilePicture, &p.AvatarIDs, &p.Verified, &p.CompletedProfile, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpdateIdentity stores username and bio.
func (r *Repository) UpdateIdentity(ctx context.Context, email, username, bio string) error {
	return r.update(ctx, `UPDATE users SET username = $2, bio = $3 WHERE email = $1`, email, username, bio)
}

// UpdatePicture stores the profile picture reference.
func (r *Repository) UpdatePicture(ctx context.Context, email, pictureURL string) error {
	return r.update(ctx, `UPDATE users SET profile_picture = $2 WHERE email = $1`, email, pictureURL)
}

// UpdateAvatars stores the avatar selection.
func (r *Repository) UpdateAvatars(ctx context.Context, email string, avatarIDs []string) error {
	return r.update(ctx, `UPDATE users SET avatar_ids = $2 WHERE email = $1`, email, avatarIDs)
}

// MarkCompleted flags the profile as complete.
func (r *Repository) MarkCompleted(ctx context.Context, email string) error {
	return r.update(ctx, `UPDATE users SET completed_profile = TRUE WHERE email = $1`, email)
}

// ListVerifiedUsernames returns usernames of verified accounts.
func (r *Repository) ListVerifiedUsernames(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT username FROM users WHERE verified AND NOT honeytoken ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var usernames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		usernames = append(usernames, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return usernames, nil
}

func (r *Repository) update(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
