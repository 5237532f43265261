package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// CleanupRepository removes rows whose expiry has passed.
type CleanupRepository interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
	DeleteExpiredPendingVerifications(ctx context.Context) (int64, error)
}

// NewAuthCleanupHandler returns the handler purging expired sessions
// and pending verification codes. Expiry is enforced at read time as
// well, so the purge is hygiene rather than a correctness requirement.
func NewAuthCleanupHandler(repo CleanupRepository, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		sessions, err := repo.DeleteExpiredSessions(ctx)
		if err != nil {
			return err
		}
		codes, err := repo.DeleteExpiredPendingVerifications(ctx)
		if err != nil {
			return err
		}
		if sessions > 0 || codes > 0 {
			logger.Info("auth cleanup",
				slog.Int64("sessions", sessions),
				slog.Int64("pending_verifications", codes))
		}
		return nil
	}
}
