package users

import (
	"context"
	"fmt"

	"github.com/botnev/botnev-auth/internal/shared"
)

// StepInput carries the fields of a profile completion step.
type StepInput struct {
	Username       string
	Bio            string
	ProfilePicture string
	AvatarIDs      []string
}

// Service handles profile business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Profile returns the caller's profile.
func (s *Service) Profile(ctx context.Context, email string) (*Profile, error) {
	return s.repo.GetByEmail(ctx, email)
}

// ApplyStep performs one stage of the stepped profile completion flow.
func (s *Service) ApplyStep(ctx context.Context, email string, step int, input StepInput) error {
	switch step {
	case StepIdentity:
		if input.Username == "" || input.Bio == "" {
			return fmt.Errorf("%w: username and bio are required", shared.ErrValidation)
		}
		return s.repo.UpdateIdentity(ctx, email, input.Username, input.Bio)
	case StepPicture:
		if input.ProfilePicture == "" {
			return fmt.Errorf("%w: profile picture is required", shared.ErrValidation)
		}
		return s.repo.UpdatePicture(ctx, email, input.ProfilePicture)
	case StepAvatars:
		if len(input.AvatarIDs) == 0 || len(input.AvatarIDs) > MaxAvatars {
			return fmt.Errorf("%w: select between 1 and %d avatars", shared.ErrValidation, MaxAvatars)
		}
		return s.repo.UpdateAvatars(ctx, email, input.AvatarIDs)
	case StepComplete:
		return s.repo.MarkCompleted(ctx, email)
	default:
		return fmt.Errorf("%w: invalid step", shared.ErrValidation)
	}
}

// VerifiedUsernames lists usernames of verified accounts.
func (s *Service) VerifiedUsernames(ctx context.Context) ([]string, error) {
	return s.repo.ListVerifiedUsernames(ctx)
}
