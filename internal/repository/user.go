package repository

import (
	"context"

	"secondchance/internal/domain"
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// UpdateByEmail applies patch and returns the record as it is after the update.
	UpdateByEmail(ctx context.Context, email string, patch domain.UserPatch) (*domain.User, error)
}
