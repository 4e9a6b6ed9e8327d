// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/avoronin/liblend/internal/model"
)

// UserRepository provides access to library members.
type UserRepository interface {
	// Create inserts a new user. Returns errs.ErrConflict when name or
	// email is already taken.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// List returns all users ordered by name.
	List(ctx context.Context) ([]model.User, error)
}
