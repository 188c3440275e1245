// Package repository declares persistence contracts for the credential store.
package repository

import (
	"context"
	"errors"

	"github.com/mkarklins/voicegate/internal/domain"
)

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicateEmail indicates the email is already registered.
var ErrDuplicateEmail = errors.New("repository: email already registered")

// UserRepository persists enrolled users. Create must enforce email
// uniqueness and return ErrDuplicateEmail on conflict.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}
