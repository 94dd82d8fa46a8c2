package users

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts u. It returns ErrUsernameTaken when the username is in
	// use and ErrDuplicateEmail when the email is.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByLogin matches a username or, case-insensitively, an email.
	GetByLogin(ctx context.Context, login string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernamesWithPrefix(ctx context.Context, prefix string) ([]string, error)
	CountByRole(ctx context.Context, role string) (int, error)
	UpdateProfile(ctx context.Context, u *User) error
	UpdateRole(ctx context.Context, id uuid.UUID, role string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	// UpdateDocuments stores blob IDs for the verification documents. An
	// empty value keeps the current one.
	UpdateDocuments(ctx context.Context, id uuid.UUID, purokEndorsement, validID string) error
	// MarkVerified records the verification and activates the account.
	MarkVerified(ctx context.Context, id, by uuid.UUID, at time.Time) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*User, int, error)
	ListAll(ctx context.Context, f Filter) ([]*User, error)
}
