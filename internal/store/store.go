package store

import (
	"context"
	"errors"

	"bayou-chat/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a message or user id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrNoChange may be returned by an Update mutator to abort the write
	// while still returning the current value to the caller. Used for
	// idempotent operations such as repeated read receipts.
	ErrNoChange = errors.New("no change")

	// ErrDuplicate is returned when a user already exists for a unique field.
	ErrDuplicate = errors.New("already exists")
)

// MessageStore provides atomic create/read/update of messages keyed by id.
//
// Update applies mutate against the current stored value as a single atomic
// transition: concurrent Update calls for the same id are serialized, so no
// intermediate state is ever lost. If mutate returns an error the write is
// aborted and the error propagated, except ErrNoChange which aborts the
// write but returns the current value with a nil error.
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	Update(ctx context.Context, id uuid.UUID, mutate func(*models.Message) error) (*models.Message, error)

	// Conversation returns every message exchanged between the two users in
	// creation order. Tombstoned messages are included; their text already
	// carries the placeholder.
	Conversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.Message, error)
}

// UserStore persists registered users.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// ListOtherUsers returns every user except the given one, for the
	// conversation sidebar.
	ListOtherUsers(ctx context.Context, exclude uuid.UUID) ([]*models.User, error)
}
