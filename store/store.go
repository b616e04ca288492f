package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"ziksir-notes/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// UserStore persists user accounts. Emails are stored exactly as given;
// callers normalise them before writing and looking up.
type UserStore interface {
	// CreateUser assigns user.ID when empty and returns ErrDuplicate if
	// the email is taken.
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// NoteStore persists notes. Ownership checks belong to the caller;
// DeleteNote additionally scopes the write to the owner.
type NoteStore interface {
	CreateNote(ctx context.Context, note *models.Note) error
	// ListNotes returns the user's notes oldest first, ties broken by id.
	ListNotes(ctx context.Context, userID string) ([]models.Note, error)
	FindNote(ctx context.Context, id string) (*models.Note, error)
	// DeleteNote returns ErrNotFound when no note with that id and owner
	// exists.
	DeleteNote(ctx context.Context, id, userID string) error
}

type Store interface {
	UserStore
	NoteStore
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// newID returns a time-ordered UUIDv7 so the id tie-break in ListNotes
// follows insertion order.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
