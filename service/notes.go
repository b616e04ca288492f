package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"ziksir-notes/errs"
	"ziksir-notes/models"
	"ziksir-notes/store"
)

type noteInput struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// NoteService scopes every note operation to the calling identity.
type NoteService struct {
	notes    store.NoteStore
	validate *validator.Validate
	now      func() time.Time
}

func NewNoteService(notes store.NoteStore) *NoteService {
	return &NoteService{notes: notes, validate: newValidator(), now: time.Now}
}

func (s *NoteService) WithClock(now func() time.Time) *NoteService {
	s.now = now
	return s
}

// List returns the caller's notes, oldest first.
func (s *NoteService) List(ctx context.Context, id models.Identity) ([]models.Note, error) {
	return s.notes.ListNotes(ctx, id.UserID)
}

// Create rejects blank (or whitespace-only) title and description. The
// text is stored as submitted.
func (s *NoteService) Create(ctx context.Context, id models.Identity, title, description string) (models.Note, error) {
	in := noteInput{Title: strings.TrimSpace(title), Description: strings.TrimSpace(description)}
	if err := s.validate.Struct(in); err != nil {
		return models.Note{}, validationError(err)
	}

	note := models.Note{
		Title:       title,
		Description: description,
		UserID:      id.UserID,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.notes.CreateNote(ctx, &note); err != nil {
		return models.Note{}, err
	}
	return note, nil
}

// Get returns one of the caller's notes.
func (s *NoteService) Get(ctx context.Context, id models.Identity, noteID string) (models.Note, error) {
	note, err := s.owned(ctx, id, noteID)
	if err != nil {
		return models.Note{}, err
	}
	return *note, nil
}

// Delete removes one of the caller's notes permanently. Someone else's
// note yields errs.ErrForbidden and is left alone.
func (s *NoteService) Delete(ctx context.Context, id models.Identity, noteID string) error {
	if _, err := s.owned(ctx, id, noteID); err != nil {
		return err
	}

	err := s.notes.DeleteNote(ctx, noteID, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		// Lost a race with another delete.
		return errs.ErrNotFound
	}
	return err
}

func (s *NoteService) owned(ctx context.Context, id models.Identity, noteID string) (*models.Note, error) {
	if _, err := uuid.Parse(noteID); err != nil {
		return nil, errs.ErrNotFound
	}

	note, err := s.notes.FindNote(ctx, noteID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if note.UserID != id.UserID {
		return nil, errs.ErrForbidden
	}
	return note, nil
}
