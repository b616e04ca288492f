package store

import (
	"context"
	"sort"
	"sync"

	"ziksir-notes/models"
)

// MemoryStore keeps everything in process memory. It backs DB_DRIVER=memory
// and the tests of the packages above the store.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]models.User // keyed by email
	notes map[string]models.Note
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]models.User),
		notes: make(map[string]models.Note),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Ping(context.Context) error    { return nil }
func (s *MemoryStore) Close(context.Context) error   { return nil }

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Email]; ok {
		return ErrDuplicate
	}
	if user.ID == "" {
		user.ID = newID()
	}
	s.users[user.Email] = *user
	return nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (s *MemoryStore) CreateNote(_ context.Context, note *models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if note.ID == "" {
		note.ID = newID()
	}
	s.notes[note.ID] = *note
	return nil
}

func (s *MemoryStore) ListNotes(_ context.Context, userID string) ([]models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := []models.Note{}
	for _, note := range s.notes {
		if note.UserID == userID {
			notes = append(notes, note)
		}
	}
	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].CreatedAt.Before(notes[j].CreatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
	return notes, nil
}

func (s *MemoryStore) FindNote(_ context.Context, id string) (*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, ok := s.notes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &note, nil
}

func (s *MemoryStore) DeleteNote(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes[id]
	if !ok || note.UserID != userID {
		return ErrNotFound
	}
	delete(s.notes, id)
	return nil
}
