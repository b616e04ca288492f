// Package client is a Go session for the notes API. It keeps the token in
// memory, attaches it to protected calls and drops it when the server
// answers 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ziksir-notes/models"
)

// ErrNotAuthenticated is returned by protected calls made without a
// session. No request is sent.
var ErrNotAuthenticated = errors.New("not authenticated")

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

type session struct {
	token     string
	expiresAt time.Time
	user      models.Identity
}

type Session struct {
	baseURL string
	http    *http.Client

	mu      sync.RWMutex
	current *session
}

func New(baseURL string, httpClient *http.Client) *Session {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Session{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type authResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      models.Identity `json:"user"`
}

func (s *Session) Register(ctx context.Context, email, password string) error {
	return s.authenticate(ctx, "/api/auth/register", email, password)
}

func (s *Session) Login(ctx context.Context, email, password string) error {
	return s.authenticate(ctx, "/api/auth/login", email, password)
}

func (s *Session) authenticate(ctx context.Context, path, email, password string) error {
	var resp authResponse
	body := map[string]string{"email": email, "password": password}
	if err := s.do(ctx, http.MethodPost, path, "", body, &resp); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = &session{token: resp.Token, expiresAt: resp.ExpiresAt, user: resp.User}
	s.mu.Unlock()
	return nil
}

// Logout forgets the token. Tokens are stateless so the server is not told.
func (s *Session) Logout() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Authenticated reports whether a token is held and not yet expired.
func (s *Session) Authenticated() bool {
	_, ok := s.token()
	return ok
}

func (s *Session) User() (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.Identity{}, false
	}
	return s.current.user, true
}

func (s *Session) ListNotes(ctx context.Context) ([]models.Note, error) {
	var notes []models.Note
	if err := s.protected(ctx, http.MethodGet, "/api/notes", nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (s *Session) CreateNote(ctx context.Context, title, description string) (models.Note, error) {
	var note models.Note
	body := map[string]string{"title": title, "description": description}
	if err := s.protected(ctx, http.MethodPost, "/api/notes", body, &note); err != nil {
		return models.Note{}, err
	}
	return note, nil
}

func (s *Session) DeleteNote(ctx context.Context, id string) error {
	return s.protected(ctx, http.MethodDelete, "/api/notes/"+url.PathEscape(id), nil, nil)
}

func (s *Session) token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || !time.Now().Before(s.current.expiresAt) {
		return "", false
	}
	return s.current.token, true
}

func (s *Session) protected(ctx context.Context, method, path string, body, out any) error {
	token, ok := s.token()
	if !ok {
		return ErrNotAuthenticated
	}

	err := s.do(ctx, method, path, token, body, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		s.Logout()
	}
	return err
}

func (s *Session) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Message == "" {
			payload.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Message}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
