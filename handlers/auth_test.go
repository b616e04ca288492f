package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"

	"ziksir-notes/auth"
	"ziksir-notes/middleware"
	"ziksir-notes/models"
	"ziksir-notes/service"
	"ziksir-notes/store"
)

type testEnv struct {
	store  *store.MemoryStore
	issuer *auth.Issuer
	auth   *AuthHandler
	notes  *NoteHandler
	log    *logrus.Entry
	hook   *test.Hook
}

// stepClock advances a second per reading so notes get distinct timestamps.
type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestEnv() *testEnv {
	log, hook := test.NewNullLogger()
	entry := logrus.NewEntry(log)
	mem := store.NewMemoryStore()
	issuer := auth.NewIssuer("test-secret", time.Hour)

	authSvc := service.NewAuthService(mem, issuer, auth.NewHasher(bcrypt.MinCost), nil, entry)
	clock := &stepClock{t: time.Now().Add(-time.Hour)}
	return &testEnv{
		store:  mem,
		issuer: issuer,
		auth:   NewAuthHandler(authSvc, entry),
		notes:  NewNoteHandler(service.NewNoteService(mem).WithClock(clock.Now), entry),
		log:    entry,
		hook:   hook,
	}
}

func jsonRequest(method, target string, body any) *http.Request {
	jsonBody, _ := json.Marshal(body)
	req, _ := http.NewRequest(method, target, bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withIdentity(req *http.Request, id models.Identity) *http.Request {
	return req.WithContext(middleware.WithIdentity(req.Context(), id))
}

func TestRegister(t *testing.T) {
	env := newTestEnv()

	// Test case 1: Successful registration
	t.Run("Successful registration", func(t *testing.T) {
		req := jsonRequest("POST", "/api/auth/register", authRequest{Email: "test@example.com", Password: "testpassword"})
		rr := httptest.NewRecorder()

		http.HandlerFunc(env.auth.Register).ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusCreated {
			t.Errorf("Handler returned wrong status code: got %v want %v", status, http.StatusCreated)
		}

		var session service.Session
		if err := json.Unmarshal(rr.Body.Bytes(), &session); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if session.Token == "" {
			t.Errorf("Expected a token in the response")
		}
		if session.User.Email != "test@example.com" {
			t.Errorf("Expected email test@example.com, got %v", session.User.Email)
		}
	})

	// Test case 2: Same email in different case
	t.Run("Duplicate email", func(t *testing.T) {
		req := jsonRequest("POST", "/api/auth/register", authRequest{Email: "Test@Example.com", Password: "other"})
		rr := httptest.NewRecorder()

		http.HandlerFunc(env.auth.Register).ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusConflict {
			t.Errorf("Handler returned wrong status code: got %v want %v", status, http.StatusConflict)
		}
	})

	// Test case 3: Malformed email
	t.Run("Invalid email", func(t *testing.T) {
		req := jsonRequest("POST", "/api/auth/register", authRequest{Email: "nope", Password: "pw"})
		rr := httptest.NewRecorder()

		http.HandlerFunc(env.auth.Register).ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusBadRequest {
			t.Errorf("Handler returned wrong status code: got %v want %v", status, http.StatusBadRequest)
		}
	})

	// Test case 4: Body is not JSON
	t.Run("Invalid body", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/api/auth/register", bytes.NewBufferString("{"))
		rr := httptest.NewRecorder()

		http.HandlerFunc(env.auth.Register).ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusBadRequest {
			t.Errorf("Handler returned wrong status code: got %v want %v", status, http.StatusBadRequest)
		}
	})
}

func TestLogin(t *testing.T) {
	env := newTestEnv()
	rr := httptest.NewRecorder()
	http.HandlerFunc(env.auth.Register).ServeHTTP(rr, jsonRequest("POST", "/api/auth/register", authRequest{Email: "test@example.com", Password: "testpassword"}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("setup registration failed: %v", rr.Code)
	}

	// Test case 1: Valid credentials
	t.Run("Valid credentials", func(t *testing.T) {
		req := jsonRequest("POST", "/api/auth/login", authRequest{Email: "test@example.com", Password: "testpassword"})
		rr := httptest.NewRecorder()

		http.HandlerFunc(env.auth.Login).ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusOK {
			t.Errorf("Handler returned wrong status code: got %v want %v", status, http.StatusOK)
		}

		var session service.Session
		json.Unmarshal(rr.Body.Bytes(), &session)
		id, err := env.issuer.Verify(session.Token)
		if err != nil {
			t.Fatalf("Returned token does not verify: %v", err)
		}
		if id.Email != "test@example.com" {
			t.Errorf("Expected email test@example.com in token, got %v", id.Email)
		}
	})

	// Test case 2: Wrong password
	t.Run("Invalid password", func(t *testing.T) {
		req := jsonRequest("POST", "/api/auth/login", authRequest{Email: "test@example.com", Password: "wrongpassword"})
		rr := httptest.NewRecorder()

		http.HandlerFunc(env.auth.Login).ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusUnauthorized {
			t.Errorf("Handler returned wrong status code: got %v want %v", status, http.StatusUnauthorized)
		}
		var body map[string]string
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body["message"] != "invalid credentials" {
			t.Errorf("Unexpected message %q", body["message"])
		}
	})

	// Test case 3: Unknown user
	t.Run("Non-existent user", func(t *testing.T) {
		req := jsonRequest("POST", "/api/auth/login", authRequest{Email: "nonexistent@example.com", Password: "testpassword"})
		rr := httptest.NewRecorder()

		http.HandlerFunc(env.auth.Login).ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusUnauthorized {
			t.Errorf("Handler returned wrong status code: got %v want %v", status, http.StatusUnauthorized)
		}
	})
}

func TestMe(t *testing.T) {
	env := newTestEnv()
	id := models.Identity{UserID: "user-1", Email: "test@example.com"}

	req, _ := http.NewRequest("GET", "/api/auth/me", nil)
	rr := httptest.NewRecorder()
	http.HandlerFunc(env.auth.Me).ServeHTTP(rr, withIdentity(req, id))

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}
	var got models.Identity
	json.Unmarshal(rr.Body.Bytes(), &got)
	if got != id {
		t.Errorf("Expected %+v, got %+v", id, got)
	}
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	log, _ := test.NewNullLogger()

	// Test case 1: Store reachable
	t.Run("Healthy", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/health", nil)
		rr := httptest.NewRecorder()
		Health(failingPinger{}, log).ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusOK {
			t.Errorf("Handler returned wrong status code: got %v want %v", status, http.StatusOK)
		}
	})

	// Test case 2: Store down
	t.Run("Unhealthy", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/health", nil)
		rr := httptest.NewRecorder()
		Health(failingPinger{err: context.DeadlineExceeded}, log).ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusServiceUnavailable {
			t.Errorf("Handler returned wrong status code: got %v want %v", status, http.StatusServiceUnavailable)
		}
	})
}
