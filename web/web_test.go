package web

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ziksir-notes/auth"
	"ziksir-notes/models"
	"ziksir-notes/service"
	"ziksir-notes/store"
)

var testIdentity = models.Identity{UserID: "3f6c2a9e-5d0b-4c59-9b1e-0d7c2b4f8a11", Email: "a@x.com"}

func newTestServer(t *testing.T) (*httptest.Server, *auth.Issuer) {
	t.Helper()
	log, _ := test.NewNullLogger()
	entry := logrus.NewEntry(log)
	mem := store.NewMemoryStore()
	issuer := auth.NewIssuer("test-secret", time.Hour)

	srv, err := New(
		service.NewAuthService(mem, issuer, auth.NewHasher(bcrypt.MinCost), nil, entry),
		service.NewNoteService(mem),
		issuer,
		entry,
		false,
	)
	require.NoError(t, err)

	r := chi.NewRouter()
	srv.Routes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, issuer
}

func newBrowser(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var sb bytes.Buffer
	_, err := sb.ReadFrom(resp.Body)
	require.NoError(t, err)
	return sb.String()
}

func TestDashboardRedirectsWithoutSession(t *testing.T) {
	ts, _ := newTestServer(t)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	resp, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestExpiredSessionRedirects(t *testing.T) {
	ts, _ := newTestServer(t)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	old := auth.NewIssuer("test-secret", time.Hour).WithClock(func() time.Time {
		return time.Now().Add(-2 * time.Hour)
	})
	token, _, err := old.Issue(testIdentity)
	require.NoError(t, err)

	req, _ := http.NewRequest("GET", ts.URL+"/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestBrowserFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	browser := newBrowser(t)

	resp, err := browser.PostForm(ts.URL+"/register", url.Values{"email": {"a@x.com"}, "password": {"pw1"}})
	require.NoError(t, err)
	page := body(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, "No notes yet.")
	assert.Contains(t, page, "a@x.com")

	session := browser.Jar.Cookies(mustURL(t, ts.URL))
	require.Len(t, session, 1)
	assert.Equal(t, CookieName, session[0].Name)

	resp, err = browser.PostForm(ts.URL+"/notes", url.Values{
		"title":       {"Groceries"},
		"description": {"**milk** <script>alert(1)</script>"},
	})
	require.NoError(t, err)
	page = body(t, resp)
	assert.Contains(t, page, "Groceries")
	assert.Contains(t, page, "<strong>milk</strong>")
	assert.NotContains(t, page, "<script>alert(1)</script>")

	// Blank fields are refused with a visible message and nothing is added.
	resp, err = browser.PostForm(ts.URL+"/notes", url.Values{"title": {"  "}, "description": {"x"}})
	require.NoError(t, err)
	page = body(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, page, `class="error"`)
	assert.Equal(t, 1, strings.Count(page, `class="note"`))

	start := strings.Index(page, `action="/notes/`)
	require.NotEqual(t, -1, start)
	action := page[start+len(`action="`):]
	action = action[:strings.Index(action, `"`)]

	resp, err = browser.PostForm(ts.URL+action, nil)
	require.NoError(t, err)
	page = body(t, resp)
	assert.Contains(t, page, "No notes yet.")

	resp, err = browser.PostForm(ts.URL+"/logout", nil)
	require.NoError(t, err)
	page = body(t, resp)
	assert.Contains(t, page, "Log in")
	assert.Empty(t, browser.Jar.Cookies(mustURL(t, ts.URL)))
}

func TestLoginFailureShowsMessage(t *testing.T) {
	ts, _ := newTestServer(t)
	browser := newBrowser(t)

	resp, err := browser.PostForm(ts.URL+"/login", url.Values{"email": {"nobody@x.com"}, "password": {"pw"}})
	require.NoError(t, err)
	page := body(t, resp)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, page, "invalid credentials")
	assert.Contains(t, page, `value="nobody@x.com"`)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
