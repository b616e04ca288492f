// Package web serves the browser UI. The session token lives in an
// HttpOnly cookie and every protected page verifies it before rendering.
package web

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"ziksir-notes/errs"
	"ziksir-notes/logger"
	"ziksir-notes/middleware"
	"ziksir-notes/models"
	"ziksir-notes/service"
)

const CookieName = "ziksir_session"

//go:embed templates/*.html
var templateFS embed.FS

type Authenticator interface {
	Register(ctx context.Context, email, password string) (service.Session, error)
	Login(ctx context.Context, email, password string) (service.Session, error)
}

type NoteManager interface {
	List(ctx context.Context, id models.Identity) ([]models.Note, error)
	Create(ctx context.Context, id models.Identity, title, description string) (models.Note, error)
	Delete(ctx context.Context, id models.Identity, noteID string) error
}

type Server struct {
	auth         Authenticator
	notes        NoteManager
	verifier     middleware.TokenVerifier
	log          logrus.FieldLogger
	tmpl         *template.Template
	md           goldmark.Markdown
	secureCookie bool
}

type noteForm struct {
	Title       string
	Description string
}

type noteView struct {
	models.Note
	HTML template.HTML
}

type page struct {
	Title string
	User  *models.Identity
	Error string
	Email string
	Form  noteForm
	Notes []noteView
}

func New(auth Authenticator, notes NoteManager, verifier middleware.TokenVerifier, log logrus.FieldLogger, secureCookie bool) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		auth:         auth,
		notes:        notes,
		verifier:     verifier,
		log:          log,
		tmpl:         tmpl,
		md:           goldmark.New(goldmark.WithExtensions(extension.GFM)),
		secureCookie: secureCookie,
	}, nil
}

// Routes mounts the UI on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/login", s.loginPage)
	r.Post("/login", s.login)
	r.Get("/register", s.registerPage)
	r.Post("/register", s.register)
	r.Post("/logout", s.logout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/", s.dashboard)
		r.Post("/notes", s.createNote)
		r.Post("/notes/{id}/delete", s.deleteNote)
	})
}

// requireSession sends visitors without a live session to the login page.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.session(r)
		if !ok {
			s.clearCookie(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), id)))
	})
}

func (s *Server) session(r *http.Request) (models.Identity, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return models.Identity{}, false
	}
	id, err := s.verifier.Verify(cookie.Value)
	if err != nil {
		return models.Identity{}, false
	}
	return id, true
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.session(r); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login", page{Title: "Log in"})
}

func (s *Server) registerPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.session(r); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "register", page{Title: "Register"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	email, password := r.PostFormValue("email"), r.PostFormValue("password")
	session, err := s.auth.Login(r.Context(), email, password)
	if err != nil {
		s.renderError(w, r, "login", page{Title: "Log in", Email: email}, err)
		return
	}
	s.startSession(w, r, session)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	email, password := r.PostFormValue("email"), r.PostFormValue("password")
	session, err := s.auth.Register(r.Context(), email, password)
	if err != nil {
		s.renderError(w, r, "register", page{Title: "Register", Email: email}, err)
		return
	}
	s.startSession(w, r, session)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.clearCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	s.renderDashboard(w, r, http.StatusOK, noteForm{}, "")
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	form := noteForm{Title: r.PostFormValue("title"), Description: r.PostFormValue("description")}

	if _, err := s.notes.Create(r.Context(), id, form.Title, form.Description); err != nil {
		s.renderDashboard(w, r, s.status(r, err), form, errs.PublicMessage(err))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())

	if err := s.notes.Delete(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		s.renderDashboard(w, r, s.status(r, err), noteForm{}, errs.PublicMessage(err))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, status int, form noteForm, message string) {
	id, _ := middleware.IdentityFromContext(r.Context())

	notes, err := s.notes.List(r.Context(), id)
	if err != nil {
		logger.FromRequest(s.log, r).WithError(err).Error("failed to list notes")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	views := make([]noteView, 0, len(notes))
	for _, n := range notes {
		views = append(views, noteView{Note: n, HTML: s.markdown(n.Description)})
	}
	s.render(w, r, status, "dashboard", page{
		Title: "Your notes",
		User:  &id,
		Error: message,
		Form:  form,
		Notes: views,
	})
}

// markdown renders text with raw HTML escaped. On failure the text is
// shown as-is.
func (s *Server) markdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, session service.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, name string, p page, err error) {
	p.Error = errs.PublicMessage(err)
	s.render(w, r, s.status(r, err), name, p)
}

// status maps err to a response code and logs internal failures.
func (s *Server) status(r *http.Request, err error) int {
	status := errs.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.FromRequest(s.log, r).WithError(err).Error("request failed")
	}
	return status
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data page) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		logger.FromRequest(s.log, r).WithError(err).Error("failed to render template")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
