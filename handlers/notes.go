package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"ziksir-notes/errs"
	"ziksir-notes/middleware"
	"ziksir-notes/models"
)

type NoteManager interface {
	List(ctx context.Context, id models.Identity) ([]models.Note, error)
	Create(ctx context.Context, id models.Identity, title, description string) (models.Note, error)
	Delete(ctx context.Context, id models.Identity, noteID string) error
}

type noteRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type NoteHandler struct {
	notes NoteManager
	log   logrus.FieldLogger
}

func NewNoteHandler(notes NoteManager, log logrus.FieldLogger) *NoteHandler {
	return &NoteHandler{notes: notes, log: log}
}

func (h *NoteHandler) identity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.log, errs.ErrMissingToken)
	}
	return id, ok
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	notes, err := h.notes.List(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req noteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	note, err := h.notes.Create(r.Context(), id, req.Title, req.Description)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.notes.Delete(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
