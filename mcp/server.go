package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"ziksir-notes/errs"
	"ziksir-notes/logger"
	"ziksir-notes/middleware"
	"ziksir-notes/models"
)

type NoteService interface {
	List(ctx context.Context, id models.Identity) ([]models.Note, error)
	Create(ctx context.Context, id models.Identity, title, description string) (models.Note, error)
	Get(ctx context.Context, id models.Identity, noteID string) (models.Note, error)
	Delete(ctx context.Context, id models.Identity, noteID string) error
}

// NewServer creates an MCP server whose tools act on the notes of the
// authenticated caller. Unexpected failures are logged to log.
func NewServer(svc NoteService, version string, log logrus.FieldLogger) *server.MCPServer {
	s := server.NewMCPServer(
		"Ziksir Notes",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("list_notes",
			mcp.WithDescription("List the caller's notes, oldest first."),
		),
		handleListNotes(svc, log),
	)

	s.AddTool(
		mcp.NewTool("get_note",
			mcp.WithDescription("Get one of the caller's notes by id."),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("The note id (UUID)"),
			),
		),
		handleGetNote(svc, log),
	)

	s.AddTool(
		mcp.NewTool("create_note",
			mcp.WithDescription("Create a note. Title and description must not be blank."),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Short note title"),
			),
			mcp.WithString("description",
				mcp.Required(),
				mcp.Description("Note body, Markdown allowed"),
			),
		),
		handleCreateNote(svc, log),
	)

	s.AddTool(
		mcp.NewTool("delete_note",
			mcp.WithDescription("Permanently delete one of the caller's notes."),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("The note id (UUID)"),
			),
		),
		handleDeleteNote(svc, log),
	)

	return s
}

// NewHTTPHandler serves s over streamable HTTP. Mount it behind
// middleware.RequireAuth so every call carries an identity. The request id
// is carried over for logging.
func NewHTTPHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				ctx = context.WithValue(ctx, chimw.RequestIDKey, reqID)
			}
			if id, ok := middleware.IdentityFromContext(r.Context()); ok {
				return middleware.WithIdentity(ctx, id)
			}
			return ctx
		}),
	)
}

func handleListNotes(svc NoteService, log logrus.FieldLogger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return mcp.NewToolResultError(errs.ErrMissingToken.Error()), nil
		}

		notes, err := svc.List(ctx, id)
		if err != nil {
			return toolError(ctx, log, "failed to list notes", err), nil
		}
		return jsonResult(notes), nil
	}
}

func handleGetNote(svc NoteService, log logrus.FieldLogger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return mcp.NewToolResultError(errs.ErrMissingToken.Error()), nil
		}
		noteID, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		note, err := svc.Get(ctx, id, noteID)
		if err != nil {
			return toolError(ctx, log, "failed to get note", err), nil
		}
		return jsonResult(note), nil
	}
}

func handleCreateNote(svc NoteService, log logrus.FieldLogger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return mcp.NewToolResultError(errs.ErrMissingToken.Error()), nil
		}

		note, err := svc.Create(ctx, id, req.GetString("title", ""), req.GetString("description", ""))
		if err != nil {
			return toolError(ctx, log, "failed to create note", err), nil
		}
		return jsonResult(note), nil
	}
}

func handleDeleteNote(svc NoteService, log logrus.FieldLogger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return mcp.NewToolResultError(errs.ErrMissingToken.Error()), nil
		}
		noteID, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		if err := svc.Delete(ctx, id, noteID); err != nil {
			return toolError(ctx, log, "failed to delete note", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("deleted note %s", noteID)), nil
	}
}

// toolError reports err to the model without leaking internal details.
// Internal failures are logged with the request id.
func toolError(ctx context.Context, log logrus.FieldLogger, prefix string, err error) *mcp.CallToolResult {
	if errs.HTTPStatus(err) == http.StatusInternalServerError {
		logger.FromContext(log, ctx).WithError(err).Error(prefix)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", prefix, errs.PublicMessage(err)))
}

func jsonResult(v any) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data))
}
