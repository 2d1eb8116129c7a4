// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-assistant/internal/conversation"
	"github.com/capitalize-ai/meeting-assistant/internal/middleware"
	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/service"
	"github.com/capitalize-ai/meeting-assistant/internal/workflow"
	"github.com/capitalize-ai/meeting-assistant/pkg/logger"
)

// Sessions is the session API the handlers serve.
type Sessions interface {
	Create(ctx context.Context, user model.User) (*model.WorkflowState, error)
	State(ctx context.Context, user model.User, id string) (*model.WorkflowState, error)
	ProcessMessage(ctx context.Context, user model.User, id, content string, md *model.MessageMetadata) (workflow.Response, error)
	AdvanceToStep(ctx context.Context, user model.User, id string, target model.Step, data *model.MessageMetadata) (workflow.Response, error)
	ProcessStepTransition(ctx context.Context, user model.User, id string, from, to model.Step) (workflow.Response, error)
	CompressedContext(ctx context.Context, user model.User, id string) (conversation.CompressedContext, error)
}

// MessageRequest is the body of POST /sessions/{id}/messages.
type MessageRequest struct {
	Content  string                 `json:"content" validate:"max=100000"`
	Metadata *model.MessageMetadata `json:"metadata,omitempty"`
}

// AdvanceRequest is the body of POST /sessions/{id}/advance.
type AdvanceRequest struct {
	Step model.Step             `json:"step" validate:"required"`
	Data *model.MessageMetadata `json:"data,omitempty"`
}

// TransitionRequest is the body of POST /sessions/{id}/transitions.
type TransitionRequest struct {
	From model.Step `json:"from" validate:"required"`
	To   model.Step `json:"to" validate:"required"`
}

// SessionHandler handles session endpoints.
type SessionHandler struct {
	sessions Sessions
	validate *validator.Validate
	logger   *logger.Logger

	events    EventReader
	heartbeat time.Duration
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions Sessions, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   log,
	}
}

// Routes mounts the session endpoints on r.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/messages", h.SendMessage)
		r.Post("/advance", h.Advance)
		r.Post("/transitions", h.Transition)
		r.Get("/context", h.Context)
		if h.events != nil {
			r.Get("/events", h.Events)
		}
	})
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	state, err := h.sessions.Create(r.Context(), user)
	if err != nil {
		h.logger.Error("failed to create session", zap.String("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.target(w, r)
	if !ok {
		return
	}
	state, err := h.sessions.State(r.Context(), user, id)
	if err != nil {
		h.fail(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// SendMessage handles POST /api/v1/sessions/{id}/messages
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.target(w, r)
	if !ok {
		return
	}

	var req MessageRequest
	if err := decode(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Content == "" && req.Metadata == nil {
		writeError(w, http.StatusBadRequest, "content or metadata is required")
		return
	}

	resp, err := h.sessions.ProcessMessage(r.Context(), user, id, req.Content, req.Metadata)
	if err != nil {
		h.fail(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Advance handles POST /api/v1/sessions/{id}/advance
func (h *SessionHandler) Advance(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.target(w, r)
	if !ok {
		return
	}

	var req AdvanceRequest
	if err := decode(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.sessions.AdvanceToStep(r.Context(), user, id, req.Step, req.Data)
	if err != nil {
		h.fail(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Transition handles POST /api/v1/sessions/{id}/transitions
func (h *SessionHandler) Transition(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.target(w, r)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := decode(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.sessions.ProcessStepTransition(r.Context(), user, id, req.From, req.To)
	if err != nil {
		h.fail(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Context handles GET /api/v1/sessions/{id}/context
func (h *SessionHandler) Context(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.target(w, r)
	if !ok {
		return
	}
	cc, err := h.sessions.CompressedContext(r.Context(), user, id)
	if err != nil {
		h.fail(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, cc)
}

// target resolves the caller and the session id of the request, writing
// the error response when either is missing.
func (h *SessionHandler) target(w http.ResponseWriter, r *http.Request) (model.User, string, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return model.User{}, "", false
	}
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return model.User{}, "", false
	}
	return user, id, true
}

func (h *SessionHandler) fail(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, service.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	h.logger.Error("session operation failed", zap.String("session_id", id), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
