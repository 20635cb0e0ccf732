package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"diagnostics/internal/logger"
	"diagnostics/internal/model"
	"diagnostics/internal/service"
	"diagnostics/internal/transport/rest/middleware"
)

// Engine is the part of the session engine the HTTP surface needs
type Engine interface {
	Initialize(ctx context.Context, studentID string) ([]model.SessionSummary, error)
	GetCurrentQuestion(ctx context.Context, sessionID string) (*model.CurrentQuestionResult, error)
	AbandonSession(ctx context.Context, sessionID string) (*model.SessionSummary, error)
	SessionForStudent(ctx context.Context, sessionID, studentID string) (*model.DiagnosticSession, error)
}

type AnswerSubmitter interface {
	SubmitAnswer(ctx context.Context, sessionID string, req model.SubmitAnswerRequest) (*model.SubmitAnswerResult, error)
}

type StatusReader interface {
	GetStatus(ctx context.Context, studentID string) (*model.DiagnosticStatus, error)
}

// DiagnosticHandler handles the student-facing diagnostic endpoints
type DiagnosticHandler struct {
	engine    Engine
	responses AnswerSubmitter
	status    StatusReader
	log       *logger.Logger
}

// NewDiagnosticHandler creates a new diagnostic handler
func NewDiagnosticHandler(engine Engine, responses AnswerSubmitter, status StatusReader, log *logger.Logger) *DiagnosticHandler {
	return &DiagnosticHandler{
		engine:    engine,
		responses: responses,
		status:    status,
		log:       log.With("handler", "DiagnosticHandler"),
	}
}

// Initialize handles POST /v1/diagnostics/initialize
func (h *DiagnosticHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	studentID := middleware.GetStudentID(r.Context())

	sessions, err := h.engine.Initialize(r.Context(), studentID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// Status handles GET /v1/diagnostics/status
func (h *DiagnosticHandler) Status(w http.ResponseWriter, r *http.Request) {
	studentID := middleware.GetStudentID(r.Context())

	status, err := h.status.GetStatus(r.Context(), studentID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// CurrentQuestion handles GET /v1/diagnostics/sessions/{sessionId}/question
func (h *DiagnosticHandler) CurrentQuestion(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	result, err := h.engine.GetCurrentQuestion(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// SubmitAnswer handles POST /v1/diagnostics/sessions/{sessionId}/answers
func (h *DiagnosticHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, service.Code(err), "invalid request body")
		return
	}

	result, err := h.responses.SubmitAnswer(r.Context(), sessionID, req)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Abandon handles POST /v1/diagnostics/sessions/{sessionId}/abandon
func (h *DiagnosticHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	summary, err := h.engine.AbandonSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ownedSession answers 404 for sessions of other students so their ids do not leak
func (h *DiagnosticHandler) ownedSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := mux.Vars(r)["sessionId"]
	studentID := middleware.GetStudentID(r.Context())

	if _, err := h.engine.SessionForStudent(r.Context(), sessionID, studentID); err != nil {
		writeServiceError(w, h.log, err)
		return "", false
	}
	return sessionID, true
}
