package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/interview"
	"github.com/pavelanni/interviewer/internal/model"
)

const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	service  *interview.Service
	sessions *SessionIssuer
	config   model.ServerConfig
}

// New creates a new Handler.
func New(svc *interview.Service, cfg model.ServerConfig) (*Handler, error) {
	sessions, err := NewSessionIssuer(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	return &Handler{service: svc, sessions: sessions, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.sessionMiddleware)
		r.Get("/generate-question", h.handleGenerateQuestion)
		r.Get("/get-question", h.handleGetQuestions)
		r.Post("/verify-answer", h.handleVerifyAnswer)
		r.Get("/get-feedback", h.handleGetFeedback)
	})

	if h.config.StaticDir != "" {
		var fs http.Handler = http.FileServer(http.Dir(h.config.StaticDir))
		if h.config.BasePath != "" {
			fs = http.StripPrefix(h.config.BasePath, fs)
		}
		r.Handle("/*", fs)
	}
}

type generateResponse struct {
	QuestionID string `json:"questionId"`
	Question   string `json:"question"`
}

type questionsResponse struct {
	Questions []model.QuestionStub `json:"questions"`
}

type verifyRequest struct {
	QuestionID string `json:"questionId"`
	UserInput  string `json:"userInput"`
}

type feedbackResponse struct {
	FeedbackSummary []model.FeedbackEntry `json:"feedbackSummary"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleGenerateQuestion(w http.ResponseWriter, r *http.Request) {
	sessionID := model.SessionIDFromContext(r.Context())
	skill := r.URL.Query().Get("skill")

	stub, err := h.service.Generate(r.Context(), sessionID, skill)
	if err != nil {
		slog.Error("failed to generate question", "session", sessionID, "skill", skill, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "GenerateFailed")
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{QuestionID: stub.ID, Question: stub.Question})
}

func (h *Handler) handleGetQuestions(w http.ResponseWriter, r *http.Request) {
	sessionID := model.SessionIDFromContext(r.Context())

	stubs, err := h.service.Questions(r.Context(), sessionID)
	if err != nil {
		slog.Error("failed to list questions", "session", sessionID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}

	writeJSON(w, http.StatusOK, questionsResponse{Questions: stubs})
}

func (h *Handler) handleVerifyAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID := model.SessionIDFromContext(r.Context())

	var req verifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		slog.Warn("invalid verify request body", "session", sessionID, "error", err)
		h.writeError(w, r, http.StatusBadRequest, "InvalidRequestBody")
		return
	}

	fb, err := h.service.Verify(r.Context(), sessionID, req.QuestionID, req.UserInput)
	switch {
	case errors.Is(err, interview.ErrInvalidReference):
		h.writeError(w, r, http.StatusBadRequest, "InvalidQuestionID")
		return
	case err != nil:
		slog.Error("failed to verify answer", "session", sessionID, "question", req.QuestionID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "FeedbackFailed")
		return
	}

	writeJSON(w, http.StatusOK, fb)
}

func (h *Handler) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	sessionID := model.SessionIDFromContext(r.Context())

	entries, err := h.service.Feedback(r.Context(), sessionID)
	if err != nil {
		slog.Error("failed to list feedback", "session", sessionID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}

	writeJSON(w, http.StatusOK, feedbackResponse{FeedbackSummary: entries})
}

// writeError writes a localized {"error": ...} body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, errorResponse{Error: appI18n.T(r.Context(), msgID)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
