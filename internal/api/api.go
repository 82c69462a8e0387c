// Package api serves the REST surface of Rehearse: creating interviews,
// reading them back and inspecting the model rankings.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/rehearse/internal/catalog"
	"github.com/MrWong99/rehearse/internal/store"
	"github.com/MrWong99/rehearse/pkg/types"
)

const (
	maxRequestBody = 64 << 10

	// maxQuestionBudget bounds client-chosen budgets.
	maxQuestionBudget = 50
)

// Rankings is the part of the model catalogue the API exposes.
type Rankings interface {
	Rankings(ctx context.Context) (*catalog.Snapshot, error)
	ForceRefresh(ctx context.Context) (*catalog.Snapshot, error)
}

// InterviewType is one kind of interview a client may request.
type InterviewType struct {
	// ExpectedQuestions is the default question budget.
	ExpectedQuestions int
}

// Handler serves the /v1 REST routes.
type Handler struct {
	sessions store.Store
	rankings Rankings
	types    map[string]InterviewType

	defaultType       string
	defaultDifficulty types.Difficulty

	log *slog.Logger
	now func() time.Time
}

// Option configures a [Handler].
type Option func(*Handler)

// WithInterviewTypes sets the accepted interview types. defaultName is used
// when a request names none.
func WithInterviewTypes(defaultName string, t map[string]InterviewType) Option {
	return func(h *Handler) {
		h.defaultType = defaultName
		h.types = t
	}
}

// WithDefaultDifficulty sets the difficulty used when a request names none.
// Default: standard.
func WithDefaultDifficulty(d types.Difficulty) Option {
	return func(h *Handler) { h.defaultDifficulty = d }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler returns a Handler.
func NewHandler(sessions store.Store, rankings Rankings, opts ...Option) *Handler {
	h := &Handler{
		sessions:          sessions,
		rankings:          rankings,
		types:             map[string]InterviewType{"general": {ExpectedQuestions: 5}},
		defaultType:       "general",
		defaultDifficulty: types.DifficultyStandard,
		log:               slog.Default(),
		now:               time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds the /v1 routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/interviews", h.createInterview)
	mux.HandleFunc("GET /v1/interviews/{id}", h.getInterview)
	mux.HandleFunc("GET /v1/models", h.getModels)
	mux.HandleFunc("POST /v1/models/refresh", h.refreshModels)
}

// ─── Interviews ──────────────────────────────────────────────────────────────

// CreateRequest is the body of POST /v1/interviews.
type CreateRequest struct {
	InterviewType  string            `json:"interview_type"`
	Difficulty     types.Difficulty  `json:"difficulty"`
	QuestionBudget int               `json:"question_budget"`
	Role           types.RoleContext `json:"role"`
}

// CreateResponse is the body returned by POST /v1/interviews.
type CreateResponse struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) createInterview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.newSession(req)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.sessions.CreateSession(r.Context(), sess); err != nil {
		h.log.Error("api: create session failed", "err", err)
		Error(w, http.StatusInternalServerError, "could not create interview")
		return
	}

	h.log.Info("interview created",
		"session_id", sess.ID,
		"interview_type", sess.InterviewType,
		"difficulty", sess.Difficulty,
		"question_budget", sess.QuestionBudget,
	)
	JSON(w, http.StatusCreated, CreateResponse{SessionID: sess.ID})
}

// newSession validates req and fills defaults.
func (h *Handler) newSession(req CreateRequest) (store.Session, error) {
	name := strings.TrimSpace(req.InterviewType)
	if name == "" {
		name = h.defaultType
	}
	it, ok := h.types[name]
	if !ok {
		return store.Session{}, fmt.Errorf("unknown interview_type %q", name)
	}

	diff := req.Difficulty
	if diff == "" {
		diff = h.defaultDifficulty
	}
	if !diff.IsValid() {
		return store.Session{}, fmt.Errorf("unknown difficulty %q", diff)
	}

	budget := req.QuestionBudget
	switch {
	case budget < 0 || budget > maxQuestionBudget:
		return store.Session{}, fmt.Errorf("question_budget must be between 0 and %d", maxQuestionBudget)
	case budget == 0:
		budget = it.ExpectedQuestions
	}

	now := h.now().UTC()
	return store.Session{
		ID:             uuid.NewString(),
		InterviewType:  name,
		Difficulty:     diff,
		Role:           req.Role,
		QuestionBudget: budget,
		Status:         store.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (h *Handler) getInterview(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.GetSession(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "interview not found")
	case err != nil:
		h.log.Error("api: get session failed", "err", err)
		Error(w, http.StatusInternalServerError, "could not load interview")
	default:
		JSON(w, http.StatusOK, sess)
	}
}

// ─── Models ──────────────────────────────────────────────────────────────────

func (h *Handler) getModels(w http.ResponseWriter, r *http.Request) {
	snap, err := h.rankings.Rankings(r.Context())
	if err != nil {
		h.log.Warn("api: rankings unavailable", "err", err)
		Error(w, http.StatusServiceUnavailable, "model rankings unavailable")
		return
	}
	JSON(w, http.StatusOK, snap)
}

// refreshModels answers 200 with the new snapshot, or 502 with the previous
// one when the provider could not be reached.
func (h *Handler) refreshModels(w http.ResponseWriter, r *http.Request) {
	snap, err := h.rankings.ForceRefresh(r.Context())
	switch {
	case err == nil:
		JSON(w, http.StatusOK, snap)
	case snap != nil:
		h.log.Warn("api: refresh failed, previous rankings kept", "err", err)
		JSON(w, http.StatusBadGateway, snap)
	default:
		h.log.Warn("api: refresh failed", "err", err)
		Error(w, http.StatusServiceUnavailable, "model rankings unavailable")
	}
}

// ─── Responses ───────────────────────────────────────────────────────────────

// JSON writes v as JSON with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}

// Error writes a JSON error body.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
