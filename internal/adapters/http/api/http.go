// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/panelscore/internal/adapters/mq/queue"
	"github.com/okian/panelscore/internal/adapters/repository"
	service "github.com/okian/panelscore/internal/app"
	"github.com/okian/panelscore/internal/domain/model"
	"github.com/okian/panelscore/pkg/logger"
)

const (
	defaultMaxPanelLimit = 100
	maxRequestBytes      = 1 << 20
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	CreateSubject(ctx context.Context, s model.Subject) (model.Subject, error)
	CreateExpert(ctx context.Context, e model.Expert) (model.Expert, error)
	CreateCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error)

	GetSubject(ctx context.Context, id string) (model.Subject, error)
	GetExpert(ctx context.Context, id string) (model.Expert, error)
	GetCandidate(ctx context.Context, id string) (model.Candidate, error)
	Panel(ctx context.Context, subjectID string, limit int) ([]service.PanelEntry, error)

	Apply(ctx context.Context, subjectID, candidateID string) (service.Submission, error)
	Withdraw(ctx context.Context, subjectID, candidateID string) (service.Submission, error)
	AddExpert(ctx context.Context, subjectID, expertID string) (service.Submission, error)
	RemoveExpert(ctx context.Context, subjectID, expertID string) (service.Submission, error)

	UpdateSubjectSkills(ctx context.Context, id string, skills []model.Skill) (service.Submission, error)
	UpdateExpertSkills(ctx context.Context, id string, skills []model.Skill) (service.Submission, error)
	UpdateCandidateSkills(ctx context.Context, id string, skills []model.Skill) (service.Submission, error)

	DeleteCandidate(ctx context.Context, id string) (service.Submission, error)
	DeleteAllCandidates(ctx context.Context) (service.Submission, error)
	DeleteExpert(ctx context.Context, id string) error
	DeleteSubject(ctx context.Context, id string) (service.Submission, error)

	Trigger(ctx context.Context, j model.Job) (service.Submission, error)
	Export(ctx context.Context, w io.Writer) error
	GetStats(ctx context.Context) (service.Stats, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps          Dependencies
	validate      *validator.Validate
	maxPanelLimit int
	logger        logger.Logger

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// Option configures a Server.
type Option func(*Server)

// WithMaxPanelLimit caps the limit accepted by the ranked panel endpoint.
func WithMaxPanelLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxPanelLimit = n
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:          deps,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		maxPanelLimit: defaultMaxPanelLimit,
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /subjects", MetricsMiddleware(s.handleCreateSubject, "subjects"))
	mux.HandleFunc("GET /subjects/{id}", MetricsMiddleware(s.handleGetSubject, "subject"))
	mux.HandleFunc("DELETE /subjects/{id}", MetricsMiddleware(s.handleDeleteSubject, "subject"))
	mux.HandleFunc("PUT /subjects/{id}/skills", MetricsMiddleware(s.handleSubjectSkills, "subject_skills"))
	mux.HandleFunc("GET /subjects/{id}/experts", MetricsMiddleware(s.handlePanel, "subject_experts"))
	mux.HandleFunc("POST /subjects/{id}/experts", MetricsMiddleware(s.handleAddExpert, "subject_experts"))
	mux.HandleFunc("DELETE /subjects/{id}/experts/{expertId}", MetricsMiddleware(s.handleRemoveExpert, "subject_expert"))
	mux.HandleFunc("POST /subjects/{id}/candidates", MetricsMiddleware(s.handleApply, "subject_candidates"))
	mux.HandleFunc("DELETE /subjects/{id}/candidates/{candidateId}", MetricsMiddleware(s.handleWithdraw, "subject_candidate"))

	mux.HandleFunc("POST /experts", MetricsMiddleware(s.handleCreateExpert, "experts"))
	mux.HandleFunc("GET /experts/{id}", MetricsMiddleware(s.handleGetExpert, "expert"))
	mux.HandleFunc("DELETE /experts/{id}", MetricsMiddleware(s.handleDeleteExpert, "expert"))
	mux.HandleFunc("PUT /experts/{id}/skills", MetricsMiddleware(s.handleExpertSkills, "expert_skills"))

	mux.HandleFunc("POST /candidates", MetricsMiddleware(s.handleCreateCandidate, "candidates"))
	mux.HandleFunc("DELETE /candidates", MetricsMiddleware(s.handleDeleteAllCandidates, "candidates"))
	mux.HandleFunc("GET /candidates/{id}", MetricsMiddleware(s.handleGetCandidate, "candidate"))
	mux.HandleFunc("DELETE /candidates/{id}", MetricsMiddleware(s.handleDeleteCandidate, "candidate"))
	mux.HandleFunc("PUT /candidates/{id}/skills", MetricsMiddleware(s.handleCandidateSkills, "candidate_skills"))

	mux.HandleFunc("POST /recompute", MetricsMiddleware(s.handleRecompute, "recompute"))
	mux.HandleFunc("GET /export", MetricsMiddleware(s.handleExport, "export"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decode reads a JSON body into dst and runs struct validation on it.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// fail maps domain errors to status codes. Unexpected errors are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrBadLimit),
		errors.Is(err, model.ErrInvalidJob), errors.Is(err, model.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrNotAssociated):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrAlreadyAssociated), errors.Is(err, repository.ErrDuplicateID):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, repository.ErrSubjectClosed):
		writeError(w, http.StatusConflict, "subject_closed", err)
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		s.logger.Error(r.Context(), "request failed",
			logger.String("method", r.Method), logger.String("path", r.URL.Path), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", errors.New("internal error"))
	}
}

// submitted answers a mutation: 202 when a recompute was queued or coalesced
// into a pending one, 200 when nothing needed recomputing.
func submitted(w http.ResponseWriter, sub service.Submission) {
	status := http.StatusOK
	if sub.Queued || sub.Coalesced {
		status = http.StatusAccepted
	}
	writeJSON(w, status, sub)
}
