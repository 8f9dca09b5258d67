// Package triageapi exposes the triage service over HTTP.
package triageapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

// TriageService defines the business operations triageapi needs.
type TriageService interface {
	Submit(ctx context.Context, in triage.Input) (*triage.SubmitResult, error)
	Get(ctx context.Context, id string) (*triage.Result, bool, error)
	CreateIssue(ctx context.Context, id string) (*triage.Result, error)
	Stats(ctx context.Context) (map[triage.Decision]int, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/reports", a.handleSubmitReport)
		r.Get("/triage/{id}", a.handleGetTriage)
		r.Post("/triage/{id}/issue", a.handleCreateIssue)
		r.Get("/stats", a.handleStats)
	})
}

func (a *API) handleGetTriage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("sentinel.triage.id", id))

	result, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get triage result", "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	span.SetAttributes(
		attribute.String("sentinel.triage.status", string(result.Status)),
		attribute.String("sentinel.triage.decision", string(result.Decision)),
	)
	writeJSON(w, http.StatusOK, result)
}

type issueResponse struct {
	ID       string `json:"id"`
	IssueKey string `json:"issue_key"`
	IssueURL string `json:"issue_url"`
}

func (a *API) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("sentinel.triage.id", id))

	result, err := a.svc.CreateIssue(r.Context(), id)
	switch {
	case errors.Is(err, triage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
		return
	case errors.Is(err, triage.ErrNotTicket):
		writeError(w, http.StatusConflict, "triage result has no ticket to create")
		return
	case errors.Is(err, triage.ErrNoTracker):
		writeError(w, http.StatusServiceUnavailable, "issue tracker not configured")
		return
	case err != nil:
		a.logger.Error(r.Context(), err, "failed to create issue", "id", id)
		writeError(w, http.StatusBadGateway, "issue tracker request failed")
		return
	}

	writeJSON(w, http.StatusCreated, issueResponse{ID: result.ID, IssueKey: result.IssueKey, IssueURL: result.IssueURL})
}

type statsResponse struct {
	Total      int                     `json:"total"`
	ByDecision map[triage.Decision]int `json:"by_decision"`
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := a.svc.Stats(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to load stats")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := statsResponse{ByDecision: map[triage.Decision]int{
		triage.DecisionCreateTicket:       0,
		triage.DecisionDuplicate:          0,
		triage.DecisionNeedsClarification: 0,
		triage.DecisionError:              0,
	}}
	for d, n := range counts {
		resp.ByDecision[d] = n
		resp.Total += n
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
