// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services, and encode; business rules live behind the service
// interfaces so transport concerns stay isolated.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vitaex/internal/agents/oversight"
	"vitaex/internal/audit"
	"vitaex/internal/consent"
	"vitaex/internal/orchestrator"
	id "vitaex/pkg/domain"
	"vitaex/pkg/platform/httputil"
)

// ConsentService is the consent surface the handlers need.
type ConsentService interface {
	Grant(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, scope id.Scope, expiresIn time.Duration) (consent.Grant, error)
	Revoke(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose) error
	Check(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, required id.Scope) (consent.Decision, error)
}

// RunService starts and inspects task runs.
type RunService interface {
	StartRun(ctx context.Context, graph string, correlationID id.CorrelationID, subject id.SubjectID, trigger json.RawMessage) (orchestrator.Run, error)
	Run(ctx context.Context, correlationID id.CorrelationID) (orchestrator.Run, error)
	Cancel(ctx context.Context, correlationID id.CorrelationID) (orchestrator.Run, error)
}

// ReviewService is the practitioner review queue.
type ReviewService interface {
	Decide(ctx context.Context, correlationID id.CorrelationID, reviewer string, approve bool, comment string) (oversight.Review, error)
	Review(ctx context.Context, correlationID id.CorrelationID) (oversight.Review, error)
	Pending(ctx context.Context) ([]oversight.Review, error)
}

// AuditReader serves the read side of the audit trail.
type AuditReader interface {
	ListByCorrelation(ctx context.Context, correlationID id.CorrelationID) ([]audit.Entry, error)
	ListBySubject(ctx context.Context, subject id.SubjectID) ([]audit.Entry, error)
}

// AgentRegistry reports whether the agent runtimes are subscribed and
// consuming. Readiness is both this and the event log being reachable.
type AgentRegistry interface {
	Ready() bool
	AgentIDs() []string
}

// Handler bundles the services the HTTP surface exposes.
type Handler struct {
	logger  *slog.Logger
	consent ConsentService
	runs    RunService
	reviews ReviewService
	audit   AuditReader
	ingest  IngestFunc
	agents  AgentRegistry
	ready   func(context.Context) error
}

// IngestFunc publishes one raw ingestion event and returns its correlation id.
type IngestFunc func(ctx context.Context, subject id.SubjectID, payload json.RawMessage) (id.CorrelationID, error)

func NewHandler(logger *slog.Logger, consentSvc ConsentService, runs RunService, reviews ReviewService, auditReader AuditReader, ingest IngestFunc, agents AgentRegistry, ready func(context.Context) error) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		consent: consentSvc,
		runs:    runs,
		reviews: reviews,
		audit:   auditReader,
		ingest:  ingest,
		agents:  agents,
		ready:   ready,
	}
}

// NewRouter wires all public endpoints onto one chi router. metricsHandler is
// mounted at /metrics so main decides which registry is exposed.
func NewRouter(h *Handler, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/consent", h.handleGrantConsent)
		r.Post("/consent/revoke", h.handleRevokeConsent)
		r.Get("/consent/check", h.handleCheckConsent)

		r.Post("/ingest", h.handleIngest)
		r.Post("/simulations", h.handleStartSimulation)
		r.Post("/protocols", h.handleStartProtocol)
		r.Post("/knowledge/imports", h.handleKnowledgeImport)

		r.Get("/runs/{correlationID}", h.handleGetRun)
		r.Post("/runs/{correlationID}/cancel", h.handleCancelRun)

		r.Get("/reviews", h.handleListReviews)
		r.Get("/reviews/{correlationID}", h.handleGetReview)
		r.Post("/reviews/{correlationID}/decisions", h.handleDecideReview)

		r.Get("/audit", h.handleAuditTrail)
	})

	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	if h.agents != nil && !h.agents.Ready() {
		h.logger.WarnContext(r.Context(), "agent registry not consuming")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	resp := struct {
		Status string   `json:"status"`
		Agents []string `json:"agents,omitempty"`
	}{Status: "ready"}
	if h.agents != nil {
		resp.Agents = h.agents.AgentIDs()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
