package httptransport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "vitaex/pkg/domain"
	domainerrors "vitaex/pkg/domain-errors"
	"vitaex/pkg/platform/httputil"
)

type startRunResponse struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

// handleIngest accepts raw health signals. The body is forwarded onto the
// event log untouched; standardization happens inside the pipeline, not at
// the edge.
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, subject, err := readSubjectBody(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	correlationID, err := h.ingest(ctx, subject, body)
	if err != nil {
		h.logger.ErrorContext(ctx, "ingest publish failed", "subject_id", subject.String(), "error", err)
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeUnavailable, "event log unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, startRunResponse{
		CorrelationID: correlationID.String(),
		Status:        "accepted",
	})
}

func (h *Handler) handleStartSimulation(w http.ResponseWriter, r *http.Request) {
	h.startRun(w, r, "simulation")
}

func (h *Handler) handleStartProtocol(w http.ResponseWriter, r *http.Request) {
	h.startRun(w, r, "protocol")
}

// handleKnowledgeImport starts a research import. Reference material carries
// no subject, so no consent rule applies.
func (h *Handler) handleKnowledgeImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 || !json.Valid(body) {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}

	run, err := h.runs.StartRun(ctx, "knowledge_import", id.NewCorrelationID(), "", body)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, startRunResponse{
		CorrelationID: run.CorrelationID.String(),
		Status:        string(run.Status),
	})
}

func (h *Handler) startRun(w http.ResponseWriter, r *http.Request, graph string) {
	ctx := r.Context()

	body, subject, err := readSubjectBody(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	run, err := h.runs.StartRun(ctx, graph, id.NewCorrelationID(), subject, body)
	if err != nil {
		h.logger.WarnContext(ctx, "run admission failed", "graph", graph, "error", err)
		httputil.WriteError(w, err)
		return
	}
	// A consent denial is not an HTTP error: the run was admitted, audited,
	// and abandoned. The caller sees the outcome in the status.
	httputil.WriteJSON(w, http.StatusAccepted, startRunResponse{
		CorrelationID: run.CorrelationID.String(),
		Status:        string(run.Status),
		Reason:        run.Reason,
	})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	correlationID, err := id.ParseCorrelationID(chi.URLParam(r, "correlationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	run, err := h.runs.Run(r.Context(), correlationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

func (h *Handler) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	correlationID, err := id.ParseCorrelationID(chi.URLParam(r, "correlationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	run, err := h.runs.Cancel(r.Context(), correlationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

// readSubjectBody reads the full body and extracts its subject_id field.
func readSubjectBody(r *http.Request) (json.RawMessage, id.SubjectID, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		return nil, "", domainerrors.New(domainerrors.CodeBadRequest, "invalid request body")
	}
	var envelope struct {
		SubjectID string `json:"subject_id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "", domainerrors.New(domainerrors.CodeBadRequest, "invalid request body")
	}
	subject, err := id.ParseSubjectID(envelope.SubjectID)
	if err != nil {
		return nil, "", err
	}
	return body, subject, nil
}
