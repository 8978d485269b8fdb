package httptransport

import (
	"net/http"
	"time"

	"vitaex/internal/audit"
	id "vitaex/pkg/domain"
	domainerrors "vitaex/pkg/domain-errors"
	"vitaex/pkg/platform/httputil"
)

type auditEntryResponse struct {
	ID            string         `json:"id"`
	CorrelationID string         `json:"correlation_id"`
	Actor         string         `json:"actor"`
	Action        string         `json:"action"`
	SubjectID     string         `json:"subject_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Decision      string         `json:"decision"`
	Detail        map[string]any `json:"detail,omitempty"`
}

// handleAuditTrail serves the trail for one run or one subject. Exactly one
// of correlation_id and subject_id must be given; the audit log is never
// listed unfiltered.
func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		entries []audit.Entry
		err     error
	)
	switch {
	case q.Get("correlation_id") != "" && q.Get("subject_id") != "":
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "pass correlation_id or subject_id, not both"))
		return
	case q.Get("correlation_id") != "":
		var correlationID id.CorrelationID
		correlationID, err = id.ParseCorrelationID(q.Get("correlation_id"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		entries, err = h.audit.ListByCorrelation(ctx, correlationID)
	case q.Get("subject_id") != "":
		var subject id.SubjectID
		subject, err = id.ParseSubjectID(q.Get("subject_id"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		entries, err = h.audit.ListBySubject(ctx, subject)
	default:
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "correlation_id or subject_id is required"))
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "audit trail read failed", "error", err)
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeInternal, "audit read failed"))
		return
	}

	out := make([]auditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = auditEntryResponse{
			ID:            e.ID.String(),
			CorrelationID: e.CorrelationID.String(),
			Actor:         e.Actor,
			Action:        e.Action,
			SubjectID:     e.SubjectID.String(),
			Timestamp:     e.Timestamp,
			Decision:      string(e.Decision),
			Detail:        e.Detail,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}
