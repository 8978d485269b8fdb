package httptransport

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	id "vitaex/pkg/domain"
	domainerrors "vitaex/pkg/domain-errors"
	"vitaex/pkg/platform/httputil"
)

type grantConsentRequest struct {
	SubjectID  string   `json:"subject_id"`
	Purpose    string   `json:"purpose"`
	Scope      []string `json:"scope"`
	TTLSeconds int64    `json:"ttl_seconds,omitempty"`
}

type consentResponse struct {
	SubjectID string    `json:"subject_id"`
	Purpose   string    `json:"purpose"`
	Scope     []string  `json:"scope"`
	GrantedAt time.Time `json:"granted_at"`
	ExpiresAt string    `json:"expires_at,omitempty"`
}

func (h *Handler) handleGrantConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req grantConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}
	subject, err := id.ParseSubjectID(req.SubjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	purpose, err := id.ParseConsentPurpose(req.Purpose)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	scope, err := id.ParseScope(req.Scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	grant, err := h.consent.Grant(ctx, subject, purpose, scope, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.logger.WarnContext(ctx, "consent grant failed", "subject_id", subject.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	resp := consentResponse{
		SubjectID: grant.SubjectID.String(),
		Purpose:   grant.Purpose.String(),
		Scope:     grant.Scope.Strings(),
		GrantedAt: grant.GrantedAt,
	}
	if !grant.ExpiresAt.IsZero() {
		resp.ExpiresAt = grant.ExpiresAt.Format(time.RFC3339)
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

type revokeConsentRequest struct {
	SubjectID string `json:"subject_id"`
	Purpose   string `json:"purpose"`
}

func (h *Handler) handleRevokeConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req revokeConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}
	subject, err := id.ParseSubjectID(req.SubjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	purpose, err := id.ParseConsentPurpose(req.Purpose)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.consent.Revoke(ctx, subject, purpose); err != nil {
		h.logger.WarnContext(ctx, "consent revoke failed", "subject_id", subject.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkConsentResponse struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) handleCheckConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject, err := id.ParseSubjectID(r.URL.Query().Get("subject_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	purpose, err := id.ParseConsentPurpose(r.URL.Query().Get("purpose"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	raw := r.URL.Query().Get("scope")
	if raw == "" {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "scope query parameter is required"))
		return
	}
	scope, err := id.ParseScope(strings.Split(raw, ","))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	decision, err := h.consent.Check(ctx, subject, purpose, scope)
	if err != nil {
		h.logger.ErrorContext(ctx, "consent check failed", "subject_id", subject.String(), "error", err)
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeInternal, "consent check failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, checkConsentResponse{Allow: decision.Allow, Reason: decision.Reason})
}
