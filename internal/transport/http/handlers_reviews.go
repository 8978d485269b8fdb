package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "vitaex/pkg/domain"
	domainerrors "vitaex/pkg/domain-errors"
	"vitaex/pkg/platform/httputil"
	"vitaex/pkg/requestcontext"
)

type decideReviewRequest struct {
	Reviewer string `json:"reviewer,omitempty"`
	Approve  bool   `json:"approve"`
	Comment  string `json:"comment,omitempty"`
}

func (h *Handler) handleDecideReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	correlationID, err := id.ParseCorrelationID(chi.URLParam(r, "correlationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req decideReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}
	reviewer := req.Reviewer
	if reviewer == "" {
		// Fall back to the authenticated actor header.
		if actor := requestcontext.Actor(ctx); actor != "api" && actor != "system" {
			reviewer = actor
		}
	}

	review, err := h.reviews.Decide(ctx, correlationID, reviewer, req.Approve, req.Comment)
	if err != nil {
		h.logger.WarnContext(ctx, "review decision failed",
			"correlation_id", correlationID.String(),
			"reviewer", reviewer,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, review)
}

func (h *Handler) handleGetReview(w http.ResponseWriter, r *http.Request) {
	correlationID, err := id.ParseCorrelationID(chi.URLParam(r, "correlationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	review, err := h.reviews.Review(r.Context(), correlationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, review)
}

func (h *Handler) handleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.Pending(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}
