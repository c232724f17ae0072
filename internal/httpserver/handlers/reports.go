package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/history"
	"github.com/relicta-tech/deke/internal/httpserver/dto"
)

func (h *Handlers) requireHistory(op string) error {
	if h.history == nil {
		return dekeerrors.NotFound(op, "report history is disabled")
	}
	return nil
}

// ListReports lists stored run reports, newest first. It accepts the
// policy_set and limit query parameters.
func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.ListReports"

	if err := h.requireHistory(op); err != nil {
		h.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := history.Filter{PolicySet: q.Get("policy_set")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.writeError(w, r, dekeerrors.Validation(op, "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	summaries, err := h.history.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse[history.Summary]{Data: summaries, Total: len(summaries)})
}

// GetReport returns one stored report.
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.GetReport"

	if err := h.requireHistory(op); err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := h.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
