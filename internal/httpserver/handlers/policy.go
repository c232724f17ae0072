package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relicta-tech/deke/internal/analysis"
	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/httpserver/dto"
	"github.com/relicta-tech/deke/internal/policy"
)

func (h *Handlers) toDTO(s *policy.Set) dto.PolicySetDTO {
	return dto.PolicySetDTO{
		Name:       s.Name,
		Requires:   s.Requires,
		RiskPolicy: s.EffectiveRiskPolicy(h.riskPolicy),
		Source:     s.Source,
		Analyses:   s.Analyses,
	}
}

func (h *Handlers) lookupSet(r *http.Request) (*policy.Set, error) {
	name := chi.URLParam(r, "name")
	set, ok := h.sets[name]
	if !ok {
		return nil, dekeerrors.NotFound("handlers.lookupSet", "no policy set named "+name)
	}
	return set, nil
}

// ListPolicySets lists the loaded policy sets in load order.
func (h *Handlers) ListPolicySets(w http.ResponseWriter, r *http.Request) {
	data := make([]dto.PolicySetDTO, 0, len(h.order))
	for _, name := range h.order {
		data = append(data, h.toDTO(h.sets[name]))
	}
	writeJSON(w, http.StatusOK, dto.ListResponse[dto.PolicySetDTO]{Data: data, Total: len(data)})
}

// GetPolicySet returns a single policy set.
func (h *Handlers) GetPolicySet(w http.ResponseWriter, r *http.Request) {
	set, err := h.lookupSet(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toDTO(set))
}

// RunPolicySet runs a policy set against the posted results and returns
// the report. A report recommending investigation is still a 200.
func (h *Handlers) RunPolicySet(w http.ResponseWriter, r *http.Request) {
	set, err := h.lookupSet(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req dto.RunRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Results) == 0 {
		h.writeError(w, r, dekeerrors.Validation("handlers.RunPolicySet", "results are required"))
		return
	}
	results, err := analysis.ParseResults(req.Results)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	runner := analysis.NewRunner(h.executor,
		analysis.WithRiskPolicy(set.EffectiveRiskPolicy(h.riskPolicy)),
		analysis.WithPolicySet(set.Name),
		analysis.WithConcurrency(h.evaluation.Concurrency),
		analysis.WithLogger(h.logger),
		analysis.WithMetrics(h.metrics),
		analysis.WithTracer(h.tracer),
	)
	report, err := runner.Run(r.Context(), set.Analyses, results)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.history != nil {
		if err := h.history.Save(r.Context(), report); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, report)
}
