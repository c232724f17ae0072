package handlers

import (
	"fmt"
	"net/http"
	"strings"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/expr"
	"github.com/relicta-tech/deke/internal/httpserver/dto"
)

func (h *Handlers) evalRequest(r *http.Request) (dto.EvalRequest, error) {
	var req dto.EvalRequest
	if err := h.decode(r, &req); err != nil {
		return req, err
	}
	if strings.TrimSpace(req.Program) == "" {
		return req, dekeerrors.Validation("handlers.evalRequest", "program is required")
	}
	return req, nil
}

// Eval evaluates a program against an optional context.
func (h *Handlers) Eval(w http.ResponseWriter, r *http.Request) {
	req, err := h.evalRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.executor.EvalBytes(req.Program, req.Context)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := dto.EvalResponse{Program: req.Program, Kind: expr.KindOf(result), Result: result.String()}
	if v, err := expr.ToJSON(result); err == nil {
		resp.Result = v
	}
	writeJSON(w, http.StatusOK, resp)
}

// Check runs a policy and explains it when it fails. A failing policy is
// still a 200; Pass carries the verdict.
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	req, err := h.evalRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	pass, err := h.executor.RunBytes(req.Program, req.Context)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := dto.CheckResponse{Program: req.Program, Pass: pass}
	if !pass {
		resp.Explanation, err = h.executor.Explain(req.Program, labelOr(req.Label), req.Context)
		if err != nil {
			h.logger.DebugContext(r.Context(), "no explanation", "program", req.Program, "error", err)
			resp.Explanation = fmt.Sprintf("policy %s did not pass", req.Program)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Explain renders the English explanation of a failing policy.
func (h *Handlers) Explain(w http.ResponseWriter, r *http.Request) {
	req, err := h.evalRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	explanation, err := h.executor.Explain(req.Program, labelOr(req.Label), req.Context)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ExplainResponse{Program: req.Program, Explanation: explanation})
}

func labelOr(label string) string {
	if label == "" {
		return "the value"
	}
	return label
}
