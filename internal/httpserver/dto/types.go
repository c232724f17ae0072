// Package dto provides data transfer objects for the evaluation API.
package dto

import (
	"encoding/json"

	"github.com/relicta-tech/deke/internal/analysis"
)

// ErrorResponse is an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// EvalRequest is the body of the eval, check and explain endpoints.
type EvalRequest struct {
	Program string          `json:"program"`
	Context json.RawMessage `json:"context,omitempty"`
	// Label names what the context measures in explanations.
	Label string `json:"label,omitempty"`
}

// EvalResponse is the result of evaluating a program.
type EvalResponse struct {
	Program string `json:"program"`
	Kind    string `json:"kind"`
	// Result is the JSON form of the value, or its printed form when the
	// value has no JSON form (functions, spans).
	Result any `json:"result"`
}

// CheckResponse is the result of running a policy.
type CheckResponse struct {
	Program     string `json:"program"`
	Pass        bool   `json:"pass"`
	Explanation string `json:"explanation,omitempty"`
}

// ExplainResponse carries the English explanation of a failing policy.
type ExplainResponse struct {
	Program     string `json:"program"`
	Explanation string `json:"explanation"`
}

// PolicySetDTO is the API representation of a loaded policy set.
type PolicySetDTO struct {
	Name       string              `json:"name"`
	Requires   string              `json:"requires,omitempty"`
	RiskPolicy string              `json:"risk_policy"`
	Source     string              `json:"source,omitempty"`
	Analyses   []analysis.Analysis `json:"analyses"`
}

// RunRequest is the body of the policy set run endpoint. Results maps
// analysis names to their values and concerns.
type RunRequest struct {
	Results json.RawMessage `json:"results"`
}

// ListResponse wraps a list of items.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}
