// Package analysis evaluates named policies against analysis results and
// rates the overall risk of a target.
package analysis

import (
	"encoding/json"
	"fmt"
	"time"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

// DefaultRiskPolicy passes targets whose risk score is at most one half.
const DefaultRiskPolicy = "(lte $ 0.5)"

// Analysis pairs a named policy with the phrase used to explain its failures.
type Analysis struct {
	// Name identifies the analysis and keys its result.
	Name string `json:"name" yaml:"name" toml:"name"`

	// Policy is the program run against the analysis result.
	Policy string `json:"policy" yaml:"policy" toml:"policy"`

	// Explanation labels the value in failure explanations.
	Explanation string `json:"explanation,omitempty" yaml:"explanation,omitempty" toml:"explanation,omitempty"`

	// Weight scales the analysis in the risk score. Zero counts as one.
	Weight float64 `json:"weight,omitempty" yaml:"weight,omitempty" toml:"weight,omitempty"`
}

// EffectiveWeight returns the weight used in risk scoring.
func (a Analysis) EffectiveWeight() float64 {
	if a.Weight == 0 {
		return 1
	}
	return a.Weight
}

// Label returns the explanation label, falling back to the analysis name.
func (a Analysis) Label() string {
	if a.Explanation != "" {
		return a.Explanation
	}
	return a.Name
}

// Result is what an analysis produced for a target.
type Result struct {
	Analysis string          `json:"-"`
	Value    json.RawMessage `json:"value"`
	Concerns []string        `json:"concerns,omitempty"`
}

// ParseResults decodes a results document of the form
// {"<analysis>": {"value": ..., "concerns": [...]}}.
func ParseResults(data []byte) (map[string]Result, error) {
	const op = "analysis.ParseResults"

	var raw map[string]Result
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, dekeerrors.Wrap(err, dekeerrors.KindValidation, op, "decode results")
	}
	for name, r := range raw {
		r.Analysis = name
		raw[name] = r
	}
	return raw, nil
}

// Status is the outcome of one analysis.
type Status string

// Analysis statuses.
const (
	StatusPassing Status = "passing"
	StatusFailing Status = "failing"
	StatusErrored Status = "errored"
)

// Outcome records how one analysis fared.
type Outcome struct {
	Analysis string        `json:"analysis"`
	Status   Status        `json:"status"`
	Policy   string        `json:"policy"`
	Message  string        `json:"message,omitempty"`
	Concerns []string      `json:"concerns,omitempty"`
	Kind     string        `json:"error_kind,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Err      error         `json:"-"`
}

// Statement describes the outcome in one line.
func (o Outcome) Statement() string {
	switch o.Status {
	case StatusPassing:
		return fmt.Sprintf("%s passed", o.Analysis)
	case StatusFailing:
		return fmt.Sprintf("%s failed: %s", o.Analysis, o.Message)
	default:
		return fmt.Sprintf("%s errored: %s", o.Analysis, o.Message)
	}
}

// RecommendationKind is the verdict on a target.
type RecommendationKind string

// Recommendation kinds.
const (
	Pass        RecommendationKind = "pass"
	Investigate RecommendationKind = "investigate"
)

// Recommendation is the risk policy's verdict on a risk score.
type Recommendation struct {
	Kind       RecommendationKind `json:"kind"`
	RiskScore  float64            `json:"risk_score"`
	RiskPolicy string             `json:"risk_policy"`
}

// Statement describes the recommendation in one line.
func (r Recommendation) Statement() string {
	return fmt.Sprintf("risk rated as %.2f, policy was %s", r.RiskScore, r.RiskPolicy)
}

// Report is the result of running a set of analyses.
type Report struct {
	ID             string         `json:"id"`
	PolicySet      string         `json:"policy_set,omitempty"`
	AnalyzedAt     time.Time      `json:"analyzed_at"`
	Passing        []Outcome      `json:"passing"`
	Failing        []Outcome      `json:"failing"`
	Errored        []Outcome      `json:"errored"`
	Recommendation Recommendation `json:"recommendation"`
}

// Outcomes returns every outcome, passing first.
func (r *Report) Outcomes() []Outcome {
	all := make([]Outcome, 0, len(r.Passing)+len(r.Failing)+len(r.Errored))
	all = append(all, r.Passing...)
	all = append(all, r.Failing...)
	return append(all, r.Errored...)
}

// RiskScore is the weighted share of analyses that failed or errored.
// It is zero when the total weight is zero.
func RiskScore(analyses []Analysis, outcomes []Outcome) float64 {
	weights := make(map[string]float64, len(analyses))
	var total float64
	for _, a := range analyses {
		w := a.EffectiveWeight()
		weights[a.Name] = w
		total += w
	}
	if total == 0 {
		return 0
	}

	var risky float64
	for _, o := range outcomes {
		if o.Status != StatusPassing {
			risky += weights[o.Analysis]
		}
	}
	return risky / total
}

// Validate checks that analyses have unique, non-empty names and
// non-negative weights.
func Validate(analyses []Analysis) error {
	const op = "analysis.Validate"

	seen := make(map[string]bool, len(analyses))
	for i, a := range analyses {
		switch {
		case a.Name == "":
			return dekeerrors.Validation(op, fmt.Sprintf("analysis %d has no name", i))
		case seen[a.Name]:
			return dekeerrors.Validation(op, fmt.Sprintf("duplicate analysis %q", a.Name))
		case a.Weight < 0:
			return dekeerrors.Validation(op, fmt.Sprintf("analysis %q has negative weight %g", a.Name, a.Weight))
		case a.Policy == "":
			return dekeerrors.Validation(op, fmt.Sprintf("analysis %q has no policy", a.Name))
		}
		seen[a.Name] = true
	}
	return nil
}
