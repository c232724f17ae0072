// Package policy loads policy sets: named groups of analyses with a shared
// risk policy, stored as YAML, TOML, or single-expression .deke files.
package policy

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/relicta-tech/deke/internal/analysis"
	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/expr"
)

// Set is a policy set.
type Set struct {
	Name string `json:"name" yaml:"name" toml:"name"`

	// Requires is a semver constraint on the policy language version.
	Requires string `json:"requires,omitempty" yaml:"requires,omitempty" toml:"requires,omitempty"`

	RiskPolicy string              `json:"risk_policy,omitempty" yaml:"risk_policy,omitempty" toml:"risk_policy,omitempty"`
	Analyses   []analysis.Analysis `json:"analyses" yaml:"analyses" toml:"analyses"`

	// Source is the file the set was loaded from.
	Source string `json:"source,omitempty" yaml:"-" toml:"-"`
}

// Validate checks the set's names, weights, programs and language
// requirement. Every problem is reported in the error's "problems" detail.
func (s *Set) Validate() error {
	const op = "policy.Validate"

	var problems []string
	if s.Name == "" {
		problems = append(problems, "name: required")
	}
	if err := CheckRequires(s.Requires); err != nil {
		problems = append(problems, err.Error())
	}
	if err := analysis.Validate(s.Analyses); err != nil {
		problems = append(problems, err.Error())
	}
	for _, a := range s.Analyses {
		if a.Policy == "" {
			continue
		}
		if _, err := expr.Parse(a.Policy); err != nil {
			problems = append(problems, fmt.Sprintf("analysis %q: %v", a.Name, err))
		}
	}
	if s.RiskPolicy != "" {
		if _, err := expr.Parse(s.RiskPolicy); err != nil {
			problems = append(problems, fmt.Sprintf("risk_policy: %v", err))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	msg := problems[0]
	if len(problems) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(problems)-1)
	}
	return dekeerrors.Validation(op, fmt.Sprintf("policy set %q: %s", s.Name, msg)).
		WithDetail("problems", problems)
}

// EffectiveRiskPolicy returns the set's risk policy or fallback when unset.
func (s *Set) EffectiveRiskPolicy(fallback string) string {
	if s.RiskPolicy != "" {
		return s.RiskPolicy
	}
	if fallback != "" {
		return fallback
	}
	return analysis.DefaultRiskPolicy
}

// CheckRequires reports whether the language version satisfies constraint.
// An empty constraint is always satisfied.
func CheckRequires(constraint string) error {
	const op = "policy.CheckRequires"

	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return dekeerrors.ValidationWrap(err, op, fmt.Sprintf("requires: invalid constraint %q", constraint))
	}
	v := semver.MustParse(expr.LanguageVersion)
	if ok, errs := c.Validate(v); !ok {
		msg := fmt.Sprintf("requires: language version %s does not satisfy %q", v, constraint)
		if len(errs) > 0 {
			msg = fmt.Sprintf("%s: %v", msg, errs[0])
		}
		return dekeerrors.Validation(op, msg)
	}
	return nil
}
