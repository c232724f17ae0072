package analysis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

func TestParseResults(t *testing.T) {
	results, err := ParseResults([]byte(`{
		"review": {"value": 0.2, "concerns": ["PR #12"]},
		"binary": {"value": [true, false]}
	}`))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "review", results["review"].Analysis)
	assert.JSONEq(t, `0.2`, string(results["review"].Value))
	assert.Equal(t, []string{"PR #12"}, results["review"].Concerns)
	assert.JSONEq(t, `[true, false]`, string(results["binary"].Value))

	_, err = ParseResults([]byte(`[1, 2]`))
	require.Error(t, err)
	assert.True(t, dekeerrors.IsKind(err, dekeerrors.KindValidation))
}

func TestRiskScore(t *testing.T) {
	analyses := []Analysis{
		{Name: "a", Weight: 2},
		{Name: "b"},
		{Name: "c", Weight: 1},
	}
	outcomes := []Outcome{
		{Analysis: "a", Status: StatusFailing},
		{Analysis: "b", Status: StatusPassing},
		{Analysis: "c", Status: StatusErrored},
	}
	assert.InDelta(t, 0.75, RiskScore(analyses, outcomes), 1e-9)
	assert.Zero(t, RiskScore(nil, nil))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		analyses []Analysis
		contains string
	}{
		{"no name", []Analysis{{Policy: "(eq $ 1)"}}, "no name"},
		{"duplicate", []Analysis{{Name: "a", Policy: "#t"}, {Name: "a", Policy: "#t"}}, "duplicate"},
		{"negative weight", []Analysis{{Name: "a", Policy: "#t", Weight: -1}}, "negative weight"},
		{"no policy", []Analysis{{Name: "a"}}, "no policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.analyses)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
	assert.NoError(t, Validate([]Analysis{{Name: "a", Policy: "#t"}}))
}

func TestOutcome_Statement(t *testing.T) {
	assert.Equal(t, "review passed", Outcome{Analysis: "review", Status: StatusPassing}.Statement())
	assert.Equal(t, "review failed: too few reviews",
		Outcome{Analysis: "review", Status: StatusFailing, Message: "too few reviews"}.Statement())
	assert.Equal(t, "review errored: boom",
		Outcome{Analysis: "review", Status: StatusErrored, Message: "boom", Err: errors.New("boom")}.Statement())
}

func TestAnalysis_Label(t *testing.T) {
	assert.Equal(t, "review", Analysis{Name: "review"}.Label())
	assert.Equal(t, "reviews", Analysis{Name: "review", Explanation: "reviews"}.Label())
	assert.Equal(t, 1.0, Analysis{}.EffectiveWeight())
	assert.Equal(t, 2.5, Analysis{Weight: 2.5}.EffectiveWeight())
}
