package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/deke/internal/analysis"
	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/history"
)

func TestHistory_RecordsRuns(t *testing.T) {
	dir := inTempDir(t)
	writeTestFile(t, filepath.Join(dir, "deke.yaml"), "history:\n  enabled: true\n")
	writeTestFile(t, filepath.Join(dir, "policies", "supply.yaml"), testPolicySet)
	writeTestFile(t, filepath.Join(dir, "results.json"),
		`{"review": {"value": 0.01}, "binary": {"value": [false]}}`)

	res := runCLI(t, "", "policy", "run", "--results", "results.json")
	require.NoError(t, res.err)
	assert.FileExists(t, filepath.Join(dir, ".deke", "history.db"))

	res = runCLI(t, "", "history", "list", "--json")
	require.NoError(t, res.err)
	var summaries []history.Summary
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "supply-chain", summaries[0].PolicySet)
	assert.Equal(t, analysis.Pass, summaries[0].Recommendation)
	assert.Equal(t, 2, summaries[0].Passing)

	res = runCLI(t, "", "history", "show", summaries[0].ID)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "PASS: ")
	assert.Contains(t, res.stdout, summaries[0].ID)

	res = runCLI(t, "", "history", "list", "--set", "other")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "No reports stored")

	res = runCLI(t, "", "history", "prune", "--older-than", "1ns")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Pruned 1 reports")
}

func TestHistory_DisabledDoesNotRecord(t *testing.T) {
	dir := inTempDir(t)
	writeTestFile(t, filepath.Join(dir, "policies", "supply.yaml"), testPolicySet)
	writeTestFile(t, filepath.Join(dir, "results.json"),
		`{"review": {"value": 0.01}, "binary": {"value": [false]}}`)

	res := runCLI(t, "", "policy", "run", "--results", "results.json")
	require.NoError(t, res.err)
	assert.NoFileExists(t, filepath.Join(dir, ".deke", "history.db"))
}

func TestHistory_ShowMissing(t *testing.T) {
	inTempDir(t)

	res := runCLI(t, "", "history", "show", "nope")
	require.Error(t, res.err)
	assert.True(t, dekeerrors.IsKind(res.err, dekeerrors.KindNotFound))
}

func TestHistory_PruneNeedsPositiveAge(t *testing.T) {
	inTempDir(t)

	res := runCLI(t, "", "history", "prune", "--older-than", "0s")
	require.Error(t, res.err)
	assert.True(t, dekeerrors.IsKind(res.err, dekeerrors.KindValidation))
}
