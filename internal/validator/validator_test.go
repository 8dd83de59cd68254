package validator

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/perf-gate/pkg/types"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func thresholds() *types.ThresholdConfig {
	return &types.ThresholdConfig{Scenarios: map[string]*types.ScenarioConfig{
		"put_orders":         {Operation: types.OperationFullReplace, Profile: types.ProfileSteady},
		"patch_order_status": {Operation: types.OperationStatusPatch, Profile: types.ProfileSteady},
	}}
}

func TestRunCleanTree(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "run1", "put_orders.json"),
		`{"requests": 100, "status_counts": {"200": 95}, "socket_errors": {"timeout": 3}, "excluded": {"backoff": 2}}`)
	write(t, filepath.Join(root, "run1", "patch_order_status.json"),
		`{"requests": 10, "status_counts": {"200": 8, "422": 2}}`)

	report, err := New(thresholds(), 2).Run(t.Context(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Records)
	assert.Empty(t, report.Violations)
	assert.Equal(t, types.ExitPass, report.ExitCode())
}

func TestRunCollectsEveryViolation(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a", "put_orders.json"),
		`{"requests": 100, "status_counts": {"200": 90, "422": 5}}`)
	write(t, filepath.Join(root, "b", "broken.json"), `{`)
	write(t, filepath.Join(root, "c", "result.json"),
		`{"requests": 5, "operation": "full_replace", "status_counts": {"200": 4, "400": 1}}`)

	report, err := New(thresholds(), 0).Run(t.Context(), root)
	require.NoError(t, err)
	require.Len(t, report.Violations, 4)
	assert.Equal(t, types.ExitInvariant, report.ExitCode())

	assert.Equal(t, RuleInvariant, report.Violations[0].Rule)
	assert.Equal(t, "requests 100 != status 95 + socket errors 0 + excluded 0", report.Violations[0].Detail)
	assert.Equal(t, RuleContract, report.Violations[1].Rule)
	assert.Equal(t, "contract violation: put_orders (full_replace) produced validation errors [422 x5]", report.Violations[1].Detail)
	assert.Equal(t, RuleDecode, report.Violations[2].Rule)
	assert.Equal(t, "c", report.Violations[3].Scenario)
	assert.Contains(t, report.Violations[3].Detail, "[400 x1]")
}

func TestCheckMalformedCounts(t *testing.T) {
	rec := types.NewRunRecord(map[string]any{"requests": int64(3), "status_counts": map[string]any{"200": 1.5}})
	rec.Scenario = "put_orders"
	vs := New(thresholds(), 1).Check(rec)
	require.Len(t, vs, 1)
	assert.Equal(t, RuleInvariant, vs[0].Rule)
	assert.Contains(t, vs[0].Detail, "status_counts.200")
}

func TestReportRender(t *testing.T) {
	report := &Report{Records: 3, Violations: []Violation{
		{Path: "a/put_orders.json", Scenario: "put_orders", Rule: RuleContract, Detail: "contract violation"},
		{Path: "b/x.json", Scenario: "x", Rule: RuleInvariant, Detail: "requests 1 != status 0 + socket errors 0 + excluded 0"},
	}}
	var buf bytes.Buffer
	report.Render(&buf)
	out := buf.String()
	assert.Contains(t, out, "a/put_orders.json")
	assert.Contains(t, out, "validated 3 record(s): 2 violation(s), accounting invariant 1, write-method contract 1")

	buf.Reset()
	(&Report{Records: 1}).Render(&buf)
	assert.Equal(t, "validated 1 record(s): 0 violation(s)\n", buf.String())
}

func TestRunSkipsOtherJSONArtifacts(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "run1", "put_orders.json"),
		`{"requests": 10, "status_counts": {"200": 10}}`)
	write(t, filepath.Join(root, "run1", "verdict.json"),
		`{"id": "eval-1", "scenario": "put_orders", "status": "PASS", "exit_code": 0, "metrics": {"total_requests": 10}}`)
	write(t, filepath.Join(root, "run1", "env.json"), `{}`)

	report, err := New(thresholds(), 2).Run(t.Context(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Records)
	assert.Equal(t, 2, report.Skipped)
	assert.Empty(t, report.Violations)

	var buf bytes.Buffer
	report.Render(&buf)
	assert.Equal(t, "validated 1 record(s), skipped 2 other file(s): 0 violation(s)\n", buf.String())
}
