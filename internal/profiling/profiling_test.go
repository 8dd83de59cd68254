package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/perf-gate/pkg/types"
)

var (
	sentinels  = []string{"ERROR", "Permission denied", "No such file", "not found", "failed to open"}
	extensions = []string{".folded", ".svg"}
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestCheckValidArtifacts(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "cpu.folded", "main;serve;handle 42\nmain;gc 7\n")
	write(t, dir, "cpu.svg", `<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`)
	write(t, dir, "README.md", "ERROR ignored, not an artifact")

	report, err := NewChecker(sentinels, extensions).Check(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)
	assert.Empty(t, report.Findings)
	assert.Equal(t, types.ExitPass, report.ExitCode())
}

func TestCheckBadArtifacts(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.folded", "main;serve 3\nperf: Permission denied\n")
	write(t, dir, "b.svg", "failed to open perf.data")
	write(t, dir, "c.folded", "  \n")

	report, err := NewChecker(sentinels, extensions).Check(dir)
	require.NoError(t, err)
	assert.Equal(t, types.ExitInvariant, report.ExitCode())

	var lines []string
	for _, f := range report.Findings {
		lines = append(lines, f.String())
	}
	assert.Equal(t, []string{
		filepath.Join(dir, "a.folded") + `:2: contains "Permission denied"`,
		filepath.Join(dir, "a.folded") + ":2: not a folded stack line",
		filepath.Join(dir, "b.svg") + ": no <svg> root element",
		filepath.Join(dir, "b.svg") + `:1: contains "failed to open"`,
		filepath.Join(dir, "c.folded") + ": empty artifact",
	}, lines)
}

func TestCheckEmptyDirectory(t *testing.T) {
	report, err := NewChecker(sentinels, extensions).Check(t.TempDir())
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "no profiling artifacts found", report.Findings[0].Problem)
	assert.Equal(t, types.ExitInvariant, report.ExitCode())
}

func TestCheckMissingDirectory(t *testing.T) {
	_, err := NewChecker(sentinels, extensions).Check(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
