// Package resultdir locates and decodes the result records a load run
// leaves behind.
package resultdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bytedance/sonic"

	"yqhp/perf-gate/internal/phase"
	"yqhp/perf-gate/internal/store"
	"yqhp/perf-gate/pkg/types"
)

// ResultFile is the scenario-agnostic record name.
const ResultFile = "result.json"

// ErrRecordNotFound is returned when a result directory holds no record for a scenario.
var ErrRecordNotFound = errors.New("result record not found")

// Numbers decode as json.Number so counts stay exact and fractional counts
// can be told apart from integers.
var decoder = sonic.Config{UseNumber: true}.Froze()

// Load reads <dir>/<scenario>.json, falling back to <dir>/result.json.
func Load(dir, scenario string) (*types.RunRecord, error) {
	candidates := []string{
		filepath.Join(dir, scenario+".json"),
		filepath.Join(dir, ResultFile),
	}
	for _, path := range candidates {
		rec, err := ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rec.Scenario = scenario
		return rec, nil
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrRecordNotFound, scenario, dir)
}

// ReadFile decodes one record file.
func ReadFile(path string) (*types.RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := decoder.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode %s: not a JSON object", path)
	}
	rec := types.NewRunRecord(raw)
	rec.Path = path
	return rec, nil
}

// Phases returns the phase results recorded under dir, or the ones
// embedded in rec when the run wrote no phase files.
func Phases(dir string, rec *types.RunRecord) ([]types.PhaseResult, error) {
	phases, err := phase.LoadPhases(dir)
	if err != nil {
		return nil, err
	}
	if len(phases) > 0 {
		return phases, nil
	}
	return rec.Phases()
}

// Entry is one record file found by Walk.
type Entry struct {
	Path     string
	Scenario string
}

// Walk lists every record under root in path order. Phase and worker
// directories are not records and are skipped.
func Walk(root string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (d.Name() == phase.Dir || d.Name() == store.WorkersDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".json" {
			return nil
		}
		entries = append(entries, Entry{Path: path, Scenario: scenarioOf(path)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// scenarioOf names a record after its file, or after its directory for result.json.
func scenarioOf(path string) string {
	base := filepath.Base(path)
	if base == ResultFile {
		return filepath.Base(filepath.Dir(path))
	}
	return strings.TrimSuffix(base, ".json")
}
