// Package phase records per-phase summaries and derives the composite
// throughput figures of a run from them.
package phase

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"

	"yqhp/perf-gate/pkg/types"
)

// Dir is the sub-directory of a run directory holding phase records.
const Dir = "phases"

var (
	// ErrPhaseExists is returned when a phase record would be overwritten.
	ErrPhaseExists = errors.New("phase already recorded")

	unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

	// decoder keeps numbers as json.Number so counts are not rounded through float64.
	decoder = sonic.Config{UseNumber: true}.Froze()
)

// Recorder persists one immutable summary per completed phase. Phases run
// strictly one after another, so a run has a single recorder.
type Recorder struct {
	dir string

	mu    sync.Mutex
	seq   int
	names map[string]struct{}
}

// NewRecorder creates a recorder writing to <runDir>/phases. Sequence numbers
// continue after any records already present.
func NewRecorder(runDir string) (*Recorder, error) {
	r := &Recorder{
		dir:   filepath.Join(runDir, Dir),
		names: make(map[string]struct{}),
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create phases dir: %w", err)
	}
	existing, err := LoadPhases(runDir)
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		r.names[p.PhaseName] = struct{}{}
	}
	r.seq = len(existing)
	return r, nil
}

// Record writes the phase summary. A phase name can be recorded once.
func (r *Recorder) Record(p types.PhaseResult) error {
	if p.PhaseName == "" {
		return fmt.Errorf("phase_name: %w", types.ErrFieldMissing)
	}
	if p.ActualRPS < 0 || p.TargetRPS < 0 || p.DurationSeconds < 0 {
		return fmt.Errorf("%s: %w", p.PhaseName, types.ErrFieldNegative)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[p.PhaseName]; ok {
		return fmt.Errorf("%s: %w", p.PhaseName, ErrPhaseExists)
	}

	data, err := sonic.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%03d-%s.json", r.seq+1, unsafeName.ReplaceAllString(p.PhaseName, "_"))
	f, err := os.OpenFile(filepath.Join(r.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", p.PhaseName, ErrPhaseExists)
		}
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	r.seq++
	r.names[p.PhaseName] = struct{}{}
	return nil
}

// LoadPhases reads the phase records of a run in recorded order.
// A run without a phases directory has no phases.
func LoadPhases(runDir string) ([]types.PhaseResult, error) {
	dir := filepath.Join(runDir, Dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	phases := make([]types.PhaseResult, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var raw map[string]any
		if err := decoder.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		p, err := types.PhaseFromRecord(types.NewRunRecord(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		phases = append(phases, p)
	}
	return phases, nil
}
