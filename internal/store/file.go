package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"net/url"
	"path/filepath"
	"strings"

	"yqhp/perf-gate/pkg/types"
)

// WorkersDir is the sub-directory of a run directory holding worker sets.
const WorkersDir = "workers"

// FileStore publishes each worker's set as workers/<id>.json under a run
// directory, with the id path-escaped so distinct ids never share a file.
// Files are written to a temporary name and then linked into place, so a
// reader never sees a partial record and a published file is never replaced.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at runDir.
func NewFileStore(runDir string) *FileStore {
	return &FileStore{dir: filepath.Join(runDir, WorkersDir)}
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

// Publish writes the set. A worker id that was already published is rejected.
func (s *FileStore) Publish(ctx context.Context, set *types.ThreadCounterSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(set)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create workers dir: %w", err)
	}

	name := url.PathEscape(set.WorkerID)
	final := filepath.Join(s.dir, name+".json")
	if _, err := os.Stat(final); err == nil {
		return fmt.Errorf("%s: %w", set.WorkerID, ErrDuplicateWorker)
	}

	tmp, err := os.CreateTemp(s.dir, ".publish-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Link(tmp.Name(), final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", set.WorkerID, ErrDuplicateWorker)
		}
		return fmt.Errorf("publish %s: %w", final, err)
	}
	return nil
}

// Collect reads every published set. A missing workers directory means no
// worker published anything and is not an error.
func (s *FileStore) Collect(ctx context.Context) ([]*types.ThreadCounterSet, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workers dir: %w", err)
	}

	var out []*types.ThreadCounterSet
	seen := make(map[string]string)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		set, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if prev, ok := seen[set.WorkerID]; ok {
			return nil, fmt.Errorf("%s in %s and %s: %w", set.WorkerID, prev, path, ErrDuplicateWorker)
		}
		seen[set.WorkerID] = path
		out = append(out, set)
	}
	sortByWorker(out)
	return out, nil
}
