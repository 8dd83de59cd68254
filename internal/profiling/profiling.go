// Package profiling checks captured profiling artifacts for signs of a
// failed capture before anyone reads a flamegraph built from them.
package profiling

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/duke-git/lancet/v2/slice"
	"go.uber.org/zap"

	"yqhp/perf-gate/pkg/logger"
	"yqhp/perf-gate/pkg/types"
)

// foldedLine matches one collapsed stack: frames joined by ';' and a sample count.
var foldedLine = regexp.MustCompile(`^\S.* \d+$`)

// Finding is one problem in one artifact.
type Finding struct {
	Path string
	// Line is 1-based, or 0 for a whole-file problem.
	Line    int
	Problem string
}

func (f Finding) String() string {
	if f.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", f.Path, f.Line, f.Problem)
	}
	return fmt.Sprintf("%s: %s", f.Path, f.Problem)
}

// Report is the outcome of checking one artifact directory.
type Report struct {
	Files    int
	Findings []Finding
}

// ExitCode is 1 when any artifact is bad.
func (r *Report) ExitCode() int {
	if len(r.Findings) > 0 {
		return types.ExitInvariant
	}
	return types.ExitPass
}

// Checker validates profiling artifacts.
type Checker struct {
	sentinels  []string
	extensions []string
}

// NewChecker creates a checker. Files whose extension is not listed are ignored.
func NewChecker(sentinels, extensions []string) *Checker {
	return &Checker{sentinels: sentinels, extensions: extensions}
}

// Check validates every artifact under dir. A directory with no artifacts
// at all is a failed capture.
func (c *Checker) Check(dir string) (*Report, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && slice.Contain(c.extensions, strings.ToLower(filepath.Ext(path))) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	report := &Report{Files: len(paths)}
	if len(paths) == 0 {
		report.Findings = append(report.Findings, Finding{Path: dir, Problem: "no profiling artifacts found"})
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		report.Findings = append(report.Findings, c.checkFile(path, data)...)
	}

	logger.Info("profiling artifacts checked",
		zap.String("dir", dir),
		zap.Int("files", report.Files),
		zap.Int("findings", len(report.Findings)))
	return report, nil
}

func (c *Checker) checkFile(path string, data []byte) []Finding {
	var out []Finding
	if len(bytes.TrimSpace(data)) == 0 {
		return []Finding{{Path: path, Problem: "empty artifact"}}
	}

	svg := strings.EqualFold(filepath.Ext(path), ".svg")
	if svg && !bytes.Contains(data, []byte("<svg")) {
		out = append(out, Finding{Path: path, Problem: "no <svg> root element"})
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Text()
		for _, s := range c.sentinels {
			if strings.Contains(line, s) {
				out = append(out, Finding{Path: path, Line: n, Problem: fmt.Sprintf("contains %q", s)})
			}
		}
		if !svg && strings.TrimSpace(line) != "" && !foldedLine.MatchString(line) {
			out = append(out, Finding{Path: path, Line: n, Problem: "not a folded stack line"})
		}
	}
	if err := scanner.Err(); err != nil {
		out = append(out, Finding{Path: path, Problem: err.Error()})
	}
	return out
}
