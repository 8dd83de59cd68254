// Package validator checks the accounting invariant and the write-method
// contract over a whole tree of result records.
package validator

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/duke-git/lancet/v2/maputil"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yqhp/perf-gate/internal/resultdir"
	"yqhp/perf-gate/pkg/logger"
	"yqhp/perf-gate/pkg/types"
)

// Rules a record can violate.
const (
	RuleDecode    = "decode"
	RuleInvariant = "accounting invariant"
	RuleContract  = "write-method contract"
)

// DefaultConcurrency bounds how many records are read at once.
const DefaultConcurrency = 8

// Violation is one broken rule in one record.
type Violation struct {
	Path     string
	Scenario string
	Rule     string
	Detail   string
}

// Report is the outcome of one scan.
type Report struct {
	Records int
	// Skipped counts JSON files that carry no request accounting.
	Skipped    int
	Violations []Violation
}

// ExitCode is 1 when any violation was found. There is no warning state.
func (r *Report) ExitCode() int {
	if len(r.Violations) > 0 {
		return types.ExitInvariant
	}
	return types.ExitPass
}

// Validator scans result records.
type Validator struct {
	thresholds  *types.ThresholdConfig
	concurrency int
}

// New creates a validator. thresholds may be nil, in which case the
// contract check relies on the operation stored in each record.
func New(thresholds *types.ThresholdConfig, concurrency int) *Validator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Validator{thresholds: thresholds, concurrency: concurrency}
}

// Run validates every record under root. Records are read concurrently;
// violations are reported in path order.
func (v *Validator) Run(ctx context.Context, root string) (*Report, error) {
	entries, err := resultdir.Walk(root)
	if err != nil {
		return nil, err
	}

	found := make([][]Violation, len(entries))
	skipped := make([]bool, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := resultdir.ReadFile(entry.Path)
			if err != nil {
				found[i] = []Violation{{Path: entry.Path, Scenario: entry.Scenario, Rule: RuleDecode, Detail: err.Error()}}
				return nil
			}
			if !rec.IsRunRecord() {
				skipped[i] = true
				logger.Debug("not a run record, skipped", zap.String("path", entry.Path))
				return nil
			}
			rec.Scenario = entry.Scenario
			found[i] = v.Check(rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{}
	for i, vs := range found {
		if skipped[i] {
			report.Skipped++
			continue
		}
		report.Records++
		report.Violations = append(report.Violations, vs...)
	}
	logger.Info("result records validated",
		zap.String("root", root),
		zap.Int("records", report.Records),
		zap.Int("skipped", report.Skipped),
		zap.Int("violations", len(report.Violations)))
	return report, nil
}

// Check validates one record.
func (v *Validator) Check(rec *types.RunRecord) []Violation {
	var out []Violation
	add := func(rule, detail string) {
		out = append(out, Violation{Path: rec.Path, Scenario: rec.Scenario, Rule: rule, Detail: detail})
	}

	if detail := checkInvariant(rec); detail != "" {
		add(RuleInvariant, detail)
	}
	if detail := v.checkContract(rec); detail != "" {
		add(RuleContract, detail)
	}
	return out
}

// checkInvariant verifies requests == Σ status_counts + Σ socket_errors,
// plus Σ excluded when the record carries exclusion counters.
func checkInvariant(rec *types.RunRecord) string {
	requests, err := rec.Requests()
	if err != nil {
		return err.Error()
	}
	status, _, err := rec.StatusCounts()
	if err != nil {
		return err.Error()
	}
	socket, _, err := rec.SocketErrors()
	if err != nil {
		return err.Error()
	}
	excluded, _, err := rec.Excluded()
	if err != nil {
		return err.Error()
	}

	sumStatus := types.SumStatus(status)
	sumSocket := sum(socket)
	sumExcluded := sum(excluded)
	if requests == sumStatus+sumSocket+sumExcluded {
		return ""
	}
	return fmt.Sprintf("requests %d != status %d + socket errors %d + excluded %d",
		requests, sumStatus, sumSocket, sumExcluded)
}

func sum[K comparable](m map[K]int64) int64 {
	var n int64
	for _, v := range m {
		n += v
	}
	return n
}

// operation resolves the write-method of the record's scenario: from the
// threshold configuration when it knows the scenario, else from the record.
func (v *Validator) operation(rec *types.RunRecord) (types.OperationKind, []int) {
	if v.thresholds != nil {
		if sc, err := v.thresholds.Scenario(rec.Scenario); err == nil {
			return sc.Operation, sc.ValidationCodes()
		}
	}
	op, _ := rec.Raw()["operation"].(string)
	return types.OperationKind(op), types.DefaultValidationErrorCodes
}

func (v *Validator) checkContract(rec *types.RunRecord) string {
	op, codes := v.operation(rec)
	if op != types.OperationFullReplace {
		return ""
	}
	status, _, err := rec.StatusCounts()
	if err != nil {
		return ""
	}
	found := make(map[int]int64)
	for _, code := range codes {
		if n := status[code]; n > 0 {
			found[code] = n
		}
	}
	if len(found) == 0 {
		return ""
	}
	return (&types.ContractViolation{Scenario: rec.Scenario, Operation: op, Codes: found}).Error()
}

// Render writes the report as a table followed by a one-line summary.
func (r *Report) Render(w io.Writer) {
	if len(r.Violations) > 0 {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Record", "Scenario", "Rule", "Detail"})
		table.SetBorder(true)
		table.SetRowLine(false)
		table.SetAutoWrapText(false)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		for _, vi := range r.Violations {
			table.Append([]string{vi.Path, vi.Scenario, vi.Rule, vi.Detail})
		}
		table.Render()
	}

	byRule := make(map[string]int)
	for _, vi := range r.Violations {
		byRule[vi.Rule]++
	}
	rules := maputil.Keys(byRule)
	sort.Strings(rules)
	fmt.Fprintf(w, "validated %d record(s)", r.Records)
	if r.Skipped > 0 {
		fmt.Fprintf(w, ", skipped %d other file(s)", r.Skipped)
	}
	fmt.Fprintf(w, ": %d violation(s)", len(r.Violations))
	for _, rule := range rules {
		fmt.Fprintf(w, ", %s %d", rule, byRule[rule])
	}
	fmt.Fprintln(w)
}
