package harness

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/recovery"
	"github.com/roach88/statehub/internal/workflow"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s assertion failed: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// matchSubset reports whether got contains want. Objects match when every
// key of want matches in got; arrays match element-wise with equal length;
// scalars match by equality. On mismatch it returns the path of the first
// difference.
func matchSubset(want, got ir.Value) (string, bool) {
	switch w := want.(type) {
	case ir.Object:
		g, ok := got.(ir.Object)
		if !ok {
			return "$", false
		}
		for _, k := range w.SortedKeys() {
			gv, present := g[k]
			if !present {
				return "$." + k, false
			}
			if path, ok := matchSubset(w[k], gv); !ok {
				return "$." + k + path[1:], false
			}
		}
		return "", true
	case ir.Array:
		g, ok := got.(ir.Array)
		if !ok || len(g) != len(w) {
			return "$", false
		}
		for i := range w {
			if path, ok := matchSubset(w[i], g[i]); !ok {
				return "$[" + strconv.Itoa(i) + "]" + path[1:], false
			}
		}
		return "", true
	default:
		if !ir.Equal(want, got) {
			return "$", false
		}
		return "", true
	}
}

func render(v ir.Value) string {
	if v == nil {
		return "<missing>"
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// assertState reads store/slice[/id][/path] and subset-matches expect.
func assertState(h *Harness, a Assertion) error {
	m, ok := h.sys.Manager(a.Store)
	if !ok {
		return fmt.Errorf("state assertion: unknown store %q", a.Store)
	}
	want, err := ir.FromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("state assertion: expect: %w", err)
	}

	var ids []int64
	where := a.Store + "/" + a.Slice
	if a.ID != nil {
		ids = append(ids, *a.ID)
		where += "/" + strconv.FormatInt(*a.ID, 10)
	}
	if a.Path != "" {
		where += ":" + a.Path
	}

	got, found := m.GetValue(a.Slice, a.Path, ids...)
	if !found {
		return &AssertionError{Type: AssertState, Expected: fmt.Sprintf("%s = %s", where, render(want)), Actual: "<missing>"}
	}
	if path, ok := matchSubset(want, got); !ok {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s to match %s (at %s)", where, render(want), path),
			Actual:   render(got),
		}
	}
	return nil
}

// assertLogCount checks how many records the tenant's partition holds.
func assertLogCount(ctx context.Context, h *Harness, a Assertion) error {
	n, err := h.log.LastSeq(ctx, h.conn.Partition())
	if err != nil {
		return fmt.Errorf("log_count assertion: %w", err)
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertLogCount,
			Expected: fmt.Sprintf("%d records", *a.Count),
			Actual:   fmt.Sprintf("%d records", n),
		}
	}
	return nil
}

// assertProcess subset-matches a workflow record.
func assertProcess(h *Harness, a Assertion) error {
	want, err := ir.FromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("process assertion: expect: %w", err)
	}
	got, found := h.sys.Processor().Manager().GetValue(workflow.SliceName, "", *a.ID)
	if !found {
		return &AssertionError{
			Type:     AssertProcess,
			Expected: fmt.Sprintf("process %d", *a.ID),
			Actual:   "no such process",
		}
	}
	if path, ok := matchSubset(want, got); !ok {
		return &AssertionError{
			Type:     AssertProcess,
			Expected: fmt.Sprintf("process %d to match %s (at %s)", *a.ID, render(want), path),
			Actual:   render(got),
		}
	}
	return nil
}

// assertReplay rebuilds every store on a second connection and compares
// the result with the live stores.
func assertReplay(ctx context.Context, h *Harness, a Assertion) error {
	_, fresh, err := h.connect(ctx)
	if err != nil {
		return fmt.Errorf("replay assertion: %w", err)
	}
	report, err := recovery.RestoreState(ctx, fresh.Conn(), h.log, fresh.Stores(), recovery.RestoreOptions{
		UseCheckpoint: a.FromCheckpoint,
		Logger:        h.logger,
	})
	if err != nil {
		return fmt.Errorf("replay assertion: %w", err)
	}
	if a.FromCheckpoint && report.Checkpoint == "" {
		return &AssertionError{Type: AssertReplay, Expected: "a checkpoint to restore from", Actual: "none"}
	}

	live, replayed := h.sys.Debug(), fresh.Debug()
	if !ir.Equal(live, replayed) {
		return &AssertionError{
			Type:     AssertReplay,
			Expected: render(live),
			Actual:   render(replayed),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the harness state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, h *Harness, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertState:
			err = assertState(h, assertion)
		case AssertLogCount:
			err = assertLogCount(ctx, h, assertion)
		case AssertProcess:
			err = assertProcess(h, assertion)
		case AssertReplay:
			err = assertReplay(ctx, h, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}

		if err != nil {
			errors = append(errors, fmt.Sprintf("assertion[%d]: %v", i, err))
		}
	}
	return errors
}
