package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/statehub/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// It is serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
}

// Value returns the snapshot as a document.
func (s *TraceSnapshot) Value() ir.Object {
	trace := make(ir.Array, len(s.Trace))
	for i, ev := range s.Trace {
		trace[i] = ev.Value()
	}
	return ir.Object{
		"scenario_name": ir.String(s.ScenarioName),
		"trace":         trace,
	}
}

// Snapshot renders the golden bytes for a result: the canonical JSON of its
// TraceSnapshot.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.Value())
}

// RunWithGolden executes a scenario and compares the trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares a result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
