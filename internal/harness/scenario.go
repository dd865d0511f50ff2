package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTenant is the tenant a scenario runs as unless it names one.
const DefaultTenant = "acme"

// Scenario defines a conformance test scenario.
// A scenario runs steps against the demo stores on a fresh log and then
// asserts on the resulting state, log and workflow records.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tenant is the log partition to run in. Defaults to DefaultTenant.
	Tenant string `yaml:"tenant,omitempty"`

	// Factory overrides the factory workflow timings.
	Factory *FactorySettings `yaml:"factory,omitempty"`

	// Setup contains steps run before the flow. They are traced but their
	// expect clauses are not allowed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state.
	// Supported types: state, log_count, process, replay
	Assertions []Assertion `yaml:"assertions"`
}

// FactorySettings mirrors demo.FactoryConfig with YAML durations.
type FactorySettings struct {
	BuildTime       string `yaml:"build_time,omitempty"`
	Inspections     int64  `yaml:"inspections,omitempty"`
	InspectInterval string `yaml:"inspect_interval,omitempty"`
}

// Step is one scenario action. Exactly one of Dispatch, Start, Advance,
// Scan, Cleanup or Checkpoint is set.
type Step struct {
	// Store receives Dispatch.
	Store string `yaml:"store,omitempty"`

	// Dispatch is the action type sent to Store.
	Dispatch string `yaml:"dispatch,omitempty"`

	// Payload is the action payload. Values must be integers, strings,
	// booleans, lists or maps.
	Payload map[string]any `yaml:"payload,omitempty"`

	// Start begins a workflow process with this context object.
	Start map[string]any `yaml:"start,omitempty"`

	// Trigger is handed to the workflow listener with Start.
	Trigger any `yaml:"trigger,omitempty"`

	// Advance moves the fake clock forward, e.g. "90s".
	Advance string `yaml:"advance,omitempty"`

	// Scan runs one workflow restart scan.
	Scan bool `yaml:"scan,omitempty"`

	// Cleanup removes completed workflow processes.
	Cleanup bool `yaml:"cleanup,omitempty"`

	// Checkpoint writes a checkpoint of every store.
	Checkpoint bool `yaml:"checkpoint,omitempty"`

	// Expect validates the step outcome.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Kind returns which step kind is set, or "" if none or several are.
func (s Step) Kind() string {
	var kinds []string
	if s.Dispatch != "" {
		kinds = append(kinds, KindDispatch)
	}
	if s.Start != nil {
		kinds = append(kinds, KindStart)
	}
	if s.Advance != "" {
		kinds = append(kinds, KindAdvance)
	}
	if s.Scan {
		kinds = append(kinds, KindScan)
	}
	if s.Cleanup {
		kinds = append(kinds, KindCleanup)
	}
	if s.Checkpoint {
		kinds = append(kinds, KindCheckpoint)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Failed is the expected advisory failure flag of a dispatch.
	Failed *bool `yaml:"failed,omitempty"`

	// Result is matched as a subset of the dispatch result document
	// {slice: {failed, message?, data?}}.
	Result map[string]any `yaml:"result,omitempty"`

	// ID is the process id a start step must produce.
	ID *int64 `yaml:"id,omitempty"`

	// Resumed is how many processes a scan step must resume.
	Resumed *int `yaml:"resumed,omitempty"`

	// Removed is how many processes a cleanup step must remove.
	Removed *int64 `yaml:"removed,omitempty"`

	// Seq is the log sequence after the step.
	Seq *int64 `yaml:"seq,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "state": read store/slice[/id][/path] and subset-match expect
	// - "log_count": the log holds exactly count records
	// - "process": the workflow record with id subset-matches expect
	// - "replay": a store set rebuilt from the log equals the live one
	Type string `yaml:"type"`

	// Store and Slice select what a state assertion reads.
	Store string `yaml:"store,omitempty"`
	Slice string `yaml:"slice,omitempty"`

	// ID selects a LIST item (state) or a process (process).
	ID *int64 `yaml:"id,omitempty"`

	// Path selects a value inside the item or HASH document.
	Path string `yaml:"path,omitempty"`

	// Expect is the expected value. Maps match as subsets.
	Expect any `yaml:"expect,omitempty"`

	// Count is the expected number of log records (log_count).
	Count *int64 `yaml:"count,omitempty"`

	// FromCheckpoint starts a replay assertion from the latest checkpoint.
	FromCheckpoint bool `yaml:"from_checkpoint,omitempty"`
}

// Assertion type constants.
const (
	AssertState    = "state"
	AssertLogCount = "log_count"
	AssertProcess  = "process"
	AssertReplay   = "replay"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if f := s.Factory; f != nil {
		for field, d := range map[string]string{"build_time": f.BuildTime, "inspect_interval": f.InspectInterval} {
			if d == "" {
				continue
			}
			if _, err := time.ParseDuration(d); err != nil {
				return fmt.Errorf("factory.%s: %w", field, err)
			}
		}
		if f.Inspections < 0 {
			return fmt.Errorf("factory.inspections must be non-negative")
		}
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is only allowed in flow", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, step Step) error {
	kind := step.Kind()
	if kind == "" {
		return fmt.Errorf("%s: exactly one of dispatch, start, advance, scan, cleanup, checkpoint is required", where)
	}
	switch kind {
	case KindDispatch:
		if step.Store == "" {
			return fmt.Errorf("%s: store is required for dispatch", where)
		}
	case KindAdvance:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("%s: advance: %w", where, err)
		}
		if d < 0 {
			return fmt.Errorf("%s: advance must not be negative", where)
		}
	}
	if kind != KindDispatch && (step.Store != "" || step.Payload != nil) {
		return fmt.Errorf("%s: store and payload are only valid with dispatch", where)
	}
	if kind != KindStart && step.Trigger != nil {
		return fmt.Errorf("%s: trigger is only valid with start", where)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertState:
		if a.Store == "" || a.Slice == "" {
			return fmt.Errorf("assertions[%d]: store and slice are required for state", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for state", index)
		}
	case AssertLogCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for log_count", index)
		}
	case AssertProcess:
		if a.ID == nil {
			return fmt.Errorf("assertions[%d]: id is required for process", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for process", index)
		}
	case AssertReplay:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
