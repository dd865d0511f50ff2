package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/statehub/internal/demo"
	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/logconn"
	"github.com/roach88/statehub/internal/recovery"
	"github.com/roach88/statehub/internal/store"
	"github.com/roach88/statehub/internal/testutil"
	"github.com/roach88/statehub/internal/workflow"
)

// Harness executes scenarios against the demo stores.
//
// Every Harness owns a fresh SQLite log in a temporary directory, a fake
// clock starting at testutil.Epoch and sequential request ids, so the
// same scenario always produces the same log.
type Harness struct {
	dir     string
	log     *store.Store
	clock   *testutil.FakeClock
	tenant  string
	factory demo.FactoryConfig
	logger  *slog.Logger

	conn *logconn.Conn
	sys  *demo.System
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// New creates a Harness for scenario. Call Close when done.
func New(ctx context.Context, scenario *Scenario, opts ...Option) (*Harness, error) {
	factory, err := factoryConfig(scenario.Factory)
	if err != nil {
		return nil, err
	}
	tenant := scenario.Tenant
	if tenant == "" {
		tenant = DefaultTenant
	}

	dir, err := os.MkdirTemp("", "statehub-harness-*")
	if err != nil {
		return nil, fmt.Errorf("create harness dir: %w", err)
	}
	log, err := store.Open(filepath.Join(dir, "log.db"))
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("open harness log: %w", err)
	}

	h := &Harness{
		dir:     dir,
		log:     log,
		clock:   testutil.NewFakeClock(),
		tenant:  tenant,
		factory: factory,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.conn, h.sys, err = h.connect(ctx)
	if err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// Close releases the log and removes the temporary directory.
func (h *Harness) Close() error {
	err := h.log.Close()
	if rmErr := os.RemoveAll(h.dir); err == nil {
		err = rmErr
	}
	return err
}

// System returns the demo system the scenario runs against.
func (h *Harness) System() *demo.System { return h.sys }

// connect opens a connection to the harness log and builds a demo system
// on it. The stores are empty.
func (h *Harness) connect(ctx context.Context) (*logconn.Conn, *demo.System, error) {
	conn, err := logconn.InitFromDB(ctx, h.log, logconn.Options{
		Tenant: h.tenant,
		Now:    h.clock.Now,
		Logger: h.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	sys, err := demo.NewSystem(conn, demo.Options{
		Factory: h.factory,
		Workflow: workflow.Config{
			ScanConcurrency: 1,
			IDs:             testutil.NewSequentialIDs("req"),
		},
		Logger: h.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build system: %w", err)
	}
	return conn, sys, nil
}

func factoryConfig(fs *FactorySettings) (demo.FactoryConfig, error) {
	cfg := demo.DefaultFactoryConfig
	if fs == nil {
		return cfg, nil
	}
	if fs.BuildTime != "" {
		d, err := time.ParseDuration(fs.BuildTime)
		if err != nil {
			return cfg, fmt.Errorf("factory.build_time: %w", err)
		}
		cfg.BuildTime = d
	}
	if fs.InspectInterval != "" {
		d, err := time.ParseDuration(fs.InspectInterval)
		if err != nil {
			return cfg, fmt.Errorf("factory.inspect_interval: %w", err)
		}
		cfg.InspectInterval = d
	}
	if fs.Inspections > 0 {
		cfg.Inspections = fs.Inspections
	}
	return cfg, nil
}

// Run executes a scenario on a fresh Harness and returns the result.
//
// Expect and assertion failures are reported in Result.Errors; the returned
// error is reserved for scenarios that cannot be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h, err := New(ctx, scenario, opts...)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return h.Execute(ctx, scenario)
}

// Execute runs setup, then flow, then assertions.
func (h *Harness) Execute(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult()

	for i, step := range scenario.Setup {
		if err := h.executeStep(ctx, "setup", i, step, result); err != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, err)
		}
	}
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, "flow", i, step, result); err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
	}

	result.State = h.sys.Debug()
	for _, msg := range EvaluateAssertions(ctx, h, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step, traces it and checks its expect clause.
// An invariant violation inside a dispatch is returned as an error.
func (h *Harness) executeStep(ctx context.Context, phase string, i int, step Step, result *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ev := TraceEvent{Phase: phase, Step: i, Kind: step.Kind()}
	var outcome stepOutcome

	switch ev.Kind {
	case KindDispatch:
		payload, err := ir.ObjectFromAny(step.Payload)
		if err != nil {
			return fmt.Errorf("payload: %w", err)
		}
		res, err := h.sys.Dispatch(ctx, step.Store, ir.Action{Type: step.Dispatch, Payload: payload})
		if err != nil {
			return err
		}
		ev.Store, ev.Action, ev.Input = step.Store, step.Dispatch, payload
		ev.Output = res.Value()
		outcome.failed = res.Failed()
		outcome.result = ev.Output

	case KindStart:
		obj, err := ir.ObjectFromAny(step.Start)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		var trigger ir.Value = ir.String("scenario")
		if step.Trigger != nil {
			if trigger, err = ir.FromAny(step.Trigger); err != nil {
				return fmt.Errorf("trigger: %w", err)
			}
		}
		id, err := h.sys.Processor().Handle(ctx, obj, trigger)
		if err != nil {
			return err
		}
		ev.Store, ev.Input = demo.StoreWorkflow, obj
		ev.Output = ir.Object{"_id": ir.Int(id)}
		outcome.id = id

	case KindAdvance:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		now := h.clock.Advance(d)
		ev.Output = ir.Object{"now": ir.Int(now.UnixMilli())}

	case KindScan:
		n := h.sys.Processor().Scan(ctx)
		ev.Store = demo.StoreWorkflow
		ev.Output = ir.Object{"resumed": ir.Int(int64(n))}
		outcome.resumed = n

	case KindCleanup:
		n, err := h.sys.Processor().Cleanup(ctx)
		if err != nil {
			return err
		}
		ev.Store = demo.StoreWorkflow
		ev.Output = ir.Object{"removed": ir.Int(n)}
		outcome.removed = n

	case KindCheckpoint:
		cp, err := recovery.NewCheckpointer(h.conn, h.log, h.sys.Stores(), recovery.CheckpointOptions{
			Now:    h.clock.Now,
			Logger: h.logger,
		}).SnapshotState(ctx)
		if err != nil {
			return err
		}
		ev.Output = ir.Object{"name": ir.String(cp.Name), "seq": ir.Int(cp.Seq)}

	default:
		return fmt.Errorf("invalid step: exactly one kind must be set")
	}

	ev.Seq = h.conn.Seq()
	outcome.seq = ev.Seq
	result.AddTrace(ev)

	if step.Expect != nil {
		for _, msg := range checkExpect(step.Expect, outcome) {
			result.AddError(fmt.Sprintf("%s[%d]: %s", phase, i, msg))
		}
	}
	h.logger.Debug("scenario step", "phase", phase, "step", i, "kind", ev.Kind, "seq", ev.Seq)
	return nil
}

// stepOutcome is what expect clauses are checked against.
type stepOutcome struct {
	failed  bool
	result  ir.Object
	id      int64
	resumed int
	removed int64
	seq     int64
}

func checkExpect(exp *ExpectClause, got stepOutcome) []string {
	var errs []string
	if exp.Failed != nil && *exp.Failed != got.failed {
		errs = append(errs, fmt.Sprintf("expected failed=%t, got %t", *exp.Failed, got.failed))
	}
	if exp.Result != nil {
		want, err := ir.ObjectFromAny(exp.Result)
		if err != nil {
			errs = append(errs, fmt.Sprintf("expect.result: %v", err))
		} else if path, ok := matchSubset(want, got.result); !ok {
			errs = append(errs, fmt.Sprintf("result mismatch at %s: got %s", path, render(got.result)))
		}
	}
	if exp.ID != nil && *exp.ID != got.id {
		errs = append(errs, fmt.Sprintf("expected process id %d, got %d", *exp.ID, got.id))
	}
	if exp.Resumed != nil && *exp.Resumed != got.resumed {
		errs = append(errs, fmt.Sprintf("expected %d resumed, got %d", *exp.Resumed, got.resumed))
	}
	if exp.Removed != nil && *exp.Removed != got.removed {
		errs = append(errs, fmt.Sprintf("expected %d removed, got %d", *exp.Removed, got.removed))
	}
	if exp.Seq != nil && *exp.Seq != got.seq {
		errs = append(errs, fmt.Sprintf("expected seq %d, got %d", *exp.Seq, got.seq))
	}
	return errs
}
