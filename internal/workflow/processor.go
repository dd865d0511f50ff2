package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/statehub/internal/engine"
	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/logconn"
	"github.com/roach88/statehub/internal/state"
)

// Middleware is one step of a process. It returns the actions to dispatch
// through the linked Manager and the options for the next step. A returned
// error leaves the process where it was.
type Middleware func(ctx context.Context, pc ProcessContext) (Step, error)

// Step is what a middleware hands to the next one.
type Step struct {
	Linked  []ir.Action
	Options Options
}

// Predicate decides whether a process sleeping on it may resume.
type Predicate func(pc ProcessContext) bool

// Defaults for Config.
const (
	DefaultStoreName       = "workflow"
	DefaultScanInterval    = time.Second
	DefaultScanConcurrency = 8
)

// Config configures a Processor. Zero values take the defaults.
type Config struct {
	// Store names the processor's Store in the log.
	Store string

	// ScanInterval is the restart scan period used by Start.
	ScanInterval time.Duration

	// ScanConcurrency bounds how many processes one scan resumes at once.
	ScanConcurrency int

	// Base is copied into every ProcessContext, under the process's own
	// context_object.
	Base ir.Object

	// Predicates resolves sleep_until predicates by name.
	Predicates map[string]Predicate

	Clock  func() time.Time
	IDs    IDGenerator
	Logger *slog.Logger
	Hub    *engine.Hub
}

// Processor runs processes defined by one middleware chain.
//
// Thread-safety model:
//   - Handle(), Scan(), Cleanup(): safe from any goroutine
//   - one process runs in at most one goroutine at a time (the active set)
//   - all dispatches, processor and linked, go through the connection gate
type Processor struct {
	manager *engine.Manager
	linked  *engine.Manager
	chain   []Middleware
	cfg     Config
	logger  *slog.Logger

	mu     sync.Mutex
	active map[int64]struct{}
	wg     sync.WaitGroup
}

// NewProcessor builds a processor Store and Manager on conn. linked may be
// nil if no step emits linked actions.
func NewProcessor(conn *logconn.Conn, linked *engine.Manager, chain []Middleware, cfg Config) (*Processor, error) {
	if cfg.Store == "" {
		cfg.Store = DefaultStoreName
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	if cfg.ScanConcurrency <= 0 {
		cfg.ScanConcurrency = DefaultScanConcurrency
	}
	if cfg.Clock == nil {
		cfg.Clock = conn.Now
	}
	if cfg.IDs == nil {
		cfg.IDs = UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if linked != nil && linked.Name() == cfg.Store {
		return nil, fmt.Errorf("workflow: linked store %q has the processor's name", cfg.Store)
	}

	st, err := state.NewStore(Definition(cfg.Store))
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	opts := []engine.Option{engine.WithClock(cfg.Clock), engine.WithLogger(cfg.Logger)}
	if cfg.Hub != nil {
		opts = append(opts, engine.WithHub(cfg.Hub))
	}
	m, err := engine.NewManager(st, conn, []engine.Reducer{ProcessReducer()}, opts...)
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}

	return &Processor{
		manager: m,
		linked:  linked,
		chain:   append([]Middleware(nil), chain...),
		cfg:     cfg,
		logger:  cfg.Logger.With("processor", cfg.Store),
		active:  make(map[int64]struct{}),
	}, nil
}

// Manager returns the Manager of the processor Store.
func (p *Processor) Manager() *engine.Manager { return p.manager }

// Store returns the processor Store, for recovery and reads.
func (p *Processor) Store() *state.Store { return p.manager.Store() }

// Len is the number of middleware in the chain.
func (p *Processor) Len() int { return len(p.chain) }

// Get returns process id.
func (p *Processor) Get(id int64) (Record, bool) {
	v, ok := p.manager.GetValue(SliceName, "", id)
	if !ok {
		return Record{}, false
	}
	doc, ok := v.(ir.Object)
	if !ok {
		return Record{}, false
	}
	rec, err := RecordFrom(doc)
	if err != nil {
		return Record{}, false
	}
	return rec, true
}

// Records returns every process record in id order.
func (p *Processor) Records() []Record {
	items := p.manager.Store().Items(SliceName)
	out := make([]Record, 0, len(items))
	for _, item := range items {
		rec, err := RecordFrom(item)
		if err != nil {
			p.logger.Warn("skipping malformed process record", "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// New dispatches NEW with contextObject and returns the process id.
// The process does not run until Resume, Handle, or a scan picks it up.
func (p *Processor) New(ctx context.Context, contextObject ir.Object) (int64, error) {
	if contextObject == nil {
		contextObject = ir.Object{}
	}
	res, err := p.manager.Dispatch(ctx, ir.Action{
		Type:    ActionNew,
		Payload: ir.Object{"context_object": contextObject},
	})
	if err != nil {
		return 0, fmt.Errorf("new process: %w", err)
	}
	id, ok := res[SliceName].Data.Int("_id")
	if !ok {
		return 0, fmt.Errorf("new process: reducer returned no id")
	}
	return id, nil
}

// Resume runs process id from middleware index start, with retryCount as
// the step's retry counter. start must lie within the chain.
//
// Once the process is claimed its record is read again and the restart
// rules are re-applied: it reports false, without running anything, if the
// process is running elsewhere, complete, asleep, waiting on a retry, or has
// moved on from (start, retryCount) since the caller looked.
func (p *Processor) Resume(ctx context.Context, id int64, start int, retryCount int64) (bool, error) {
	if start < 0 || start > len(p.chain) {
		return false, fmt.Errorf("process %d: start %d outside chain of %d steps", id, start, len(p.chain))
	}
	if retryCount < 0 {
		return false, fmt.Errorf("process %d: negative retry count %d", id, retryCount)
	}
	if !p.claim(id) {
		return false, nil
	}
	defer p.release(id)

	rec, ok := p.Get(id)
	if !ok {
		return false, fmt.Errorf("process %d not found", id)
	}
	if rec.Complete {
		return false, nil
	}
	pt, due := p.decide(rec, p.cfg.Clock())
	if !due {
		return false, nil
	}
	if pt.start != start || pt.retry != retryCount {
		p.logger.Debug("stale resume point",
			"process", id, "start", start, "retry", retryCount,
			"recorded_start", pt.start, "recorded_retry", pt.retry)
		return false, nil
	}
	return true, p.run(ctx, rec, start, retryCount)
}

func (p *Processor) claim(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.active[id]; busy {
		return false
	}
	p.active[id] = struct{}{}
	return true
}

func (p *Processor) release(id int64) {
	p.mu.Lock()
	delete(p.active, id)
	p.mu.Unlock()
}

// Active reports whether process id is running.
func (p *Processor) Active(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[id]
	return ok
}

// cursor enforces that a run only moves forward through the chain.
type cursor struct{ last int }

func (c *cursor) advance(i int) error {
	if i <= c.last {
		return state.Invariant(state.CodeStepOrder, "step %d after step %d", i, c.last)
	}
	c.last = i
	return nil
}

// run is the chain loop. Progress is persisted on every transition past
// start; the run ends when the persisted options suspend it.
// A backward step here is a bug in the loop itself, never caller input.
func (p *Processor) run(ctx context.Context, rec Record, start int, retryCount int64) error {
	id := rec.ID
	logger := p.logger.With("process", id)

	cur := cursor{last: start - 1}
	var step Step
	for idx := start; ; idx++ {
		if err := cur.advance(idx); err != nil {
			panic(err)
		}
		if idx > start {
			var suspend bool
			var err error
			rec, suspend, err = p.persist(ctx, rec, idx, step, retryCount)
			if err != nil {
				return err
			}
			retryCount = 0
			if suspend {
				logger.Debug("process suspended", "function_idx", idx, "complete", rec.Complete)
				return nil
			}
		} else if idx >= len(p.chain) {
			_, _, err := p.persist(ctx, rec, idx, Step{Options: Options{Complete: true}}, 0)
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		pc := newProcessContext(p.cfg.Base, rec, idx, retryCount, p.cfg.Clock())
		var err error
		step, err = p.chain[idx](ctx, pc)
		if err != nil {
			return fmt.Errorf("process %d step %d: %w", id, idx, err)
		}
	}
}

// persist dispatches the linked actions of step, then records that the
// process is now at idx. It reports whether the run must suspend.
func (p *Processor) persist(ctx context.Context, rec Record, idx int, step Step, retryCount int64) (Record, bool, error) {
	opts := step.Options
	complete := opts.Complete || idx >= len(p.chain)

	linkedRes := rec.LastLinked
	if len(step.Linked) > 0 {
		if p.linked == nil {
			return rec, false, fmt.Errorf("process %d: step %d emitted linked actions without a linked store", rec.ID, idx-1)
		}
		linkedRes = ir.Object{}
		for _, action := range step.Linked {
			res, err := p.linked.Dispatch(ctx, action)
			if err != nil {
				return rec, false, fmt.Errorf("process %d linked %s: %w", rec.ID, action.Type, err)
			}
			for slice, v := range res.Value() {
				linkedRes[slice] = v
			}
			if res.Failed() {
				p.logger.Warn("linked dispatch failed, completing process",
					"process", rec.ID, "action", action.Type, "slices", res.FailedSlices())
				complete = true
				break
			}
		}
	}
	if linkedRes == nil {
		linkedRes = ir.Object{}
	}

	if r := opts.RetryUntil; r != nil {
		rt := *r
		rt.Count = retryCount
		rt.NextAt = p.cfg.Clock().Add(rt.Interval)
		opts.RetryUntil = &rt
	}

	res, err := p.manager.Dispatch(ctx, ir.Action{
		Type: ActionStep,
		Payload: ir.Object{
			"_id":           ir.Int(rec.ID),
			"function_idx":  ir.Int(int64(idx)),
			"complete":      ir.Bool(complete),
			"options":       opts.Value(),
			"lastLinkedRes": linkedRes,
		},
	})
	if err != nil {
		return rec, false, fmt.Errorf("process %d persist step %d: %w", rec.ID, idx, err)
	}
	if res.Failed() {
		return rec, false, fmt.Errorf("process %d persist step %d: %s", rec.ID, idx, res[SliceName].Message)
	}

	next, ok := p.Get(rec.ID)
	if !ok {
		return rec, false, fmt.Errorf("process %d vanished", rec.ID)
	}
	return next, complete || opts.pending(), nil
}

// Handler starts a new process from an update context and a trigger value.
type Handler func(ctx context.Context, update ir.Object, trigger ir.Value) (int64, error)

// Listen returns the entry point for new processes.
func (p *Processor) Listen() Handler { return p.Handle }

// Handle dispatches NEW with context_object = update + trigger + request_id,
// then runs the process until it suspends. Step errors are logged, not
// returned: the process stays where it was and a scan will retry it.
func (p *Processor) Handle(ctx context.Context, update ir.Object, trigger ir.Value) (int64, error) {
	ctxObj := make(ir.Object, len(update)+2)
	for k, v := range update {
		ctxObj[k] = v
	}
	if trigger != nil {
		ctxObj[KeyTrigger] = trigger
	}
	ctxObj[KeyRequestID] = ir.String(p.cfg.IDs.Generate())

	id, err := p.New(ctx, ctxObj)
	if err != nil {
		return 0, err
	}
	if _, err := p.Resume(ctx, id, 0, 0); err != nil {
		p.logStepError(id, err)
	}
	return id, nil
}

func (p *Processor) logStepError(id int64, err error) {
	if errors.Is(err, context.Canceled) {
		p.logger.Debug("process run cancelled", "process", id)
		return
	}
	p.logger.Error("process step failed", "process", id, "error", err)
}

// Cleanup removes every complete process record and returns how many.
func (p *Processor) Cleanup(ctx context.Context) (int64, error) {
	res, err := p.manager.Dispatch(ctx, ir.Action{Type: ActionCleanup})
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	n, _ := res[SliceName].Data.Int("removed")
	return n, nil
}
