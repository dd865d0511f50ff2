package demo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/statehub/internal/compiler"
	"github.com/roach88/statehub/internal/engine"
	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/logconn"
	"github.com/roach88/statehub/internal/state"
	"github.com/roach88/statehub/internal/workflow"
)

// Options configures NewSystem.
type Options struct {
	// Definitions replaces the embedded store definitions. Every demo store
	// must still be present; slice layout may differ.
	Definitions []state.Definition

	Factory  FactoryConfig
	Workflow workflow.Config

	Clock  func() time.Time
	Logger *slog.Logger
	Hub    *engine.Hub
}

// System is every demo Manager and the factory processor on one connection.
type System struct {
	conn      *logconn.Conn
	hub       *engine.Hub
	names     []string
	managers  map[string]*engine.Manager
	processor *workflow.Processor
}

// counters are the integer HASH fields the demo reducers count with. Each
// must be seeded by the slice's init.
var counters = map[string]map[string][]string{
	StoreInventory: {"stats": {"products", "units"}},
	StoreFactory:   {"machines": {"busy", "capacity"}},
}

func checkCounters(def state.Definition) error {
	for _, sd := range def.Slices {
		for _, field := range counters[def.Name][sd.Name] {
			if _, ok := sd.Init[field].(ir.Int); !ok {
				return fmt.Errorf("demo: %s.%s needs an integer %q in init", def.Name, sd.Name, field)
			}
		}
	}
	return nil
}

func demoReducers() map[string][]engine.Reducer {
	return map[string][]engine.Reducer{
		StoreInventory: InventoryReducers(),
		StoreOrders:    OrderReducers(),
		StoreFactory:   FactoryReducers(),
	}
}

// NewSystem builds the demo on conn. Stores start empty; restore them from
// the log with recovery.RestoreState(…, s.Stores(), …) before dispatching.
func NewSystem(conn *logconn.Conn, opts Options) (*System, error) {
	if opts.Clock == nil {
		opts.Clock = conn.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Hub == nil {
		opts.Hub = engine.NewHub()
	}
	if opts.Factory == (FactoryConfig{}) {
		opts.Factory = DefaultFactoryConfig
	}

	defs := opts.Definitions
	if defs == nil {
		var err error
		if defs, err = Definitions(); err != nil {
			return nil, fmt.Errorf("demo definitions: %w", err)
		}
	}
	if verrs := compiler.Validate(defs, StoreWorkflow); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, fmt.Errorf("demo definitions: %w", errors.Join(errs...))
	}

	s := &System{conn: conn, hub: opts.Hub, managers: make(map[string]*engine.Manager)}
	reducers := demoReducers()
	for _, def := range defs {
		red, ok := reducers[def.Name]
		if !ok {
			return nil, fmt.Errorf("demo: no reducers for store %q", def.Name)
		}
		if err := checkCounters(def); err != nil {
			return nil, err
		}
		st, err := state.NewStore(def)
		if err != nil {
			return nil, err
		}
		m, err := engine.NewManager(st, conn, red,
			engine.WithClock(opts.Clock),
			engine.WithLogger(opts.Logger),
			engine.WithHub(opts.Hub),
		)
		if err != nil {
			return nil, err
		}
		s.names = append(s.names, def.Name)
		s.managers[def.Name] = m
	}
	for name := range reducers {
		if _, ok := s.managers[name]; !ok {
			return nil, fmt.Errorf("demo: store %q is not defined", name)
		}
	}

	wf := opts.Workflow
	wf.Store = StoreWorkflow
	wf.Clock = opts.Clock
	wf.Logger = opts.Logger
	wf.Hub = opts.Hub
	p, err := workflow.NewProcessor(conn, s.managers[StoreFactory], FactoryChain(opts.Factory), wf)
	if err != nil {
		return nil, err
	}
	s.processor = p
	s.names = append(s.names, StoreWorkflow)
	s.managers[StoreWorkflow] = p.Manager()
	return s, nil
}

// Conn returns the shared connection.
func (s *System) Conn() *logconn.Conn { return s.conn }

// Hub returns the change-event hub all Managers publish to.
func (s *System) Hub() *engine.Hub { return s.hub }

// Processor returns the factory workflow processor.
func (s *System) Processor() *workflow.Processor { return s.processor }

// Names lists store names in definition order, the processor last.
func (s *System) Names() []string { return append([]string(nil), s.names...) }

// Manager returns the Manager for a store.
func (s *System) Manager(name string) (*engine.Manager, bool) {
	m, ok := s.managers[name]
	return m, ok
}

// Stores returns every Store, in Names order.
func (s *System) Stores() []*state.Store {
	out := make([]*state.Store, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.managers[name].Store())
	}
	return out
}

// Dispatch sends action to the named store.
func (s *System) Dispatch(ctx context.Context, store string, action ir.Action) (engine.Result, error) {
	m, ok := s.managers[store]
	if !ok {
		return nil, fmt.Errorf("unknown store %q", store)
	}
	return m.Dispatch(ctx, action)
}

// StartOrder begins the factory workflow for an order.
func (s *System) StartOrder(ctx context.Context, order, item, qty int64) (int64, error) {
	return s.processor.Listen()(ctx, ir.Object{
		KeyOrder: ir.Int(order),
		KeyItem:  ir.Int(item),
		KeyQty:   ir.Int(qty),
	}, ir.String("order"))
}

// Debug returns {store: Debug()} for every store.
func (s *System) Debug() ir.Object {
	out := make(ir.Object, len(s.names))
	for _, name := range s.names {
		out[name] = s.managers[name].Debug()
	}
	return out
}
