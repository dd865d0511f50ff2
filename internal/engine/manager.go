package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/logconn"
	"github.com/roach88/statehub/internal/state"
)

// Manager runs the dispatch cycle for one Store: reduce, append, apply.
//
// Thread-safety model:
//   - Dispatch(): safe from any goroutine; serialized by the connection gate
//   - GetValue()/Debug(): safe from any goroutine, read the latest snapshot
//   - ProcessAction(): pure with respect to the Store, safe anywhere
//
// INVARIANTS:
//   - reducer order NEVER changes after construction
//   - the Store is mutated only inside Dispatch, while the gate is held
//   - a record is appended before the matching snapshot is published
type Manager struct {
	name   string
	store  *state.Store
	conn   *logconn.Conn
	reg    *registry
	now    func() time.Time
	logger *slog.Logger
	hub    *Hub
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the wall clock used for control.lastupdated.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHub publishes change events to h instead of a private hub.
func WithHub(h *Hub) Option {
	return func(m *Manager) { m.hub = h }
}

// NewManager composes reducers over st and binds them to conn.
//
// The reducers slice is copied; its order is the order ops are collected in.
// Returns a RuntimeError with ErrCodeInvalidRegistry if the list cannot be
// composed.
func NewManager(st *state.Store, conn *logconn.Conn, reducers []Reducer, opts ...Option) (*Manager, error) {
	reg, err := newRegistry(st, reducers)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		name:   st.Name(),
		store:  st,
		conn:   conn,
		reg:    reg,
		now:    conn.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hub == nil {
		m.hub = NewHub()
	}
	m.logger = m.logger.With("store", m.name)
	return m, nil
}

// Name returns the Store name.
func (m *Manager) Name() string { return m.name }

// Store returns the managed Store for reads.
func (m *Manager) Store() *state.Store { return m.store }

// Conn returns the log connection.
func (m *Manager) Conn() *logconn.Conn { return m.conn }

// Hub returns the change-event hub.
func (m *Manager) Hub() *Hub { return m.hub }

// GetValue reads from the current snapshot.
func (m *Manager) GetValue(slice, path string, id ...int64) (ir.Value, bool) {
	return m.store.GetValue(slice, path, id...)
}

// Debug returns the whole Store as a document.
func (m *Manager) Debug() ir.Object { return m.store.Debug() }

// ProcessAction runs every reducer against action and collects one batch.
//
// Reducers run in registration order. A reducer with a pass-in dependency
// calls the dependency first; the dependency's ops go into the batch under
// its own slice and its output is handed over. Pass-in targets are skipped
// when their turn comes, so they run exactly once.
//
// The control block carries the current head (the value Apply checks) and
// the wall clock in milliseconds.
func (m *Manager) ProcessAction(action ir.Action) (state.Batch, Result) {
	batch := state.Batch{
		Control: ir.Control{
			HeadSequence: m.store.Head(),
			LastUpdated:  m.now().UnixMilli(),
		},
		Updates: make(map[string][]state.Op),
	}
	res := make(Result)

	for _, red := range m.reg.order {
		if _, isTarget := m.reg.passInTargets[red.Slice]; isTarget {
			continue
		}

		in := ReduceInput{Action: action, Slice: red.Slice, State: m.store}
		if red.PassIn != "" {
			dep := m.reg.bySlice[red.PassIn]
			depInfo, depOps := dep.Fn(ReduceInput{Action: action, Slice: dep.Slice, State: m.store})
			collect(batch, res, dep.Slice, depInfo, depOps)
			in.PassIn = &PassIn{Slice: dep.Slice, Info: depInfo, Ops: depOps}
		}

		info, ops := red.Fn(in)
		collect(batch, res, red.Slice, info, ops)
	}
	return batch, res
}

func collect(b state.Batch, res Result, slice string, info *ir.Info, ops []state.Op) {
	if len(ops) > 0 {
		b.Updates[slice] = append(b.Updates[slice], ops...)
	}
	if info != nil {
		res[slice] = *info
	}
}

// Dispatch is the atomic cycle: acquire the gate, reduce, append one record,
// apply it, publish a change event, release.
//
// A dispatch whose reducers produce no ops appends nothing. If the append
// fails the error is returned and the Store is untouched. A batch the Store
// rejects is an invariant violation: Dispatch panics before anything is
// appended, or, if the Store changed under the gate, after.
//
// The returned Result is advisory; Failed() does not mean nothing was written.
func (m *Manager) Dispatch(ctx context.Context, action ir.Action) (Result, error) {
	if err := m.conn.Lock(ctx); err != nil {
		return nil, fmt.Errorf("dispatch %s: acquire gate: %w", action.Type, err)
	}
	defer m.conn.Unlock()

	batch, res := m.ProcessAction(action)
	if batch.Empty() {
		m.logger.Debug("dispatch produced no updates", "action", action.Type)
		return res, nil
	}

	pending, err := m.store.Prepare(batch)
	if err != nil {
		m.logger.Error("invariant violation", "action", action.Type, "error", err)
		panic(err)
	}

	seq, err := m.conn.Append(ctx, map[string]ir.UpdateBatch{m.name: batch.Wire()})
	if err != nil {
		return res, &RuntimeError{
			Code:    ErrCodeAppendFailed,
			Message: fmt.Sprintf("dispatch %s", action.Type),
			Store:   m.name,
			Err:     err,
		}
	}

	if err := pending.Commit(); err != nil {
		m.logger.Error("invariant violation after append", "action", action.Type, "seq", seq, "error", err)
		panic(err)
	}

	m.logger.Debug("dispatched",
		"action", action.Type,
		"seq", seq,
		"head", m.store.Head(),
		"failed", res.Failed(),
	)
	m.hub.Publish(ChangeEvent{
		Store:  m.name,
		Seq:    seq,
		Head:   m.store.Head(),
		Slices: touched(m.store.Definition(), batch),
	})
	return res, nil
}

func touched(def state.Definition, b state.Batch) []string {
	var out []string
	for _, sd := range def.Slices {
		if len(b.Updates[sd.Name]) > 0 {
			out = append(out, sd.Name)
		}
	}
	return out
}
