package workflow

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/statehub/internal/engine"
	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/logconn"
	"github.com/roach88/statehub/internal/state"
	"github.com/roach88/statehub/internal/store"
	"github.com/roach88/statehub/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jobsDef() state.Definition {
	return state.Definition{
		Name:   "factory",
		Slices: []state.SliceDef{{Name: "jobs", Kind: state.KindList, IDStart: 100}},
	}
}

func jobsReducer() engine.Reducer {
	return engine.Reducer{Slice: "jobs", Fn: func(in engine.ReduceInput) (*ir.Info, []state.Op) {
		switch in.Action.Type {
		case "job/create":
			id, _ := in.State.NextID("jobs")
			return &ir.Info{Data: ir.Object{"_id": ir.Int(id)}}, []state.Op{
				state.Add{Doc: ir.Object{"kind": in.Action.Payload["kind"]}},
			}
		case "job/reject":
			return &ir.Info{Failed: true, Message: "no capacity"}, nil
		}
		return nil, nil
	}}
}

// call records one middleware invocation.
type call struct {
	Index int
	Retry int64
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) note(pc ProcessContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{Index: pc.Index(), Retry: pc.RetryCount()})
}

func (r *recorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

// pass is a middleware that records itself and moves on.
func (r *recorder) pass() Middleware {
	return func(_ context.Context, pc ProcessContext) (Step, error) {
		r.note(pc)
		return Step{}, nil
	}
}

type env struct {
	log    *store.Store
	conn   *logconn.Conn
	clk    *testutil.FakeClock
	linked *engine.Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log, err := store.Open(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	clk := testutil.NewFakeClock()
	e := &env{log: log, clk: clk}
	e.conn = e.connect(t)
	e.linked = e.linkedManager(t, e.conn)
	return e
}

func (e *env) connect(t *testing.T) *logconn.Conn {
	t.Helper()
	conn, err := logconn.InitFromDB(context.Background(), e.log, logconn.Options{
		Tenant: "acme",
		Now:    e.clk.Now,
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	return conn
}

func (e *env) linkedManager(t *testing.T, conn *logconn.Conn) *engine.Manager {
	t.Helper()
	m, err := engine.NewManager(state.MustNewStore(jobsDef()), conn, []engine.Reducer{jobsReducer()},
		engine.WithLogger(quietLogger()))
	require.NoError(t, err)
	return m
}

func (e *env) processor(t *testing.T, chain ...Middleware) *Processor {
	t.Helper()
	return e.processorOn(t, e.conn, e.linked, Config{}, chain...)
}

func (e *env) processorOn(t *testing.T, conn *logconn.Conn, linked *engine.Manager, cfg Config, chain ...Middleware) *Processor {
	t.Helper()
	cfg.Clock = e.clk.Now
	cfg.Logger = quietLogger()
	if cfg.IDs == nil {
		cfg.IDs = testutil.NewSequentialIDs("req")
	}
	p, err := NewProcessor(conn, linked, chain, cfg)
	require.NoError(t, err)
	return p
}

func (e *env) lastSeq(t *testing.T) int64 {
	t.Helper()
	seq, err := e.log.LastSeq(context.Background(), "acme")
	require.NoError(t, err)
	return seq
}

func mustGet(t *testing.T, p *Processor, id int64) Record {
	t.Helper()
	rec, ok := p.Get(id)
	require.True(t, ok, "process %d not found", id)
	return rec
}
