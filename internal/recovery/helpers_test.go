package recovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

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

func ledgerDef() state.Definition {
	return state.Definition{
		Name: "ledger",
		Slices: []state.SliceDef{
			{Name: "entries", Kind: state.KindList, DisplayFormat: "ENT-%03d"},
			{Name: "totals", Kind: state.KindHash, Init: ir.Object{"count": ir.Int(0)}},
			{Name: "ticks", Kind: state.KindCounter},
		},
	}
}

func ledgerReducers() []engine.Reducer {
	return []engine.Reducer{
		{Slice: "entries", Fn: func(in engine.ReduceInput) (*ir.Info, []state.Op) {
			switch in.Action.Type {
			case "entry/add":
				return nil, []state.Op{state.Add{Doc: ir.Object{"amount": in.Action.Payload["amount"]}}}
			case "entry/drop":
				id, _ := in.Action.Payload.Int("id")
				return nil, []state.Op{state.Remove{ID: id}}
			}
			return nil, nil
		}},
		{Slice: "totals", Fn: func(in engine.ReduceInput) (*ir.Info, []state.Op) {
			if in.Action.Type != "entry/add" {
				return nil, nil
			}
			v, _ := in.State.GetValue("totals", "count")
			return nil, []state.Op{state.Update{SetFields: ir.Object{"count": ir.Int(int64(v.(ir.Int)) + 1)}}}
		}},
		{Slice: "ticks", Fn: func(engine.ReduceInput) (*ir.Info, []state.Op) {
			return nil, []state.Op{state.Increment{}}
		}},
	}
}

type fixture struct {
	log     *store.Store
	conn    *logconn.Conn
	clk     *testutil.FakeClock
	manager *engine.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, err := store.Open(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	clk := testutil.NewFakeClock()
	conn, err := logconn.InitFromDB(context.Background(), log, logconn.Options{
		Tenant: "acme",
		Now:    clk.Now,
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	m, err := engine.NewManager(state.MustNewStore(ledgerDef()), conn, ledgerReducers(), engine.WithLogger(quietLogger()))
	require.NoError(t, err)
	return &fixture{log: log, conn: conn, clk: clk, manager: m}
}

// newConn opens a second connection to the same log, as a restarted process would.
func (f *fixture) newConn(t *testing.T) *logconn.Conn {
	t.Helper()
	conn, err := logconn.InitFromDB(context.Background(), f.log, logconn.Options{
		Tenant: "acme",
		Now:    f.clk.Now,
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	return conn
}

func (f *fixture) add(t *testing.T, amount int64) {
	t.Helper()
	f.clk.Advance(time.Second)
	_, err := f.manager.Dispatch(context.Background(), ir.Action{
		Type:    "entry/add",
		Payload: ir.Object{"amount": ir.Int(amount)},
	})
	require.NoError(t, err)
}

func (f *fixture) drop(t *testing.T, id int64) {
	t.Helper()
	f.clk.Advance(time.Second)
	_, err := f.manager.Dispatch(context.Background(), ir.Action{
		Type:    "entry/drop",
		Payload: ir.Object{"id": ir.Int(id)},
	})
	require.NoError(t, err)
}

func serialized(t *testing.T, st *state.Store) string {
	t.Helper()
	data, err := st.Serialize()
	require.NoError(t, err)
	return string(data)
}

// fixedCheckpoints serves one checkpoint and records writes.
type fixedCheckpoints struct {
	cp      store.Checkpoint
	ok      bool
	written []store.Checkpoint
}

func (f *fixedCheckpoints) WriteCheckpoint(_ context.Context, cp store.Checkpoint) error {
	f.written = append(f.written, cp)
	return nil
}

func (f *fixedCheckpoints) LatestCheckpoint(context.Context, string) (store.Checkpoint, bool, error) {
	return f.cp, f.ok, nil
}

func (f *fixedCheckpoints) PruneCheckpoints(context.Context, string, int) (int64, error) {
	return 0, nil
}

type failingCheckpoints struct{ fixedCheckpoints }

func (failingCheckpoints) LatestCheckpoint(context.Context, string) (store.Checkpoint, bool, error) {
	return store.Checkpoint{}, false, fmt.Errorf("disk on fire")
}
