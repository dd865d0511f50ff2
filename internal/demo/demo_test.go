package demo

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statehub/internal/engine"
	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/logconn"
	"github.com/roach88/statehub/internal/recovery"
	"github.com/roach88/statehub/internal/state"
	"github.com/roach88/statehub/internal/store"
	"github.com/roach88/statehub/internal/testutil"
	"github.com/roach88/statehub/internal/workflow"
)

type harness struct {
	log *store.Store
	clk *testutil.FakeClock
	sys *System
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (h *harness) connect(t *testing.T) *logconn.Conn {
	t.Helper()
	conn, err := logconn.InitFromDB(context.Background(), h.log, logconn.Options{
		Tenant: "acme", Now: h.clk.Now, Logger: quietLogger(),
	})
	require.NoError(t, err)
	return conn
}

func (h *harness) system(t *testing.T, conn *logconn.Conn) *System {
	t.Helper()
	sys, err := NewSystem(conn, Options{
		Factory:  FactoryConfig{BuildTime: time.Minute, Inspections: 2, InspectInterval: 10 * time.Second},
		Workflow: workflowConfig(),
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	return sys
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, err := store.Open(filepath.Join(t.TempDir(), "demo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	h := &harness{log: log, clk: testutil.NewFakeClock()}
	h.sys = h.system(t, h.connect(t))
	return h
}

func (h *harness) dispatch(t *testing.T, store, typ string, payload ir.Object) ir.Object {
	t.Helper()
	res, err := h.sys.Dispatch(context.Background(), store, ir.Action{Type: typ, Payload: payload})
	require.NoError(t, err)
	return res.Value()
}

func TestDefinitionsCompile(t *testing.T) {
	defs, err := Definitions()
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, StoreInventory, defs[0].Name)
	assert.Equal(t, StoreOrders, defs[1].Name)
	assert.Equal(t, StoreFactory, defs[2].Name)

	items, ok := defs[0].Slice("items")
	require.True(t, ok)
	assert.Equal(t, "SKU-%04d", items.DisplayFormat)
}

func TestInventory(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, StoreInventory, ActionItemAdd, ir.Object{"name": ir.String("bolt"), "qty": ir.Int(10), "price": ir.Int(25)})

	sku, ok := h.sys.managers[StoreInventory].GetValue("items", "sku", 1)
	require.True(t, ok)
	assert.Equal(t, ir.String("SKU-0001"), sku)

	res := h.dispatch(t, StoreInventory, ActionItemReserve, ir.Object{"id": ir.Int(1), "qty": ir.Int(11)})
	items, _ := res.Obj("items")
	failed, _ := items.Bool("failed")
	assert.True(t, failed)

	h.dispatch(t, StoreInventory, ActionItemReserve, ir.Object{"id": ir.Int(1), "qty": ir.Int(4)})
	h.dispatch(t, StoreInventory, ActionItemRestock, ir.Object{"id": ir.Int(1), "qty": ir.Int(2)})

	qty, _ := h.sys.managers[StoreInventory].GetValue("items", "qty", 1)
	assert.Equal(t, ir.Int(8), qty)
	units, _ := h.sys.managers[StoreInventory].GetValue("stats", "units")
	assert.Equal(t, ir.Int(8), units)

	h.dispatch(t, StoreInventory, ActionItemRemove, ir.Object{"id": ir.Int(1)})
	products, _ := h.sys.managers[StoreInventory].GetValue("stats", "products")
	units, _ = h.sys.managers[StoreInventory].GetValue("stats", "units")
	assert.Equal(t, ir.Int(0), products)
	assert.Equal(t, ir.Int(0), units)
}

func TestOrders_PassInReservesNumber(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, StoreOrders, ActionOrderPlace, ir.Object{"item": ir.Int(1), "qty": ir.Int(2), "amount": ir.Int(500)})
	res := h.dispatch(t, StoreOrders, ActionOrderPlace, ir.Object{"item": ir.Int(1), "qty": ir.Int(0)})
	h.dispatch(t, StoreOrders, ActionOrderPlace, ir.Object{"item": ir.Int(2), "qty": ir.Int(1), "amount": ir.Int(100)})

	orders, _ := res.Obj("orders")
	failed, _ := orders.Bool("failed")
	assert.True(t, failed, "qty 0 is rejected")

	m := h.sys.managers[StoreOrders]
	seq, _ := m.GetValue("order_seq", "")
	assert.Equal(t, ir.Int(3), seq, "the rejected order still consumed a number")

	second, _ := m.GetValue("orders", "seq", 2)
	number, _ := m.GetValue("orders", "number", 2)
	assert.Equal(t, ir.Int(3), second)
	assert.Equal(t, ir.String("ORD-00002"), number)
}

func TestFactoryWorkflow_RunsToCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.sys.Processor()

	id, err := h.sys.StartOrder(ctx, 1, 7, 3)
	require.NoError(t, err)

	rec, _ := p.Get(id)
	assert.Equal(t, 2, rec.FunctionIdx, "sleeping in build")
	factory := h.sys.managers[StoreFactory]
	busy, _ := factory.GetValue("machines", "busy")
	assert.Equal(t, ir.Int(1), busy)

	h.clk.Advance(time.Minute)
	assert.Equal(t, 1, p.Scan(ctx))
	rec, _ = p.Get(id)
	assert.Equal(t, 3, rec.FunctionIdx, "first inspection asked for a retry")
	assert.False(t, rec.Complete)

	h.clk.Advance(10 * time.Second)
	assert.Equal(t, 1, p.Scan(ctx))
	rec, _ = p.Get(id)
	assert.True(t, rec.Complete)

	status, _ := factory.GetValue("jobs", "status", 1)
	assert.Equal(t, ir.String("done"), status)
	busy, _ = factory.GetValue("machines", "busy")
	assert.Equal(t, ir.Int(0), busy)
}

func TestFactoryWorkflow_CapacityCompletesWithoutJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for order := range int64(3) {
		_, err := h.sys.StartOrder(ctx, order+1, 1, 1)
		require.NoError(t, err)
	}

	recs := h.sys.Processor().Records()
	require.Len(t, recs, 3)
	assert.False(t, recs[0].Complete)
	assert.False(t, recs[1].Complete)
	assert.True(t, recs[2].Complete, "third job finds both machines busy")
	assert.Len(t, h.sys.managers[StoreFactory].Store().Items("jobs"), 2)
}

func TestSystem_RestoreMatchesLive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.dispatch(t, StoreInventory, ActionItemAdd, ir.Object{"name": ir.String("nut"), "qty": ir.Int(3), "price": ir.Int(5)})
	h.dispatch(t, StoreOrders, ActionOrderPlace, ir.Object{"item": ir.Int(1), "qty": ir.Int(1), "amount": ir.Int(5)})
	_, err := h.sys.StartOrder(ctx, 1, 1, 1)
	require.NoError(t, err)

	restarted := h.system(t, h.connect(t))
	_, err = recovery.RestoreState(ctx, restarted.Conn(), h.log, restarted.Stores(),
		recovery.RestoreOptions{UseCheckpoint: true, Logger: quietLogger()})
	require.NoError(t, err)

	assert.True(t, ir.Equal(h.sys.Debug(), restarted.Debug()))
	assert.Equal(t, h.sys.Conn().Seq(), restarted.Conn().Seq())
}

func TestNewSystem_RejectsMissingStore(t *testing.T) {
	h := newHarness(t)
	defs, err := Definitions()
	require.NoError(t, err)

	_, err = NewSystem(h.sys.Conn(), Options{Definitions: defs[:2], Logger: quietLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factory")

	_, err = NewSystem(h.sys.Conn(), Options{
		Definitions: append(defs, state.Definition{Name: "workflow", Slices: []state.SliceDef{{Name: "x", Kind: state.KindCounter}}}),
		Logger:      quietLogger(),
	})
	require.Error(t, err)
}

func TestNewSystem_RejectsUnseededCounters(t *testing.T) {
	h := newHarness(t)

	for _, tt := range []struct{ store, slice, want string }{
		{StoreFactory, "machines", `factory.machines needs an integer "busy" in init`},
		{StoreInventory, "stats", `inventory.stats needs an integer "products" in init`},
	} {
		t.Run(tt.store, func(t *testing.T) {
			defs, err := Definitions()
			require.NoError(t, err)
			for i := range defs {
				if defs[i].Name != tt.store {
					continue
				}
				for j := range defs[i].Slices {
					if defs[i].Slices[j].Name == tt.slice {
						defs[i].Slices[j].Init = nil
					}
				}
			}

			_, err = NewSystem(h.sys.Conn(), Options{Definitions: defs, Logger: quietLogger()})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReducers_UnseededHashReadsZero(t *testing.T) {
	factory := state.MustNewStore(state.Definition{Name: StoreFactory, Slices: []state.SliceDef{
		{Name: "jobs", Kind: state.KindList, IDStart: 1},
		{Name: "machines", Kind: state.KindHash},
	}})
	start := ir.Action{Type: ActionJobStart, Payload: ir.Object{"order": ir.Int(1), "item": ir.Int(1), "qty": ir.Int(1)}}

	var info *ir.Info
	var ops []state.Op
	require.NotPanics(t, func() {
		info, ops = reduceJobs(engine.ReduceInput{Action: start, Slice: "jobs", State: factory})
	})
	require.NotNil(t, info)
	assert.True(t, info.Failed)
	assert.Equal(t, "factory at capacity (0/0)", info.Message)
	assert.Empty(t, ops)
	require.NotPanics(t, func() {
		info, ops = reduceMachines(engine.ReduceInput{Action: start, Slice: "machines", State: factory})
	})
	assert.Nil(t, info)
	assert.Empty(t, ops)

	inventory := state.MustNewStore(state.Definition{Name: StoreInventory, Slices: []state.SliceDef{
		{Name: "items", Kind: state.KindList, IDStart: 1},
		{Name: "stats", Kind: state.KindHash},
	}})
	add := ir.Action{Type: ActionItemAdd, Payload: ir.Object{"name": ir.String("bolt"), "qty": ir.Int(4), "price": ir.Int(2)}}
	require.NotPanics(t, func() {
		_, ops = reduceStats(engine.ReduceInput{Action: add, Slice: "stats", State: inventory})
	})
	assert.Equal(t, []state.Op{state.Update{SetFields: ir.Object{"products": ir.Int(1), "units": ir.Int(4)}}}, ops)
}

func workflowConfig() workflow.Config {
	return workflow.Config{IDs: testutil.NewSequentialIDs("req")}
}
