package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statehub/internal/ir"
)

func ordersDef() Definition {
	return Definition{
		Name: "orders",
		Slices: []SliceDef{
			{Name: "orders", Kind: KindList, IDStart: 1, DisplayFormat: "ORD-%05d"},
			{Name: "settings", Kind: KindHash, Init: ir.Object{"open": ir.Bool(true)}},
			{Name: "order_seq", Kind: KindCounter},
		},
	}
}

func batch(head int64, updates map[string][]Op) Batch {
	return Batch{Control: ir.Control{HeadSequence: head, LastUpdated: 1000 + head}, Updates: updates}
}

func TestNewStore_InitialValues(t *testing.T) {
	s := MustNewStore(ordersDef())

	assert.Equal(t, "orders", s.Name())
	assert.Equal(t, int64(0), s.Head())

	v, ok := s.GetValue("orders", "")
	require.True(t, ok)
	assert.Equal(t, ir.Array{}, v)

	open, ok := s.GetValue("settings", "open")
	require.True(t, ok)
	assert.Equal(t, ir.Bool(true), open)

	n, ok := s.GetValue("order_seq", "")
	require.True(t, ok)
	assert.Equal(t, ir.Int(0), n)

	next, ok := s.NextID("orders")
	require.True(t, ok)
	assert.Equal(t, int64(1), next)
}

func TestNewStore_InvalidDefinition(t *testing.T) {
	_, err := NewStore(Definition{Name: "x", Slices: []SliceDef{{Name: "a", Kind: "TREE"}}})
	assert.Error(t, err)

	_, err = NewStore(Definition{Name: "x", Slices: []SliceDef{{Name: "a", Kind: KindList}, {Name: "a", Kind: KindHash}}})
	assert.Error(t, err)

	_, err = NewStore(Definition{Name: "x", Slices: []SliceDef{{Name: "a", Kind: KindHash, DisplayFormat: "%d"}}})
	assert.Error(t, err)
}

func TestApply_AddAssignsIDAndDisplay(t *testing.T) {
	s := MustNewStore(ordersDef())

	err := s.Apply(batch(0, map[string][]Op{
		"orders": {Add{Doc: ir.Object{"sku": ir.String("A")}}, Add{Doc: ir.Object{"sku": ir.String("B")}}},
	}))
	require.NoError(t, err)

	assert.Equal(t, int64(1), s.Head())
	assert.Equal(t, int64(1001), s.Control().LastUpdated)

	items := s.Items("orders")
	require.Len(t, items, 2)
	assert.Equal(t, ir.Int(1), items[0]["_id"])
	assert.Equal(t, ir.String("ORD-00001"), items[0]["identifier"])
	assert.Equal(t, ir.Int(2), items[1]["_id"])
	assert.Equal(t, ir.String("ORD-00002"), items[1]["identifier"])
}

func TestApply_AddRejectsExplicitID(t *testing.T) {
	s := MustNewStore(ordersDef())

	err := s.Apply(batch(0, map[string][]Op{
		"orders": {Add{Doc: ir.Object{"_id": ir.Int(9)}}},
	}))
	assert.Equal(t, CodeInvalidOp, InvariantCodeOf(err))
	assert.Equal(t, int64(0), s.Head())
}

func TestApply_IDsNeverReused(t *testing.T) {
	s := MustNewStore(ordersDef())

	require.NoError(t, s.Apply(batch(0, map[string][]Op{"orders": {Add{Doc: ir.Object{}}, Add{Doc: ir.Object{}}}})))
	require.NoError(t, s.Apply(batch(1, map[string][]Op{"orders": {Remove{ID: 2}}})))
	require.NoError(t, s.Apply(batch(2, map[string][]Op{"orders": {Add{Doc: ir.Object{}}}})))

	items := s.Items("orders")
	require.Len(t, items, 2)
	assert.Equal(t, ir.Int(1), items[0]["_id"])
	assert.Equal(t, ir.Int(3), items[1]["_id"])
}

func TestApply_HeadMismatch(t *testing.T) {
	s := MustNewStore(ordersDef())

	err := s.Apply(batch(3, map[string][]Op{"order_seq": {Increment{}}}))
	require.Error(t, err)
	assert.True(t, IsInvariant(err))
	assert.Equal(t, CodeHeadMismatch, InvariantCodeOf(err))
	assert.Equal(t, int64(0), s.Head())
}

func TestApply_EmptyBatchAdvancesHead(t *testing.T) {
	s := MustNewStore(ordersDef())

	require.NoError(t, s.Apply(batch(0, nil)))
	require.NoError(t, s.Apply(batch(1, map[string][]Op{})))
	assert.Equal(t, int64(2), s.Head())
}

func TestApply_UnknownSlice(t *testing.T) {
	s := MustNewStore(ordersDef())

	err := s.Apply(batch(0, map[string][]Op{"nope": {Increment{}}}))
	assert.Equal(t, CodeUnknownSlice, InvariantCodeOf(err))
}

func TestApply_MissingTargetLeavesStoreUntouched(t *testing.T) {
	s := MustNewStore(ordersDef())
	require.NoError(t, s.Apply(batch(0, map[string][]Op{"orders": {Add{Doc: ir.Object{"n": ir.Int(1)}}}})))
	before := s.Snapshot()

	err := s.Apply(batch(1, map[string][]Op{
		"order_seq": {Increment{}},
		"orders":    {Update{Filter: ByID(42), SetFields: ir.Object{"n": ir.Int(2)}}},
	}))
	require.Error(t, err)
	assert.Equal(t, CodeMissingTarget, InvariantCodeOf(err))

	var ie *InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "orders", ie.Store)
	assert.Equal(t, "orders", ie.Slice)

	assert.True(t, ir.Equal(before, s.Snapshot()), "failed apply must not change the store")
}

func TestApply_RemoveMissing(t *testing.T) {
	s := MustNewStore(ordersDef())
	err := s.Apply(batch(0, map[string][]Op{"orders": {Remove{ID: 1}}}))
	assert.Equal(t, CodeMissingTarget, InvariantCodeOf(err))
}

func TestApply_CounterOnlyIncrements(t *testing.T) {
	s := MustNewStore(ordersDef())

	require.NoError(t, s.Apply(batch(0, map[string][]Op{"order_seq": {Increment{}, Increment{}}})))
	n, _ := s.GetValue("order_seq", "")
	assert.Equal(t, ir.Int(2), n)

	err := s.Apply(batch(1, map[string][]Op{"order_seq": {Set{Doc: ir.Object{}}}}))
	assert.Equal(t, CodeKindMismatch, InvariantCodeOf(err))
}

func TestApply_UpdateSetAndShallowMerge(t *testing.T) {
	s := MustNewStore(ordersDef())
	require.NoError(t, s.Apply(batch(0, map[string][]Op{
		"orders": {Add{Doc: ir.Object{
			"status": ir.String("new"),
			"meta":   ir.Object{"a": ir.Object{"x": ir.Int(1), "z": ir.Int(9)}, "b": ir.Int(1)},
		}}},
	})))

	require.NoError(t, s.Apply(batch(1, map[string][]Op{
		"orders": {Update{
			Filter:    ByID(1),
			SetFields: ir.Object{"status": ir.String("paid")},
			MergeFields: ir.Object{
				"meta": ir.Object{"a": ir.Object{"x": ir.Int(1), "y": ir.Int(2)}},
			},
		}},
	})))

	status, ok := s.GetValue("orders", "status", 1)
	require.True(t, ok)
	assert.Equal(t, ir.String("paid"), status)

	meta, ok := s.GetValue("orders", "meta", 1)
	require.True(t, ok)
	// One level deep: "a" is replaced wholesale, "b" survives.
	assert.Equal(t, ir.Object{
		"a": ir.Object{"x": ir.Int(1), "y": ir.Int(2)},
		"b": ir.Int(1),
	}, meta)
}

func TestApply_SetPreservesIdentity(t *testing.T) {
	s := MustNewStore(ordersDef())
	require.NoError(t, s.Apply(batch(0, map[string][]Op{"orders": {Add{Doc: ir.Object{"v": ir.Int(1)}}}})))
	require.NoError(t, s.Apply(batch(1, map[string][]Op{"orders": {Set{Filter: ByID(1), Doc: ir.Object{"w": ir.Int(2)}}}})))

	items := s.Items("orders")
	require.Len(t, items, 1)
	assert.Equal(t, ir.Object{
		"_id":        ir.Int(1),
		"identifier": ir.String("ORD-00001"),
		"w":          ir.Int(2),
	}, items[0])
}

func TestApply_HashSetPathCreatesIntermediates(t *testing.T) {
	s := MustNewStore(ordersDef())
	require.NoError(t, s.Apply(batch(0, map[string][]Op{
		"settings": {Set{Path: "limits.daily", Doc: ir.Object{"max": ir.Int(5)}}},
	})))

	v, ok := s.GetValue("settings", "limits.daily.max")
	require.True(t, ok)
	assert.Equal(t, ir.Int(5), v)

	open, _ := s.GetValue("settings", "open")
	assert.Equal(t, ir.Bool(true), open)
}

func TestApply_HashRejectsFilter(t *testing.T) {
	s := MustNewStore(ordersDef())
	err := s.Apply(batch(0, map[string][]Op{"settings": {Set{Filter: ByID(1), Doc: ir.Object{}}}}))
	assert.Equal(t, CodeInvalidOp, InvariantCodeOf(err))
}

func TestApply_ReadersKeepOldSnapshot(t *testing.T) {
	s := MustNewStore(ordersDef())
	require.NoError(t, s.Apply(batch(0, map[string][]Op{"orders": {Add{Doc: ir.Object{"v": ir.Int(1)}}}})))

	held := s.Items("orders")
	require.NoError(t, s.Apply(batch(1, map[string][]Op{
		"orders": {Update{Filter: ByID(1), SetFields: ir.Object{"v": ir.Int(2)}}},
	})))

	assert.Equal(t, ir.Int(1), held[0]["v"], "earlier read must not observe later writes")
	assert.Equal(t, ir.Int(2), s.Items("orders")[0]["v"])
}

func TestApply_ConcurrentReaders(t *testing.T) {
	s := MustNewStore(ordersDef())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				items := s.Items("orders")
				for i, it := range items {
					assert.Equal(t, ir.Int(int64(i+1)), it["_id"])
				}
			}
		}()
	}

	for i := range int64(100) {
		require.NoError(t, s.Apply(batch(i, map[string][]Op{"orders": {Add{Doc: ir.Object{}}}})))
	}
	close(stop)
	wg.Wait()
	assert.Len(t, s.Items("orders"), 100)
}

func TestApplyWire_DecodesOps(t *testing.T) {
	s := MustNewStore(ordersDef())
	w := ir.UpdateBatch{
		Control: ir.Control{HeadSequence: 0, LastUpdated: 5},
		Updates: map[string][]ir.WireOp{
			"orders":    {{Method: ir.MethodAdd, Doc: ir.Object{"k": ir.String("v")}}},
			"order_seq": {{Method: ir.MethodInc}},
		},
	}
	require.NoError(t, s.ApplyWire(w))
	assert.Equal(t, int64(1), s.Head())

	err := s.ApplyWire(ir.UpdateBatch{
		Control: ir.Control{HeadSequence: 1},
		Updates: map[string][]ir.WireOp{"orders": {{Method: "UPSERT"}}},
	})
	assert.Equal(t, CodeUnknownMethod, InvariantCodeOf(err))
}

func TestDebug(t *testing.T) {
	s := MustNewStore(ordersDef())
	require.NoError(t, s.Apply(batch(0, map[string][]Op{"order_seq": {Increment{}}})))

	d := s.Debug()
	ctrl, ok := d.Obj("control")
	require.True(t, ok)
	assert.Equal(t, ir.Int(1), ctrl["head_sequence"])

	slices, ok := d.Obj("slices")
	require.True(t, ok)
	assert.Equal(t, ir.Int(1), slices["order_seq"])
	assert.Equal(t, ir.Array{}, slices["orders"])
}

func TestPrepare_CommitOnlyOnce(t *testing.T) {
	s := MustNewStore(ordersDef())

	p, err := s.Prepare(batch(0, map[string][]Op{"order_seq": {Increment{}}}))
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Head(), "prepare must not publish")

	require.NoError(t, p.Commit())
	assert.Equal(t, int64(1), s.Head())

	err = p.Commit()
	assert.Equal(t, CodeHeadMismatch, InvariantCodeOf(err))
	assert.Equal(t, int64(1), s.Head())
}
