package logconn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/store"
)

func openLog(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time { return time.UnixMilli(1_700_000_000_000) }

func testOptions(tenant string) Options {
	return Options{
		Tenant:          tenant,
		PollInterval:    5 * time.Millisecond,
		MaxPollInterval: 20 * time.Millisecond,
		WatchInterval:   5 * time.Millisecond,
		TailInterval:    5 * time.Millisecond,
		Now:             fixedNow,
		Logger:          quietLogger(),
	}
}

func incBatch(head int64) map[string]ir.UpdateBatch {
	return map[string]ir.UpdateBatch{
		"counter": {
			Control: ir.Control{HeadSequence: head},
			Updates: map[string][]ir.WireOp{"n": {{Method: ir.MethodInc}}},
		},
	}
}

func TestInitFromDB_PinnedTenant(t *testing.T) {
	ctx := context.Background()
	log := openLog(t)
	require.NoError(t, log.Append(ctx, ir.LogRecord{Seq: 1, Partition: "acme", Batches: incBatch(0)}))
	require.NoError(t, log.Append(ctx, ir.LogRecord{Seq: 2, Partition: "acme", Batches: incBatch(1)}))

	c, err := InitFromDB(ctx, log, testOptions("acme"))
	require.NoError(t, err)
	assert.Equal(t, "acme", c.Partition())
	assert.Equal(t, int64(2), c.Seq())
}

func TestInitFromDB_PollsUntilTenantExists(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log := openLog(t)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = log.CreateTenant(context.Background(), "late", 1)
	}()

	c, err := InitFromDB(ctx, log, testOptions(""))
	require.NoError(t, err)
	assert.Equal(t, "late", c.Partition())
	assert.Equal(t, int64(0), c.Seq())
}

func TestInitFromDB_CancelWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := InitFromDB(ctx, openLog(t), testOptions(""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

type failingLog struct {
	Log
	err error
}

func (f failingLog) ActivePartition(context.Context) (string, bool, error) {
	return "", false, f.err
}

func (f failingLog) Append(context.Context, ir.LogRecord) error { return f.err }

func TestInitFromDB_StorageErrorIsPermanent(t *testing.T) {
	boom := errors.New("disk gone")
	_, err := InitFromDB(context.Background(), failingLog{err: boom}, testOptions(""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestAppend_AdvancesOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	log := openLog(t)
	c, err := InitFromDB(ctx, log, testOptions("acme"))
	require.NoError(t, err)

	require.NoError(t, c.Lock(ctx))
	seq, err := c.Append(ctx, incBatch(0))
	c.Unlock()
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
	assert.Equal(t, int64(1), c.Seq())
	assert.Equal(t, int64(1), c.Dispatches())

	rec, ok, err := log.ReadRecord(ctx, "acme", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fixedNow().UnixMilli(), rec.Timestamp)

	// Another writer takes seq 2 behind our back.
	require.NoError(t, log.Append(ctx, ir.LogRecord{Seq: 2, Partition: "acme", Batches: incBatch(1)}))

	_, err = c.Append(ctx, incBatch(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrSequenceConflict))
	assert.Equal(t, int64(1), c.Seq(), "failed append must not advance the live sequence")
	assert.Equal(t, int64(1), c.Dispatches())
}

func TestLock_FIFO(t *testing.T) {
	ctx := context.Background()
	c, err := InitFromDB(ctx, openLog(t), testOptions("acme"))
	require.NoError(t, err)

	require.NoError(t, c.Lock(ctx))

	const waiters = 10
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Lock(ctx); err != nil {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			c.Unlock()
		}()
		// Let waiter i queue before i+1.
		time.Sleep(2 * time.Millisecond)
	}

	c.Unlock()
	wg.Wait()

	want := make([]int, waiters)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, order)
}

func TestLock_ContextCancelled(t *testing.T) {
	c, err := InitFromDB(context.Background(), openLog(t), testOptions("acme"))
	require.NoError(t, err)
	require.NoError(t, c.Lock(context.Background()))
	defer c.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.Lock(ctx))
}

func TestWatch_ReportsRotation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := openLog(t)
	require.NoError(t, log.CreateTenant(ctx, "t1", 1))

	c, err := InitFromDB(ctx, log, testOptions(""))
	require.NoError(t, err)
	c.Watch(ctx)

	require.NoError(t, log.CreateTenant(ctx, "t2", 2))

	select {
	case rot := <-c.Rotations():
		assert.Equal(t, Rotation{From: "t1", To: "t2"}, rot)
	case <-time.After(2 * time.Second):
		t.Fatal("no rotation observed")
	}
	assert.Equal(t, "t1", c.Partition(), "connection keeps its partition")
}
