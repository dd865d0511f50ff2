package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/statehub/internal/logconn"
	"github.com/roach88/statehub/internal/state"
	"github.com/roach88/statehub/internal/store"
)

// Checkpoints persists and loads checkpoint artifacts. *store.Store implements it.
type Checkpoints interface {
	WriteCheckpoint(ctx context.Context, cp store.Checkpoint) error
	LatestCheckpoint(ctx context.Context, tenant string) (store.Checkpoint, bool, error)
	PruneCheckpoints(ctx context.Context, tenant string, keep int) (int64, error)
}

// Defaults for CheckpointOptions.
const (
	DefaultInterval  = time.Minute
	DefaultThreshold = 100
)

// CheckpointOptions configures a Checkpointer. Zero values take the defaults.
type CheckpointOptions struct {
	// Interval between threshold checks in Start.
	Interval time.Duration

	// Threshold is how many dispatches must happen after the last
	// checkpoint before the next one is taken.
	Threshold int64

	// Keep, when positive, prunes all but the newest Keep checkpoints.
	Keep int

	Now    func() time.Time
	Logger *slog.Logger
}

// Checkpointer periodically snapshots a set of Stores sharing one connection.
type Checkpointer struct {
	conn   *logconn.Conn
	cps    Checkpoints
	stores []*state.Store
	opts   CheckpointOptions
	logger *slog.Logger

	mu   sync.Mutex
	last int64 // conn.Dispatches() at the last checkpoint
}

// NewCheckpointer binds stores to conn and cps.
func NewCheckpointer(conn *logconn.Conn, cps Checkpoints, stores []*state.Store, opts CheckpointOptions) *Checkpointer {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Now == nil {
		opts.Now = conn.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Checkpointer{
		conn:   conn,
		cps:    cps,
		stores: stores,
		opts:   opts,
		logger: opts.Logger.With("tenant", conn.Partition()),
	}
}

// SnapshotState writes a checkpoint of every Store at the live sequence.
//
// The gate is held while the Stores are serialized, so the artifact matches
// exactly one log position. The write itself happens after the gate is
// released.
func (c *Checkpointer) SnapshotState(ctx context.Context) (store.Checkpoint, error) {
	if err := c.conn.Lock(ctx); err != nil {
		return store.Checkpoint{}, fmt.Errorf("checkpoint: acquire gate: %w", err)
	}
	seq := c.conn.Seq()
	dispatches := c.conn.Dispatches()
	cp, err := BuildArtifact(c.conn.Partition(), seq, c.opts.Now(), c.stores)
	c.conn.Unlock()
	if err != nil {
		return store.Checkpoint{}, err
	}

	if err := c.cps.WriteCheckpoint(ctx, cp); err != nil {
		return store.Checkpoint{}, fmt.Errorf("checkpoint %s: %w", cp.Name, err)
	}

	c.mu.Lock()
	c.last = dispatches
	c.mu.Unlock()

	c.logger.Info("checkpoint written", "name", cp.Name, "seq", cp.Seq)

	if c.opts.Keep > 0 {
		n, err := c.cps.PruneCheckpoints(ctx, cp.Tenant, c.opts.Keep)
		if err != nil {
			c.logger.Warn("checkpoint prune failed", "error", err)
		} else if n > 0 {
			c.logger.Debug("checkpoints pruned", "removed", n)
		}
	}
	return cp, nil
}

// MaybeCheckpoint takes a checkpoint if more than Threshold dispatches
// happened since the last one. It reports whether one was written.
func (c *Checkpointer) MaybeCheckpoint(ctx context.Context) (bool, error) {
	c.mu.Lock()
	due := c.conn.Dispatches()-c.last > c.opts.Threshold
	c.mu.Unlock()
	if !due {
		return false, nil
	}
	if _, err := c.SnapshotState(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Start runs MaybeCheckpoint every Interval until ctx ends. Failures are
// logged; checkpoints are advisory.
func (c *Checkpointer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if _, err := c.MaybeCheckpoint(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("periodic checkpoint failed", "error", err)
			}
		}
	}()
}
