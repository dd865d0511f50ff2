package logconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/statehub/internal/ir"
)

// Log is the durable append log a connection wraps. *store.Store implements it.
type Log interface {
	Append(ctx context.Context, rec ir.LogRecord) error
	ReadRange(ctx context.Context, partition string, after int64, limit int) ([]ir.LogRecord, error)
	LastSeq(ctx context.Context, partition string) (int64, error)
	ActivePartition(ctx context.Context) (string, bool, error)
}

// Defaults for Options.
const (
	DefaultPollInterval    = 250 * time.Millisecond
	DefaultMaxPollInterval = 5 * time.Second
	DefaultWatchInterval   = 5 * time.Second
	DefaultTailInterval    = 200 * time.Millisecond
	PageSize               = 200
)

// Options configures InitFromDB. Zero values take the defaults above.
type Options struct {
	// Tenant pins the partition. Empty means: wait for the newest active tenant.
	Tenant string

	PollInterval    time.Duration
	MaxPollInterval time.Duration
	WatchInterval   time.Duration
	TailInterval    time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxPollInterval <= 0 {
		o.MaxPollInterval = DefaultMaxPollInterval
	}
	if o.WatchInterval <= 0 {
		o.WatchInterval = DefaultWatchInterval
	}
	if o.TailInterval <= 0 {
		o.TailInterval = DefaultTailInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Rotation reports that the active tenant changed under a running connection.
// The connection keeps writing to From; the owner decides whether to restart.
type Rotation struct {
	From string
	To   string
}

// Conn is a connection to one partition of the log.
//
// All writers on a Conn share one FIFO gate: Lock, Append, apply, Unlock.
// Holding the gate across append and apply is what makes the log order and
// the in-memory order the same.
type Conn struct {
	log       Log
	partition string
	opts      Options
	logger    *slog.Logger

	gate       *semaphore.Weighted
	seq        *Sequence
	dispatches atomic.Int64

	mu   sync.Mutex
	wake chan struct{} // closed and replaced on every append

	rotations chan Rotation
}

var errNoTenant = errors.New("no active tenant yet")

// InitFromDB resolves the partition and the live sequence.
//
// Without opts.Tenant it polls the log for an active tenant with exponential
// backoff and no deadline; a missing tenant is never an error. It returns
// early only when ctx ends or the log itself fails.
func InitFromDB(ctx context.Context, log Log, opts Options) (*Conn, error) {
	opts.setDefaults()
	logger := opts.Logger

	partition := opts.Tenant
	if partition == "" {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = opts.PollInterval
		b.MaxInterval = opts.MaxPollInterval

		op := func() (string, error) {
			key, ok, err := log.ActivePartition(ctx)
			if err != nil {
				return "", backoff.Permanent(err)
			}
			if !ok {
				return "", errNoTenant
			}
			return key, nil
		}
		notify := func(err error, next time.Duration) {
			logger.Info("waiting for tenant", "retry_in", next)
		}

		key, err := backoff.Retry(ctx, op,
			backoff.WithBackOff(b),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(notify),
		)
		if err != nil {
			return nil, fmt.Errorf("resolve tenant: %w", err)
		}
		partition = key
	}

	last, err := log.LastSeq(ctx, partition)
	if err != nil {
		return nil, fmt.Errorf("init connection: %w", err)
	}

	logger.Info("log connection ready", "partition", partition, "seq", last)

	return &Conn{
		log:       log,
		partition: partition,
		opts:      opts,
		logger:    logger.With("partition", partition),
		gate:      semaphore.NewWeighted(1),
		seq:       NewSequenceAt(last),
		wake:      make(chan struct{}),
		rotations: make(chan Rotation, 1),
	}, nil
}

// Partition returns the tenant partition this connection writes to.
func (c *Conn) Partition() string { return c.partition }

// Log returns the wrapped log.
func (c *Conn) Log() Log { return c.log }

// Now returns the connection's wall clock.
func (c *Conn) Now() time.Time { return c.opts.Now() }

// Lock acquires the write gate. Waiters are served in arrival order.
func (c *Conn) Lock(ctx context.Context) error {
	return c.gate.Acquire(ctx, 1)
}

// Unlock releases the write gate.
func (c *Conn) Unlock() {
	c.gate.Release(1)
}

// Seq returns the live sequence: the last record durably appended.
func (c *Conn) Seq() int64 { return c.seq.Current() }

// SetSeq positions the live sequence, used by recovery after replay.
func (c *Conn) SetSeq(seq int64) { c.seq.Set(seq) }

// Dispatches returns how many records this connection has appended.
func (c *Conn) Dispatches() int64 { return c.dispatches.Load() }

// Append writes batches as the next record and returns its sequence.
//
// The caller must hold the gate. The live sequence moves only after the log
// accepted the record; on error nothing changed.
func (c *Conn) Append(ctx context.Context, batches map[string]ir.UpdateBatch) (int64, error) {
	seq := c.seq.Next()
	rec := ir.LogRecord{
		Seq:       seq,
		Partition: c.partition,
		Timestamp: c.opts.Now().UnixMilli(),
		Batches:   batches,
	}
	if err := c.log.Append(ctx, rec); err != nil {
		return 0, err
	}
	c.seq.Advance(seq)
	c.dispatches.Add(1)
	c.notify()
	return seq, nil
}

func (c *Conn) notify() {
	c.mu.Lock()
	close(c.wake)
	c.wake = make(chan struct{})
	c.mu.Unlock()
}

func (c *Conn) waitCh() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wake
}

// Watch polls for tenant rotation until ctx ends. A rotation is delivered on
// Rotations once per change; if nobody is reading, later rotations are
// dropped with a warning.
func (c *Conn) Watch(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.opts.WatchInterval)
		defer ticker.Stop()

		current := c.partition
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			key, ok, err := c.log.ActivePartition(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("tenant watch failed", "error", err)
				}
				continue
			}
			if !ok || key == current {
				continue
			}

			rot := Rotation{From: current, To: key}
			current = key
			c.logger.Warn("tenant rotated", "from", rot.From, "to", rot.To)
			select {
			case c.rotations <- rot:
			default:
				c.logger.Warn("rotation notification dropped", "to", rot.To)
			}
		}
	}()
}

// Rotations delivers tenant changes observed by Watch.
func (c *Conn) Rotations() <-chan Rotation { return c.rotations }
