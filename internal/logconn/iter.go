package logconn

import (
	"context"
	"iter"
	"time"

	"github.com/roach88/statehub/internal/ir"
)

// Range yields every record with seq > after in ascending order, then stops.
// Records are read in pages of PageSize. A read error is yielded once and ends
// the sequence.
func (c *Conn) Range(ctx context.Context, after int64) iter.Seq2[ir.LogRecord, error] {
	return func(yield func(ir.LogRecord, error) bool) {
		cursor := after
		for {
			page, err := c.log.ReadRange(ctx, c.partition, cursor, PageSize)
			if err != nil {
				yield(ir.LogRecord{}, err)
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
				cursor = rec.Seq
			}
			if len(page) < PageSize {
				return
			}
		}
	}
}

// Tail yields records with seq > from forever, waiting for new appends when
// it catches up. from is the continuation token: pass the last seq seen to
// restart where a previous tail left off.
//
// Local appends wake the tail immediately; appends by other processes are
// picked up on the next TailInterval poll. When ctx ends the context error
// is yielded and the sequence stops.
func (c *Conn) Tail(ctx context.Context, from int64) iter.Seq2[ir.LogRecord, error] {
	return func(yield func(ir.LogRecord, error) bool) {
		cursor := from
		timer := time.NewTimer(c.opts.TailInterval)
		defer timer.Stop()

		for {
			// Grab the wake channel before reading so an append racing the
			// read still wakes us.
			wake := c.waitCh()

			page, err := c.log.ReadRange(ctx, c.partition, cursor, PageSize)
			if err != nil {
				if ctx.Err() != nil {
					yield(ir.LogRecord{}, ctx.Err())
					return
				}
				if !yield(ir.LogRecord{}, err) {
					return
				}
				page = nil
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
				cursor = rec.Seq
			}
			if len(page) == PageSize {
				continue
			}

			timer.Reset(c.opts.TailInterval)
			select {
			case <-ctx.Done():
				yield(ir.LogRecord{}, ctx.Err())
				return
			case <-wake:
			case <-timer.C:
			}
		}
	}
}
