package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/statehub/internal/logconn"
	"github.com/roach88/statehub/internal/state"
)

// Follow keeps stores in step with the log after from, as a read replica.
//
// It blocks until ctx ends, returning nil in that case. Any other error
// (a failed read, a sequence gap, a batch the Store rejects) stops the
// replica; its Stores stay at the last record applied.
func Follow(ctx context.Context, conn *logconn.Conn, from int64, stores []*state.Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]*state.Store, len(stores))
	for _, st := range stores {
		byName[st.Name()] = st
	}

	last := from
	for rec, err := range conn.Tail(ctx, from) {
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Debug("follow stopped", "last_seq", last)
				return nil
			}
			return fmt.Errorf("follow: %w", err)
		}
		if rec.Seq != last+1 {
			return fmt.Errorf("follow: sequence gap: expected %d, got %d", last+1, rec.Seq)
		}
		if err := applyRecord(rec, byName); err != nil {
			return fmt.Errorf("follow: %w", err)
		}
		last = rec.Seq
	}
	return nil
}
