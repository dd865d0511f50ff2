package recovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/state"
	"github.com/roach88/statehub/internal/store"
)

// nameLayout is the timestamp part of a checkpoint name.
const nameLayout = "20060102T150405Z"

// ErrCorruptCheckpoint reports an artifact that cannot be trusted.
var ErrCorruptCheckpoint = errors.New("corrupt checkpoint")

// CheckpointName builds "<tenant>-<UTC timestamp>-<seq>".
func CheckpointName(tenant string, at time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%d", tenant, at.UTC().Format(nameLayout), seq)
}

// BuildArtifact serializes stores into a checkpoint for tenant at seq.
//
// Payload layout (canonical JSON):
//
//	{"seq": 12, "tenant": "acme", "stores": {"orders": <Store.Snapshot>, ...}}
//
// The caller must make sure no dispatch runs while the snapshots are taken.
func BuildArtifact(tenant string, seq int64, at time.Time, stores []*state.Store) (store.Checkpoint, error) {
	snaps := make(ir.Object, len(stores))
	for _, st := range stores {
		snaps[st.Name()] = st.Snapshot()
	}
	payload, err := ir.MarshalCanonical(ir.Object{
		"seq":    ir.Int(seq),
		"tenant": ir.String(tenant),
		"stores": snaps,
	})
	if err != nil {
		return store.Checkpoint{}, fmt.Errorf("build checkpoint: %w", err)
	}
	return store.Checkpoint{
		Tenant:    tenant,
		Name:      CheckpointName(tenant, at, seq),
		Seq:       seq,
		CreatedAt: at.UnixMilli(),
		Payload:   payload,
		Digest:    ir.CheckpointDigest(payload),
	}, nil
}

// loadArtifact restores every store from cp. On any error the stores are
// left reset; the error wraps ErrCorruptCheckpoint.
func loadArtifact(cp store.Checkpoint, stores []*state.Store) error {
	err := func() error {
		if got := ir.CheckpointDigest(cp.Payload); got != cp.Digest {
			return fmt.Errorf("digest mismatch: stored %s, computed %s", cp.Digest, got)
		}
		v, err := ir.ParseValue(cp.Payload)
		if err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		doc, ok := v.(ir.Object)
		if !ok {
			return fmt.Errorf("payload is %T, want object", v)
		}
		if seq, ok := doc.Int("seq"); !ok || seq != cp.Seq {
			return fmt.Errorf("payload seq does not match %d", cp.Seq)
		}
		snaps, ok := doc.Obj("stores")
		if !ok {
			return fmt.Errorf("payload has no stores")
		}
		for _, st := range stores {
			snap, ok := snaps.Obj(st.Name())
			if !ok {
				return fmt.Errorf("store %s missing from artifact", st.Name())
			}
			if err := st.Restore(snap); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		for _, st := range stores {
			st.Reset()
		}
		return fmt.Errorf("%w %s: %v", ErrCorruptCheckpoint, cp.Name, err)
	}
	return nil
}
