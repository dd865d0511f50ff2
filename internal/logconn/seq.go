package logconn

import "sync/atomic"

// Sequence is the live log sequence of a partition: the seq of the last
// record known to be durably appended.
//
// It only moves after a successful append (or when recovery sets it after
// replay), so local state never runs ahead of the log.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
// Writers are still serialized by the connection gate; readers such as the
// checkpointer may load it at any time.
type Sequence struct {
	seq atomic.Int64
}

// NewSequenceAt creates a sequence positioned at start.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the sequence the next append will use. It does not advance.
func (s *Sequence) Next() int64 {
	return s.seq.Load() + 1
}

// Current returns the last durable sequence.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}

// Advance moves the sequence forward to seq. It never moves backwards and
// reports whether the value changed.
func (s *Sequence) Advance(seq int64) bool {
	for {
		cur := s.seq.Load()
		if seq <= cur {
			return false
		}
		if s.seq.CompareAndSwap(cur, seq) {
			return true
		}
	}
}

// Set overwrites the sequence. Used by recovery after replay.
func (s *Sequence) Set(seq int64) {
	s.seq.Store(seq)
}
