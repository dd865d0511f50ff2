package logconn

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequence_NewSequenceAt(t *testing.T) {
	s := NewSequenceAt(100)
	assert.Equal(t, int64(100), s.Current(), "sequence should start at specified value")
	assert.Equal(t, int64(101), s.Next())
}

func TestSequence_NextDoesNotAdvance(t *testing.T) {
	s := NewSequenceAt(0)

	assert.Equal(t, int64(1), s.Next())
	assert.Equal(t, int64(1), s.Next())
	assert.Equal(t, int64(0), s.Current())
}

func TestSequence_AdvanceIsMonotonic(t *testing.T) {
	s := NewSequenceAt(0)

	assert.True(t, s.Advance(3))
	assert.False(t, s.Advance(2), "advance must never move backwards")
	assert.False(t, s.Advance(3))
	assert.Equal(t, int64(3), s.Current())

	s.Set(1)
	assert.Equal(t, int64(1), s.Current(), "Set overwrites")
}

func TestSequence_ThreadSafe(t *testing.T) {
	s := NewSequenceAt(0)
	const goroutines = 100

	var wg sync.WaitGroup
	for i := 1; i <= goroutines; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			s.Advance(v)
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines), s.Current(), "highest advance wins")
}
