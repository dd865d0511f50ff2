package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statehub/internal/ir"
)

func TestOptions_StoredForm(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	o := Options{
		SleepUntil: &Sleep{Until: at},
		RetryUntil: &Retry{Interval: 2 * time.Second, Count: 3, NextAt: at},
		Complete:   true,
	}
	doc := o.Value()
	data, err := ir.MarshalCanonical(doc)
	require.NoError(t, err)
	assert.Equal(t,
		`{"complete":true,"retry_until":{"_retry_count":3,"interval":2000,"is_true":false,"next_at":1767225660000},"sleep_until":{"at":1767225660000}}`,
		string(data))

	back := OptionsFrom(doc)
	assert.Equal(t, at, back.SleepUntil.Until)
	assert.Equal(t, *o.RetryUntil, *back.RetryUntil)
	assert.True(t, back.Complete)
	assert.True(t, back.pending())
}

func TestOptions_Pending(t *testing.T) {
	assert.False(t, Options{}.pending())
	assert.False(t, Options{RetryUntil: &Retry{IsTrue: true}}.pending())
	assert.True(t, Options{RetryUntil: &Retry{}}.pending())
	assert.True(t, Options{SleepUntil: &Sleep{Predicate: "x"}}.pending())
}

func TestRecordFrom_RequiresIDAndIndex(t *testing.T) {
	_, err := RecordFrom(ir.Object{"function_idx": ir.Int(0)})
	assert.Error(t, err)
	_, err = RecordFrom(ir.Object{"_id": ir.Int(1)})
	assert.Error(t, err)

	rec, err := RecordFrom(ir.Object{
		"_id":            ir.Int(4),
		"function_idx":   ir.Int(2),
		"complete":       ir.Bool(true),
		"options":        ir.Object{"sleep_until": ir.Object{"predicate": ir.String("p")}},
		"context_object": ir.Object{"k": ir.String("v")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.ID)
	assert.Equal(t, 2, rec.FunctionIdx)
	assert.True(t, rec.Complete)
	assert.Equal(t, "p", rec.Options.SleepUntil.Predicate)
	assert.Nil(t, rec.LastLinked)
}
