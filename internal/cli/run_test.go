package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runFor executes the run command until timeout and returns its stdout.
func runFor(t *testing.T, opts *RootOptions, timeout time.Duration, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out := &bytes.Buffer{}
	cmd := NewRunCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRunServesPinnedTenant(t *testing.T) {
	opts := newTestOptions(t)
	addBolts(t, opts)

	out, err := runFor(t, opts, 300*time.Millisecond)

	require.NoError(t, err)
	assert.Contains(t, out, "Serving tenant acme as primary at seq 1.")
	assert.Contains(t, out, "Press Ctrl-C to stop.")
}

func TestRunReplica(t *testing.T) {
	opts := newTestOptions(t)
	addBolts(t, opts)

	out, err := runFor(t, opts, 300*time.Millisecond, "--replica")

	require.NoError(t, err)
	assert.Contains(t, out, "Serving tenant acme as replica at seq 1.")
}

func TestRunWaitsForTenant(t *testing.T) {
	opts := newTestOptions(t)
	opts.Tenant = ""

	out, err := runFor(t, opts, 300*time.Millisecond)

	require.NoError(t, err, "cancelled while waiting is a clean exit")
	assert.NotContains(t, out, "Serving tenant")
}

func TestRunRejectsArgs(t *testing.T) {
	_, err := runFor(t, newTestOptions(t), time.Second, "extra")
	require.Error(t, err)
}
