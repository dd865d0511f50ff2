package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/roach88/statehub/internal/testutil"
)

// newTestOptions points every command at a fresh database for tenant acme,
// with the wall clock frozen at testutil.Epoch.
func newTestOptions(t *testing.T) *RootOptions {
	t.Helper()
	t.Setenv("STATEHUB_LOG_LEVEL", "error")
	return &RootOptions{
		Format: "text",
		DB:     filepath.Join(t.TempDir(), "test.db"),
		Tenant: "acme",
		Now:    testutil.NewFakeClock().Now,
	}
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// mustExecute is execute that fails the test on error.
func mustExecute(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	out, err := execute(t, cmd, args...)
	if err != nil {
		t.Fatalf("%s %v: %v\noutput:\n%s", cmd.Name(), args, err, out)
	}
	return out
}
