package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/statehub/internal/logconn"
	"github.com/roach88/statehub/internal/store"
	"github.com/roach88/statehub/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestConn opens a temp-dir log and a connection to tenant "acme".
func newTestConn(t *testing.T, clk *testutil.FakeClock) (*logconn.Conn, *store.Store) {
	t.Helper()
	log, err := store.Open(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	conn, err := logconn.InitFromDB(context.Background(), log, logconn.Options{
		Tenant: "acme",
		Now:    clk.Now,
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	return conn, log
}
