package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesFileAndTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	require.NoError(t, err, "database file was not created")

	for _, table := range []string{"log_records", "tenants", "checkpoints"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %q", table)
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.db.Exec(`INSERT INTO tenants (partition_key, created_at) VALUES ('acme', 1)`)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)

		var n int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM tenants").Scan(&n))
		assert.Equal(t, 1, n, "open %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestOpen_UnknownSynchronousMode(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "test.db"), WithSynchronous("SOMETIMES"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown synchronous mode "SOMETIMES"`)
}

func TestClose(t *testing.T) {
	assert.NoError(t, (&Store{}).Close(), "zero Store")

	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	_ = s.Close()
}

func TestDB_ReturnsUsableConnection(t *testing.T) {
	s := createTestStore(t)
	require.NotNil(t, s.DB())
	assert.NoError(t, s.DB().Ping())
}

func TestPragmas(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want map[string]string
	}{
		{
			name: "defaults",
			want: map[string]string{"journal_mode": "wal", "synchronous": "1", "busy_timeout": "5000"},
		},
		{
			name: "tuned",
			opts: []Option{WithBusyTimeout(250 * time.Millisecond), WithSynchronous(SyncFull)},
			want: map[string]string{"synchronous": "2", "busy_timeout": "250"},
		},
		{
			name: "sub-millisecond timeout keeps default",
			opts: []Option{WithBusyTimeout(time.Microsecond)},
			want: map[string]string{"busy_timeout": "5000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(filepath.Join(t.TempDir(), "test.db"), tt.opts...)
			require.NoError(t, err)
			defer s.Close()

			for name, want := range tt.want {
				got, err := s.pragma(name)
				require.NoError(t, err)
				assert.Equal(t, want, got, "PRAGMA %s", name)
			}
		})
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, []string{"partition", "seq", "timestamp", "batches"}, getTableColumns(t, s.db, "log_records"))
	assert.Equal(t, []string{"tenant", "name", "seq", "created_at", "payload", "digest"}, getTableColumns(t, s.db, "checkpoints"))
	assert.Equal(t, []string{"partition_key", "created_at", "active"}, getTableColumns(t, s.db, "tenants"))
}

func TestConstraint_LogSeqPositive(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO log_records (partition, seq, timestamp, batches) VALUES ('t', 0, 0, '{}')`)
	assert.Error(t, err, "CHECK constraint should reject seq 0")
}

func TestMigrations_Ordered(t *testing.T) {
	for i, m := range migrations {
		assert.Equal(t, i+1, m.version, "migration %q", m.name)
	}
}

func TestMigration_FreshDatabaseAtCurrentVersion(t *testing.T) {
	s := createTestStore(t)

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, v)
	assert.Contains(t, getTableIndexes(t, s.db, "checkpoints"), "idx_checkpoints_tenant_seq")
	assert.Contains(t, getTableIndexes(t, s.db, "tenants"), "idx_tenants_active")
}

func TestMigration_UpgradeFromOlderVersions(t *testing.T) {
	for from := 0; from < currentSchemaVersion; from++ {
		path := filepath.Join(t.TempDir(), "test.db")

		// Base schema only, stamped with an older version.
		db, err := sql.Open("sqlite3", path)
		require.NoError(t, err)
		_, err = db.Exec(schemaSQL)
		require.NoError(t, err)
		for _, m := range migrations {
			if m.version <= from {
				_, err = db.Exec(m.stmt)
				require.NoError(t, err)
			}
		}
		_, err = db.Exec(fmt.Sprintf("PRAGMA user_version = %d", from))
		require.NoError(t, err)
		require.NoError(t, db.Close())

		s, err := Open(path)
		require.NoError(t, err, "from v%d", from)

		v, err := s.SchemaVersion()
		require.NoError(t, err)
		assert.Equal(t, currentSchemaVersion, v, "from v%d", from)
		assert.Contains(t, getTableIndexes(t, s.db, "tenants"), "idx_tenants_active", "from v%d", from)
		require.NoError(t, s.Close())
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt any
		require.NoError(t, rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk))
		columns = append(columns, name)
	}
	require.NoError(t, rows.Err())
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	require.NoError(t, err)
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	require.NoError(t, rows.Err())
	slices.Sort(indexes)
	return indexes
}
