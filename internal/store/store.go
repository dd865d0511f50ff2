package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration is one forward-only schema step, keyed by PRAGMA user_version.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations run in order on every Open; each must be idempotent.
var migrations = []migration{
	{1, "checkpoint lookup index", `
		CREATE INDEX IF NOT EXISTS idx_checkpoints_tenant_seq
		ON checkpoints(tenant, seq DESC, name DESC)`},
	{2, "active tenant index", `
		CREATE INDEX IF NOT EXISTS idx_tenants_active
		ON tenants(active, created_at DESC, partition_key DESC)`},
}

// currentSchemaVersion is the user_version after every migration ran.
var currentSchemaVersion = migrations[len(migrations)-1].version

// Synchronous modes accepted by WithSynchronous.
const (
	SyncOff    = "OFF"
	SyncNormal = "NORMAL"
	SyncFull   = "FULL"
)

// DefaultBusyTimeout is how long a connection waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

type options struct {
	busyTimeout time.Duration
	synchronous string
}

// Option tunes how Open configures the connection.
type Option func(*options)

// WithBusyTimeout sets the SQLite busy timeout. Values below one
// millisecond fall back to DefaultBusyTimeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= time.Millisecond {
			o.busyTimeout = d
		}
	}
}

// WithSynchronous sets PRAGMA synchronous (SyncOff, SyncNormal or SyncFull).
func WithSynchronous(mode string) Option {
	return func(o *options) { o.synchronous = mode }
}

// Store is the durable side of the system: the append log, the tenant
// registry and checkpoint artifacts, in one SQLite file.
//
// The log is the source of truth. Everything else in a process is derived
// from it and can be rebuilt by replay.
type Store struct {
	db   *sql.DB
	opts options
}

// Open creates or opens the database at path, then applies pragmas, the
// base schema and pending migrations. Opening the same file again is safe.
//
// Defaults: WAL journal, NORMAL synchronous, 5s busy timeout.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: DefaultBusyTimeout, synchronous: SyncNormal}
	for _, opt := range opts {
		opt(&o)
	}
	switch o.synchronous {
	case SyncOff, SyncNormal, SyncFull:
	default:
		return nil, fmt.Errorf("open %s: unknown synchronous mode %q", path, o.synchronous)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}

	// One connection: appends are serialized by the primary key anyway,
	// and pragmas are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, opts: o}
	if err := s.applyPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return s, nil
}

// Close closes the database. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection for tests and ad-hoc inspection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SchemaVersion reports the database's user_version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

func (s *Store) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = " + s.opts.synchronous,
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.opts.busyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// migrate creates the base tables and runs every migration newer than the
// stored user_version, each in its own transaction.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	version, err := s.SchemaVersion()
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := s.runMigration(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) runMigration(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v%d: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.stmt); err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("migrate to v%d: set user_version: %w", m.version, err)
	}
	return tx.Commit()
}

// pragma reads a single pragma value as text.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
