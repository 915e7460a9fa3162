// Package store materializes API records into the normalized
// relational schema and rebuilds the original API shapes on the way
// out. One Store owns the single main-database connection pool.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
)

// Store is the SQLite-backed domain store.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the main database, applying the standard pragmas.
// Failures map to the fatal kinds the integrator reports.
func Open(ctx context.Context, path string) (*Store, *dierr.Fatal) {
	var connStr string
	if path == ":memory:" {
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	} else if strings.HasPrefix(path, "file:") {
		connStr = path
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, dierr.FatalFrom(dierr.DatabaseConnectionFailed, err).With("path", path)
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, dierr.FatalFrom(dierr.DatabaseConnectionFailed, err).With("path", path)
	}

	isMemory := path == ":memory:" || strings.Contains(connStr, "mode=memory")
	if isMemory {
		// In-memory databases are per-connection; force one so every
		// statement sees the same data.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, dierr.FatalFrom(dierr.DatabaseConnectionFailed, err).With("path", path)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, dierr.FatalFrom(dierr.DatabaseConnectionFailed, err).With("path", path)
	}
	return &Store{db: db, path: path}, nil
}

// CreateTables ensures the full schema exists.
func (s *Store) CreateTables(ctx context.Context) *dierr.Fatal {
	for _, ddl := range []string{schemaBasic, schemaRequests} {
		for _, stmt := range splitStatements(ddl) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return dierr.FatalFrom(dierr.DatabaseTableCreationFailed, err)
			}
		}
	}
	return nil
}

// splitStatements cuts a DDL blob into single statements. The schema
// constants contain no string literals with semicolons, so a plain
// split is safe here.
func splitStatements(blob string) []string {
	var out []string
	for _, stmt := range strings.Split(blob, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// DB exposes the underlying pool for the schema validator and the
// pipeline loader, which share the connection per the resource model.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close shuts the pool down.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// RunInTransaction executes fn inside one BEGIN IMMEDIATE transaction
// on a dedicated connection, retrying the begin with exponential
// backoff while the database is locked. Commit on success, rollback
// on error or panic.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx *sql.Conn) error) error {
	if s.db == nil {
		return dierr.NewFatal(dierr.DatabaseConnectionNotPrepared)
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	begin := func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
		backoff.WithMaxInterval(250*time.Millisecond),
	), 5), ctx)
	if err := backoff.Retry(begin, policy); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// storeWarning wraps a database error as the retryable DBUpdateFailed
// warning, tagged with the natural key of the failed record.
func storeWarning(table, key string, err error) *dierr.Warning {
	return dierr.NewWarning(dierr.DBUpdateFailed).
		With("table", table).
		With("key", key).
		With("error", err.Error())
}
