package loader

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
	"github.com/jobcan-tools/jobcan-di/internal/pipeline"
	"github.com/jobcan-tools/jobcan-di/internal/sqlschema"
)

// RunDocument executes a whole pipeline definition: open the target
// database, create any declared table that does not exist yet, then run
// every insertion profile in document order. Profile failures are
// collected as warnings and do not stop later profiles; only opening
// the database or creating tables is fatal.
func RunDocument(ctx context.Context, def *pipeline.Definition) ([]*dierr.Warning, *dierr.Fatal) {
	db, err := openTarget(&def.TableDefinition)
	if err != nil {
		return nil, dierr.FatalFrom(dierr.DatabaseConnectionFailed, err).
			With("path", def.TableDefinition.Path)
	}
	defer func() { _ = db.Close() }()

	if err := ensureTables(ctx, db, &def.TableDefinition); err != nil {
		return nil, dierr.FatalFrom(dierr.DatabaseTableCreationFailed, err).
			With("path", def.TableDefinition.Path)
	}

	var warnings []*dierr.Warning
	for _, profile := range def.Link.Profiles() {
		if _, warn := Run(ctx, db, &def.Link, profile); warn != nil {
			warnings = append(warnings, warn)
		}
	}
	return warnings, nil
}

// openTarget connects per dialect: SQLite paths open through the
// embedded driver, MySQL paths are taken as DSNs.
func openTarget(target *pipeline.DBDefinition) (*sql.DB, error) {
	switch target.Dialect {
	case sqlschema.DialectSQLite:
		return sql.Open("sqlite3", "file:"+target.Path+
			"?_pragma=busy_timeout(30000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	case sqlschema.DialectMySQL:
		return sql.Open("mysql", target.Path)
	}
	return nil, fmt.Errorf("unsupported dialect %q", target.Dialect)
}

// ensureTables creates each declared table that is missing. Existing
// tables are left as they are, structure unchecked: the declared DDL
// is authoritative only at creation time.
func ensureTables(ctx context.Context, db *sql.DB, target *pipeline.DBDefinition) error {
	for _, table := range target.Tables {
		exists, err := tableExists(ctx, db, target.Dialect, table.Name)
		if err != nil {
			return fmt.Errorf("table %s: %w", table.Name, err)
		}
		if exists {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlschema.Render(table, target.Dialect)); err != nil {
			return fmt.Errorf("create table %s: %w", table.Name, err)
		}
	}
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, dialect sqlschema.Dialect, name string) (bool, error) {
	var query string
	switch dialect {
	case sqlschema.DialectSQLite:
		query = `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`
	case sqlschema.DialectMySQL:
		query = `SELECT 1 FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`
	default:
		return false, fmt.Errorf("unsupported dialect %q", dialect)
	}
	var one int
	err := db.QueryRowContext(ctx, query, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
