// Package sqlschema parses CREATE TABLE DDL into a table-structure
// model, renders it back, and validates that a live SQLite database
// matches an expected structure.
package sqlschema

import "fmt"

// Dialect selects dialect-specific parse behavior. The one observable
// difference: outside SQLite, a column listed in a table-level
// PRIMARY KEY is implicitly NOT NULL.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// ParseDialect resolves a config string to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch normalizeToken(s) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	}
	return "", fmt.Errorf("unsupported dialect: %q", s)
}

// ForeignKey references a column of another table.
type ForeignKey struct {
	RefTable  string
	RefColumn string
}

// Column is one parsed column definition. Column-level UNIQUE and
// PRIMARY KEY markers are normalized into the owning Table's key lists
// during parsing.
type Column struct {
	Name           string
	TypeToken      string
	NotNull        bool
	Autoincrement  bool
	DefaultLiteral string // literal text as written; empty means no default
	HasDefault     bool
	ForeignKey     *ForeignKey
}

// Table is the parsed structure of one CREATE TABLE clause.
type Table struct {
	Name        string
	Columns     []Column
	UniqueKeys  [][]string
	PrimaryKeys []string
	RawDDL      string
}

// Column returns the column with the given name (case-insensitive).
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if equalFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// validate enforces the structural invariants: unique column names,
// and every key column present in Columns.
func (t *Table) validate() error {
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		lower := lowerName(c.Name)
		if seen[lower] {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
		}
		seen[lower] = true
	}
	for _, pk := range t.PrimaryKeys {
		if !seen[lowerName(pk)] {
			return fmt.Errorf("table %s: primary key column %s not defined", t.Name, pk)
		}
	}
	for _, key := range t.UniqueKeys {
		for _, col := range key {
			if !seen[lowerName(col)] {
				return fmt.Errorf("table %s: unique key column %s not defined", t.Name, col)
			}
		}
	}
	return nil
}
