package sqlschema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// CheckTableStructure verifies that the live table matches the expected
// structure: existence, per-column type/NOT NULL/default/autoincrement,
// no unexpected columns, primary-key set, unique indexes
// (order-insensitive), and foreign-key mappings. The first discrepancy
// is returned as a human-readable message; an empty string means the
// table matches.
func CheckTableStructure(ctx context.Context, db *sql.DB, want Table) (string, error) {
	if strings.ContainsAny(want.Name, `"'`) {
		return "", fmt.Errorf("invalid table name: %q", want.Name)
	}

	var ddl string
	err := db.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, want.Name).Scan(&ddl)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Sprintf("Table %s does not exist", want.Name), nil
	}
	if err != nil {
		return "", fmt.Errorf("read sqlite_master for %s: %w", want.Name, err)
	}

	live, err := readTableInfo(ctx, db, want.Name)
	if err != nil {
		return "", err
	}

	if msg := checkColumns(want, live); msg != "" {
		return msg, nil
	}
	if msg := checkAutoincrement(want, ddl); msg != "" {
		return msg, nil
	}
	if msg := checkPrimaryKeys(want, live); msg != "" {
		return msg, nil
	}
	msg, err := checkUniqueKeys(ctx, db, want)
	if err != nil || msg != "" {
		return msg, err
	}
	return checkForeignKeys(ctx, db, want)
}

type liveColumn struct {
	name    string
	typ     string
	notNull bool
	dflt    sql.NullString
	pkIndex int
}

func readTableInfo(ctx context.Context, db *sql.DB, table string) ([]liveColumn, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []liveColumn
	for rows.Next() {
		var cid int
		var c liveColumn
		if err := rows.Scan(&cid, &c.name, &c.typ, &c.notNull, &c.dflt, &c.pkIndex); err != nil {
			return nil, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func checkColumns(want Table, live []liveColumn) string {
	byName := make(map[string]liveColumn, len(live))
	for _, c := range live {
		byName[lowerName(c.name)] = c
	}

	for _, c := range want.Columns {
		lc, ok := byName[lowerName(c.Name)]
		if !ok {
			return fmt.Sprintf("Column %s missing in table %s", c.Name, want.Name)
		}
		if !equalFold(strings.TrimSpace(lc.typ), strings.TrimSpace(c.TypeToken)) {
			return fmt.Sprintf("Column %s type mismatch in table %s: want %s, got %s",
				c.Name, want.Name, c.TypeToken, lc.typ)
		}
		if lc.notNull != c.NotNull {
			return fmt.Sprintf("Column %s NOT NULL mismatch in table %s", c.Name, want.Name)
		}
		if c.HasDefault != lc.dflt.Valid ||
			(c.HasDefault && !equalFold(strings.TrimSpace(lc.dflt.String), strings.TrimSpace(c.DefaultLiteral))) {
			return fmt.Sprintf("Column %s default mismatch in table %s", c.Name, want.Name)
		}
	}

	wantNames := make(map[string]bool, len(want.Columns))
	for _, c := range want.Columns {
		wantNames[lowerName(c.Name)] = true
	}
	for _, c := range live {
		if !wantNames[lowerName(c.name)] {
			return fmt.Sprintf("Unexpected column %s in table %s", c.name, want.Name)
		}
	}
	return ""
}

// checkAutoincrement compares against the stored DDL: SQLite exposes no
// pragma for AUTOINCREMENT.
func checkAutoincrement(want Table, ddl string) string {
	wantAuto := false
	for _, c := range want.Columns {
		if c.Autoincrement {
			wantAuto = true
			break
		}
	}
	liveAuto := strings.Contains(strings.ToUpper(ddl), "AUTOINCREMENT")
	if wantAuto != liveAuto {
		return fmt.Sprintf("Autoincrement mismatch in table %s", want.Name)
	}
	return ""
}

func checkPrimaryKeys(want Table, live []liveColumn) string {
	var liveKeys []string
	for _, c := range live {
		if c.pkIndex > 0 {
			liveKeys = append(liveKeys, c.name)
		}
	}
	if !equalNameSets(want.PrimaryKeys, liveKeys) {
		return fmt.Sprintf("Primary keys mismatch in table %s", want.Name)
	}
	return ""
}

func checkUniqueKeys(ctx context.Context, db *sql.DB, want Table) (string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_list(%q)`, want.Name))
	if err != nil {
		return "", fmt.Errorf("index_list %s: %w", want.Name, err)
	}

	var uniqueIndexes []string
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial int
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return "", fmt.Errorf("scan index_list %s: %w", want.Name, err)
		}
		// origin "u" marks indexes created by a UNIQUE constraint.
		if unique == 1 && origin == "u" {
			uniqueIndexes = append(uniqueIndexes, name)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return "", err
	}
	if err := rows.Close(); err != nil {
		return "", err
	}

	liveKeys := make(map[string]bool, len(uniqueIndexes))
	for _, idx := range uniqueIndexes {
		cols, err := readIndexColumns(ctx, db, idx)
		if err != nil {
			return "", err
		}
		liveKeys[keySignature(cols)] = true
	}

	wantKeys := make(map[string]bool, len(want.UniqueKeys))
	for _, key := range want.UniqueKeys {
		wantKeys[keySignature(key)] = true
	}

	if len(liveKeys) != len(wantKeys) {
		return fmt.Sprintf("Unique keys mismatch in table %s", want.Name), nil
	}
	for sig := range wantKeys {
		if !liveKeys[sig] {
			return fmt.Sprintf("Unique keys mismatch in table %s", want.Name), nil
		}
	}
	return "", nil
}

func readIndexColumns(ctx context.Context, db *sql.DB, index string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_info(%q)`, index))
	if err != nil {
		return nil, fmt.Errorf("index_info %s: %w", index, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name string
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, fmt.Errorf("scan index_info %s: %w", index, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func checkForeignKeys(ctx context.Context, db *sql.DB, want Table) (string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%q)`, want.Name))
	if err != nil {
		return "", fmt.Errorf("foreign_key_list %s: %w", want.Name, err)
	}
	defer rows.Close()

	type ref struct{ table, column string }
	liveFKs := make(map[string]ref)
	for rows.Next() {
		var id, seq int
		var table, from string
		var to sql.NullString
		var onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &table, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return "", fmt.Errorf("scan foreign_key_list %s: %w", want.Name, err)
		}
		liveFKs[lowerName(from)] = ref{table: table, column: to.String}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	wantCount := 0
	for _, c := range want.Columns {
		if c.ForeignKey == nil {
			continue
		}
		wantCount++
		lfk, ok := liveFKs[lowerName(c.Name)]
		if !ok ||
			!equalFold(lfk.table, c.ForeignKey.RefTable) ||
			!equalFold(lfk.column, c.ForeignKey.RefColumn) {
			return fmt.Sprintf("Foreign keys mismatch in table %s", want.Name), nil
		}
	}
	if wantCount != len(liveFKs) {
		return fmt.Sprintf("Foreign keys mismatch in table %s", want.Name), nil
	}
	return "", nil
}

// keySignature canonicalizes a key's column list: order-insensitive,
// case-insensitive.
func keySignature(cols []string) string {
	lower := make([]string, len(cols))
	for i, c := range cols {
		lower[i] = lowerName(c)
	}
	sort.Strings(lower)
	return strings.Join(lower, ",")
}

func equalNameSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	return keySignature(a) == keySignature(b)
}
