package sqlschema

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	createTableRe = regexp.MustCompile(`(?is)^\s*CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?([` + "`" + `"\[]?[\w$.]+[` + "`" + `"\]]?)\s*\(`)

	// defaultRe accepts single-quoted strings (which may contain ; and ,),
	// double-quoted strings, signed decimals, and bare identifiers such
	// as CURRENT_TIMESTAMP.
	defaultRe = regexp.MustCompile(`(?is)\bDEFAULT\s+('(?:[^']|'')*'|"(?:[^"]|"")*"|[+-]?\d+(?:\.\d+)?|[A-Za-z_]\w*)`)

	notNullRe   = regexp.MustCompile(`(?i)\bNOT\s+NULL\b`)
	autoIncRe   = regexp.MustCompile(`(?i)\bAUTO_?INCREMENT\b`)
	uniqueColRe = regexp.MustCompile(`(?i)\bUNIQUE\b`)
	pkColRe     = regexp.MustCompile(`(?i)\bPRIMARY\s+KEY\b`)
	refRe       = regexp.MustCompile(`(?is)\bREFERENCES\s+([` + "`" + `"\[]?[\w$.]+[` + "`" + `"\]]?)\s*\(\s*([` + "`" + `"\[]?[\w$.]+[` + "`" + `"\]]?)\s*\)`)

	tablePKRe  = regexp.MustCompile(`(?is)^PRIMARY\s+KEY\s*\((.*)\)$`)
	tableUnqRe = regexp.MustCompile(`(?is)^UNIQUE(?:\s+KEY)?(?:\s+\w+)?\s*\((.*)\)$`)
	tableFKRe  = regexp.MustCompile(`(?is)^FOREIGN\s+KEY\s*\(([^)]*)\)\s+REFERENCES\s+([` + "`" + `"\[]?[\w$.]+[` + "`" + `"\]]?)\s*\(([^)]*)\)`)
	constrRe   = regexp.MustCompile(`(?is)^CONSTRAINT\s+\w+\s+(.*)$`)

	colHeadRe = regexp.MustCompile(`(?s)^\s*([` + "`" + `"\[]?[\w$.]+[` + "`" + `"\]]?)\s+([A-Za-z_]\w*(?:\s*\([^)]*\))?)`)
)

// ParseDDL extracts every top-level CREATE TABLE clause from sqlText.
// Parenthesis depth and string-literal state (single and double quotes)
// are tracked so that statements embedded in literals are ignored.
// Keyword matching is case-insensitive; original casing of names,
// types, and default literals is preserved.
func ParseDDL(sqlText string, dialect Dialect) ([]Table, error) {
	var tables []Table
	for _, stmt := range splitStatements(sqlText) {
		m := createTableRe.FindStringSubmatchIndex(stmt)
		if m == nil {
			continue
		}
		name := unquote(stmt[m[2]:m[3]])

		// m[1] is the index just past the opening paren.
		body, end, err := matchParen(stmt, m[1]-1)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
		_ = end // trailing options (engine, charset) are ignored

		t := Table{Name: name, RawDDL: strings.TrimSpace(stmt)}
		var tableLevelPK []string
		for _, item := range splitTopLevel(body) {
			if err := parseItem(item, &t, &tableLevelPK); err != nil {
				return nil, fmt.Errorf("table %s: %w", name, err)
			}
		}
		t.PrimaryKeys = append(t.PrimaryKeys, tableLevelPK...)

		if dialect != DialectSQLite {
			for _, pk := range tableLevelPK {
				if c := t.Column(pk); c != nil {
					c.NotNull = true
				}
			}
		}

		if err := t.validate(); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// ParseOneTable parses DDL expected to define exactly one table.
func ParseOneTable(sqlText string, dialect Dialect) (Table, error) {
	tables, err := ParseDDL(sqlText, dialect)
	if err != nil {
		return Table{}, err
	}
	if len(tables) != 1 {
		return Table{}, fmt.Errorf("expected exactly one CREATE TABLE, found %d", len(tables))
	}
	return tables[0], nil
}

// splitStatements splits SQL text on semicolons at paren depth 0 and
// outside quoted text.
func splitStatements(src string) []string {
	var out []string
	var buf strings.Builder
	depth := 0
	var quote byte // 0, '\'' or '"'

	for i := 0; i < len(src); i++ {
		ch := src[i]
		if quote != 0 {
			buf.WriteByte(ch)
			if ch == quote {
				// doubled quote is an escape, stay inside
				if i+1 < len(src) && src[i+1] == quote {
					buf.WriteByte(src[i+1])
					i++
					continue
				}
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
		case ';':
			if depth == 0 {
				out = append(out, buf.String())
				buf.Reset()
				continue
			}
		}
		buf.WriteByte(ch)
	}
	if strings.TrimSpace(buf.String()) != "" {
		out = append(out, buf.String())
	}
	return out
}

// matchParen returns the text between the paren at open and its match,
// honoring quote state.
func matchParen(src string, open int) (string, int, error) {
	if open < 0 || open >= len(src) || src[open] != '(' {
		return "", 0, fmt.Errorf("malformed CREATE TABLE: missing column list")
	}
	depth := 0
	var quote byte
	for i := open; i < len(src); i++ {
		ch := src[i]
		if quote != 0 {
			if ch == quote {
				if i+1 < len(src) && src[i+1] == quote {
					i++
					continue
				}
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return src[open+1 : i], i, nil
			}
		}
	}
	return "", 0, fmt.Errorf("malformed CREATE TABLE: unbalanced parentheses")
}

// splitTopLevel splits a clause body on commas at paren depth 0 and
// outside quoted text.
func splitTopLevel(body string) []string {
	var items []string
	var buf strings.Builder
	depth := 0
	var quote byte

	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			items = append(items, s)
		}
		buf.Reset()
	}

	for i := 0; i < len(body); i++ {
		ch := body[i]
		if quote != 0 {
			buf.WriteByte(ch)
			if ch == quote {
				if i+1 < len(body) && body[i+1] == quote {
					buf.WriteByte(body[i+1])
					i++
					continue
				}
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				flush()
				continue
			}
		}
		buf.WriteByte(ch)
	}
	flush()
	return items
}

// parseItem handles one comma-separated item: a table constraint or a
// column definition.
func parseItem(item string, t *Table, tableLevelPK *[]string) error {
	if m := constrRe.FindStringSubmatch(item); m != nil {
		return parseItem(strings.TrimSpace(m[1]), t, tableLevelPK)
	}
	if m := tablePKRe.FindStringSubmatch(item); m != nil {
		*tableLevelPK = append(*tableLevelPK, splitNames(m[1])...)
		return nil
	}
	if m := tableUnqRe.FindStringSubmatch(item); m != nil {
		t.UniqueKeys = append(t.UniqueKeys, splitNames(m[1]))
		return nil
	}
	if m := tableFKRe.FindStringSubmatch(item); m != nil {
		cols := splitNames(m[1])
		refCols := splitNames(m[3])
		if len(cols) != 1 || len(refCols) != 1 {
			return fmt.Errorf("foreign key must reference exactly one column: %q", item)
		}
		c := t.Column(cols[0])
		if c == nil {
			return fmt.Errorf("foreign key references undefined column %s", cols[0])
		}
		c.ForeignKey = &ForeignKey{RefTable: unquote(m[2]), RefColumn: refCols[0]}
		return nil
	}
	return parseColumn(item, t)
}

// parseColumn parses one column definition.
func parseColumn(item string, t *Table) error {
	m := colHeadRe.FindStringSubmatch(item)
	if m == nil {
		return fmt.Errorf("cannot parse column definition: %q", item)
	}
	col := Column{
		Name:      unquote(m[1]),
		TypeToken: strings.TrimSpace(m[2]),
	}
	rest := item[len(m[0]):]

	// Pull the DEFAULT literal out first so a quoted default cannot
	// trip the keyword scans below.
	if dm := defaultRe.FindStringSubmatchIndex(rest); dm != nil {
		col.DefaultLiteral = rest[dm[2]:dm[3]]
		col.HasDefault = true
		rest = rest[:dm[0]] + rest[dm[1]:]
	}

	col.NotNull = notNullRe.MatchString(rest)
	col.Autoincrement = autoIncRe.MatchString(rest)

	if pkColRe.MatchString(rest) {
		t.PrimaryKeys = append(t.PrimaryKeys, col.Name)
		rest = pkColRe.ReplaceAllString(rest, "")
	}
	if m := refRe.FindStringSubmatch(rest); m != nil {
		col.ForeignKey = &ForeignKey{RefTable: unquote(m[1]), RefColumn: unquote(m[2])}
	}
	// UNIQUE KEY(...) was handled as a table constraint; what is left
	// here is the column-level marker.
	if uniqueColRe.MatchString(rest) {
		t.UniqueKeys = append(t.UniqueKeys, []string{col.Name})
	}

	t.Columns = append(t.Columns, col)
	return nil
}

func splitNames(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := unquote(strings.TrimSpace(p)); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '`' && last == '`') ||
			(first == '"' && last == '"') ||
			(first == '[' && last == ']') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func lowerName(s string) string { return strings.ToLower(s) }

func equalFold(a, b string) bool { return strings.EqualFold(a, b) }

func normalizeToken(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
}
