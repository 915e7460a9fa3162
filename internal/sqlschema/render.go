package sqlschema

import "strings"

// Render re-renders a table structure as CREATE TABLE DDL. The output
// parses back to an equivalent structure.
func Render(t Table, dialect Dialect) string {
	// SQLite spells a single autoincrementing key inline on the column.
	inlinePK := ""
	if dialect == DialectSQLite && len(t.PrimaryKeys) == 1 {
		if c := t.Column(t.PrimaryKeys[0]); c != nil && c.Autoincrement {
			inlinePK = c.Name
		}
	}

	var items []string
	for _, c := range t.Columns {
		var b strings.Builder
		b.WriteString(c.Name)
		b.WriteByte(' ')
		b.WriteString(c.TypeToken)
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		if equalFold(c.Name, inlinePK) {
			b.WriteString(" PRIMARY KEY AUTOINCREMENT")
		} else if c.Autoincrement {
			if dialect == DialectSQLite {
				b.WriteString(" AUTOINCREMENT")
			} else {
				b.WriteString(" AUTO_INCREMENT")
			}
		}
		if c.HasDefault {
			b.WriteString(" DEFAULT ")
			b.WriteString(c.DefaultLiteral)
		}
		items = append(items, b.String())
	}

	if inlinePK == "" && len(t.PrimaryKeys) > 0 {
		items = append(items, "PRIMARY KEY ("+strings.Join(t.PrimaryKeys, ", ")+")")
	}
	for _, key := range t.UniqueKeys {
		items = append(items, "UNIQUE ("+strings.Join(key, ", ")+")")
	}
	for _, c := range t.Columns {
		if c.ForeignKey != nil {
			items = append(items, "FOREIGN KEY ("+c.Name+") REFERENCES "+c.ForeignKey.RefTable+" ("+c.ForeignKey.RefColumn+")")
		}
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(t.Name)
	b.WriteString(" (\n    ")
	b.WriteString(strings.Join(items, ",\n    "))
	b.WriteString("\n);")
	return b.String()
}
