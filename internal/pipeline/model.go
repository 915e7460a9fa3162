package pipeline

import (
	"fmt"
	"strings"

	"github.com/jobcan-tools/jobcan-di/internal/sqlschema"
)

// ResultFormat is the contract between a data source and the
// transformer: how the extracted payload is interpreted as a list of
// units.
type ResultFormat string

const (
	// DBFlatRows: each unit is an ordered tuple (a database row).
	DBFlatRows ResultFormat = "DB_FLAT_ROWS"
	// JSONObjectResults: the payload is an object whose results key
	// holds a list of unit objects.
	JSONObjectResults ResultFormat = "JSON_OBJECT_RESULTS"
	// NestedJSON: the whole payload is one deeply nested unit.
	NestedJSON ResultFormat = "NESTED_JSON"
	// MultipleJSONEntries: the payload is a top-level list of units.
	MultipleJSONEntries ResultFormat = "MULTIPLE_JSON_ENTRIES"
)

// ParseResultFormat resolves a config spelling, normalizing case and
// hyphens ("json-object-results" == "JSON_OBJECT_RESULTS").
func ParseResultFormat(s string) (ResultFormat, error) {
	switch normalizeName(s) {
	case "db_flat_rows":
		return DBFlatRows, nil
	case "json_object_results":
		return JSONObjectResults, nil
	case "nested_json":
		return NestedJSON, nil
	case "multiple_json_entries":
		return MultipleJSONEntries, nil
	}
	return "", fmt.Errorf("unknown result format: %q", s)
}

// Conversion coerces a bound parameter before insertion.
type Conversion string

const (
	ToInt    Conversion = "ToInt"
	ToFloat  Conversion = "ToFloat"
	ToString Conversion = "ToString"
	ToBool   Conversion = "ToBool"
)

// ParseConversion resolves a conversion-method name. The empty string
// means no conversion at all and is reported via ok=false rather than
// an error: the document may legitimately leave a parameter untouched.
func ParseConversion(s string) (conv Conversion, ok bool, err error) {
	switch normalizeName(s) {
	case "":
		return "", false, nil
	case "to_int", "toint":
		return ToInt, true, nil
	case "to_float", "tofloat":
		return ToFloat, true, nil
	case "to_string", "tostring":
		return ToString, true, nil
	case "to_bool", "tobool":
		return ToBool, true, nil
	}
	return "", false, fmt.Errorf("unknown conversion method: %q", s)
}

// normalizeName lowers case and folds hyphens into underscores.
func normalizeName(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

// DBDefinition names the target database and its expected structure.
type DBDefinition struct {
	Dialect sqlschema.Dialect
	// Path is the database file (SQLite) or DSN (MySQL).
	Path   string
	Tables []sqlschema.Table
}

// Table returns the expected structure with the given name, if any.
func (d *DBDefinition) Table(name string) *sqlschema.Table {
	for i := range d.Tables {
		if strings.EqualFold(d.Tables[i].Name, name) {
			return &d.Tables[i]
		}
	}
	return nil
}

// SourceRef names a source consumed by a profile. When Regex is set
// the name is a pattern matched against all registered source names.
type SourceRef struct {
	Name  string
	Regex bool
}

// NamedParam binds one placeholder to a key path. Order matters: the
// transformer iterates group keys in profile insertion order.
type NamedParam struct {
	Placeholder string
	Path        KeyPath
}

// InsertionProfile maps a source's unit shape onto a SQL statement.
type InsertionProfile interface {
	TableName() string
	SQL() string
	SourceRefs() []SourceRef
	ConversionFor(ident string) (Conversion, bool)

	isProfile()
}

type profileCommon struct {
	Table       string
	Query       string
	Sources     []SourceRef
	Conversions map[string]Conversion
}

func (p *profileCommon) TableName() string       { return p.Table }
func (p *profileCommon) SQL() string             { return p.Query }
func (p *profileCommon) SourceRefs() []SourceRef { return p.Sources }
func (p *profileCommon) ConversionFor(ident string) (Conversion, bool) {
	c, ok := p.Conversions[ident]
	return c, ok
}
func (p *profileCommon) isProfile() {}

// PositionalProfile binds statement parameters by position: the i-th
// key path feeds the i-th placeholder.
type PositionalProfile struct {
	profileCommon
	Parameters []KeyPath
}

// NewPositionalProfile assembles a positional profile.
func NewPositionalProfile(table, query string, sources []SourceRef, params []KeyPath, conversions map[string]Conversion) *PositionalProfile {
	return &PositionalProfile{
		profileCommon: profileCommon{Table: table, Query: query, Sources: sources, Conversions: conversions},
		Parameters:    params,
	}
}

// NamedProfile binds statement parameters by placeholder name.
type NamedProfile struct {
	profileCommon
	Parameters []NamedParam
}

// NewNamedProfile assembles a named profile.
func NewNamedProfile(table, query string, sources []SourceRef, params []NamedParam, conversions map[string]Conversion) *NamedProfile {
	return &NamedProfile{
		profileCommon: profileCommon{Table: table, Query: query, Sources: sources, Conversions: conversions},
		Parameters:    params,
	}
}

// DataLink groups the sources and insertion profiles of one pipeline.
type DataLink struct {
	sources      []DataSource
	sourceByName map[string]DataSource
	profiles     []InsertionProfile
}

// AddSource registers a source, rejecting duplicate names.
func (l *DataLink) AddSource(src DataSource) error {
	if l.sourceByName == nil {
		l.sourceByName = make(map[string]DataSource)
	}
	name := src.Name()
	if _, exists := l.sourceByName[name]; exists {
		return fmt.Errorf("duplicate data source name: %q", name)
	}
	l.sourceByName[name] = src
	l.sources = append(l.sources, src)
	return nil
}

// Source returns the source registered under name.
func (l *DataLink) Source(name string) (DataSource, bool) {
	src, ok := l.sourceByName[name]
	return src, ok
}

// Sources returns all sources in registration order.
func (l *DataLink) Sources() []DataSource {
	return l.sources
}

// AddProfile registers an insertion profile, rejecting duplicate
// table names.
func (l *DataLink) AddProfile(p InsertionProfile) error {
	for _, existing := range l.profiles {
		if strings.EqualFold(existing.TableName(), p.TableName()) {
			return fmt.Errorf("duplicate insertion profile for table: %q", p.TableName())
		}
	}
	l.profiles = append(l.profiles, p)
	return nil
}

// Profile returns the profile for a table.
func (l *DataLink) Profile(table string) (InsertionProfile, bool) {
	for _, p := range l.profiles {
		if strings.EqualFold(p.TableName(), table) {
			return p, true
		}
	}
	return nil, false
}

// Profiles returns all profiles in document order.
func (l *DataLink) Profiles() []InsertionProfile {
	return l.profiles
}

// Definition is a complete pipeline: target database plus data link.
type Definition struct {
	TableDefinition DBDefinition
	Link            DataLink
}
