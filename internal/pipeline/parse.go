package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jobcan-tools/jobcan-di/internal/sqlschema"
)

// ParseError pinpoints the offending location in the TOML document so
// a UI layer can show exactly which section is wrong.
type ParseError struct {
	Path string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

func parseErrf(path, format string, args ...any) *ParseError {
	return &ParseError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// tomlDoc mirrors the accepted document shape.
type tomlDoc struct {
	TableDefinitions tomlTableDefs `toml:"table_definitions"`
	DataLink         tomlDataLink  `toml:"data_link"`
}

type tomlTableDefs struct {
	Type   string   `toml:"type"`
	Path   string   `toml:"path"`
	Tables []string `toml:"tables"`
}

type tomlDataLink struct {
	Sources          []tomlSource           `toml:"sources"`
	InsertionProfile map[string]tomlProfile `toml:"insertion_profile"`

	// The plural spelling is decoded only so it can be rejected with
	// a precise error instead of an opaque unknown-key report.
	InsertionProfiles map[string]tomlProfile `toml:"insertion_profiles"`
}

type tomlSource struct {
	Name         string            `toml:"name"`
	Type         string            `toml:"type"`
	ResultFormat string            `toml:"result_format"`
	ResultsKey   string            `toml:"results_key"`
	URL          string            `toml:"url"`
	Headers      map[string]string `toml:"headers"`
	Params       map[string]string `toml:"params"`
	Path         string            `toml:"path"`
	Query        string            `toml:"query"`
	Data         []map[string]any  `toml:"data"`
}

type tomlProfile struct {
	Query                string           `toml:"query"`
	Source               any              `toml:"source"`
	Sources              []any            `toml:"sources"`
	NamedParameters      map[string][]any `toml:"named_parameters"`
	PositionalParameters [][]any          `toml:"positional_parameters"`
	ConversionMethod     [][]any          `toml:"conversion_method"`
}

// ParseDocument converts a TOML pipeline document into a Definition,
// validating the shape strictly: unknown keys, malformed sections and
// dangling references all fail with a path-typed error.
func ParseDocument(data []byte) (*Definition, error) {
	var doc tomlDoc
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, parseErrf("(document)", "invalid TOML: %v", err)
	}
	for _, key := range md.Undecoded() {
		if sourceRefKey(key) {
			continue
		}
		return nil, parseErrf(key.String(), "unknown key")
	}
	if doc.DataLink.InsertionProfiles != nil {
		return nil, parseErrf("data_link.insertion_profiles",
			"unknown key (the accepted spelling is insertion_profile)")
	}

	def := &Definition{}
	if err := parseTableDefinitions(&doc.TableDefinitions, def); err != nil {
		return nil, err
	}
	if err := parseSources(doc.DataLink.Sources, &def.Link); err != nil {
		return nil, err
	}
	if err := parseProfiles(doc.DataLink.InsertionProfile, md, &def.Link); err != nil {
		return nil, err
	}
	return def, nil
}

func parseTableDefinitions(raw *tomlTableDefs, def *Definition) error {
	dialect, err := sqlschema.ParseDialect(raw.Type)
	if err != nil {
		return parseErrf("table_definitions.type", "%v", err)
	}
	def.TableDefinition.Dialect = dialect
	def.TableDefinition.Path = raw.Path

	for i, ddl := range raw.Tables {
		path := fmt.Sprintf("table_definitions.tables[%d]", i)
		tables, err := sqlschema.ParseDDL(ddl, dialect)
		if err != nil {
			return parseErrf(path, "%v", err)
		}
		if len(tables) != 1 {
			return parseErrf(path, "expected exactly one CREATE TABLE, found %d", len(tables))
		}
		def.TableDefinition.Tables = append(def.TableDefinition.Tables, tables[0])
	}
	return nil
}

func parseSources(raw []tomlSource, link *DataLink) error {
	for i, src := range raw {
		path := fmt.Sprintf("data_link.sources[%d]", i)
		if src.Name == "" {
			return parseErrf(path, "field name missing")
		}
		path = fmt.Sprintf("data_link.sources.%s", src.Name)

		format, err := ParseResultFormat(src.ResultFormat)
		if err != nil {
			return parseErrf(path+".result_format", "%v", err)
		}
		resultsKey := src.ResultsKey
		if resultsKey == "" {
			resultsKey = "results"
		}

		var source DataSource
		switch strings.ToUpper(strings.TrimSpace(src.Type)) {
		case "API":
			if src.URL == "" {
				return parseErrf(path+".url", "field url missing")
			}
			source = NewAPISource(src.Name, format, resultsKey, src.URL, src.Headers, src.Params)
		case "SQLITE":
			if src.Query == "" {
				return parseErrf(path+".query", "field query missing")
			}
			source = NewSQLiteSource(src.Name, format, resultsKey, src.Path, src.Query)
		case "RAW":
			units := make([]Unit, len(src.Data))
			for j, d := range src.Data {
				units[j] = map[string]any(d)
			}
			source = NewRawSource(src.Name, format, resultsKey, units)
		default:
			return parseErrf(path+".type", "unknown source type: %q", src.Type)
		}

		if err := link.AddSource(source); err != nil {
			return parseErrf(path, "%v", err)
		}
	}
	return nil
}

func parseProfiles(raw map[string]tomlProfile, md toml.MetaData, link *DataLink) error {
	// Map iteration order is random; recover document order from the
	// metadata keys so profiles land in the order they were written.
	for _, table := range profileOrder(md) {
		profile, ok := raw[table]
		if !ok {
			continue
		}
		path := "data_link.insertion_profile." + table
		parsed, err := parseProfile(table, path, &profile, md, link)
		if err != nil {
			return err
		}
		if err := link.AddProfile(parsed); err != nil {
			return parseErrf(path, "%v", err)
		}
	}
	return nil
}

func parseProfile(table, path string, raw *tomlProfile, md toml.MetaData, link *DataLink) (InsertionProfile, error) {
	if raw.Query == "" {
		return nil, parseErrf(path+".query", "field query missing")
	}

	sources, err := parseSourceRefs(path, raw, link)
	if err != nil {
		return nil, err
	}

	hasNamed := len(raw.NamedParameters) > 0
	hasPositional := len(raw.PositionalParameters) > 0
	if hasNamed == hasPositional {
		return nil, parseErrf(path,
			"exactly one of positional_parameters or named_parameters required")
	}

	if hasPositional {
		params := make([]KeyPath, len(raw.PositionalParameters))
		for i, rawPath := range raw.PositionalParameters {
			p, err := ParseKeyPath(rawPath)
			if err != nil {
				return nil, parseErrf(fmt.Sprintf("%s.positional_parameters[%d]", path, i), "%v", err)
			}
			params[i] = p
		}
		idents := make(map[string]bool, len(params))
		for i := range params {
			idents[strconv.Itoa(i)] = true
		}
		conversions, err := parseConversions(path, raw.ConversionMethod, idents)
		if err != nil {
			return nil, err
		}
		return NewPositionalProfile(table, raw.Query, sources, params, conversions), nil
	}

	ordered := namedParameterOrder(md, table)
	params := make([]NamedParam, 0, len(raw.NamedParameters))
	idents := make(map[string]bool, len(raw.NamedParameters))
	for _, placeholder := range ordered {
		rawPath, ok := raw.NamedParameters[placeholder]
		if !ok {
			continue
		}
		p, err := ParseKeyPath(rawPath)
		if err != nil {
			return nil, parseErrf(path+".named_parameters."+placeholder, "%v", err)
		}
		params = append(params, NamedParam{Placeholder: placeholder, Path: p})
		idents[placeholder] = true
	}
	conversions, err := parseConversions(path, raw.ConversionMethod, idents)
	if err != nil {
		return nil, err
	}
	return NewNamedProfile(table, raw.Query, sources, params, conversions), nil
}

// sourceRefKey reports whether an undecoded key sits inside a
// profile's source reference. Refs decode into free-form values (a
// name string or a {name, regex} table) and are shape-checked by
// parseSourceRef, so their sub-keys are exempt from the strict
// unknown-key rejection.
func sourceRefKey(key toml.Key) bool {
	parts := []string(key)
	if len(parts) < 5 || parts[0] != "data_link" || parts[1] != "insertion_profile" {
		return false
	}
	return parts[3] == "source" || parts[3] == "sources"
}

func parseSourceRefs(path string, raw *tomlProfile, link *DataLink) ([]SourceRef, error) {
	var rawRefs []any
	switch {
	case raw.Source != nil && len(raw.Sources) > 0:
		return nil, parseErrf(path, "source and sources are mutually exclusive")
	case raw.Source != nil:
		rawRefs = []any{raw.Source}
	case len(raw.Sources) > 0:
		rawRefs = raw.Sources
	default:
		return nil, parseErrf(path, "field source missing")
	}

	refs := make([]SourceRef, 0, len(rawRefs))
	for i, r := range rawRefs {
		refPath := fmt.Sprintf("%s.sources[%d]", path, i)
		ref, err := parseSourceRef(refPath, r)
		if err != nil {
			return nil, err
		}
		if !ref.Regex {
			if _, ok := link.Source(ref.Name); !ok {
				return nil, parseErrf(refPath, "unknown data source: %q", ref.Name)
			}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func parseSourceRef(path string, raw any) (SourceRef, error) {
	switch v := raw.(type) {
	case string:
		return SourceRef{Name: v}, nil
	case map[string]any:
		name, _ := v["name"].(string)
		if name == "" {
			return SourceRef{}, parseErrf(path, "field name missing")
		}
		regex, _ := v["regex"].(bool)
		return SourceRef{Name: name, Regex: regex}, nil
	}
	return SourceRef{}, parseErrf(path, "expected a source name or {name, regex} table")
}

// parseConversions validates the flat pair list, checking that every
// key references an existing parameter. An empty method name means
// the parameter passes through unconverted and is dropped here.
func parseConversions(path string, raw [][]any, idents map[string]bool) (map[string]Conversion, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]Conversion, len(raw))
	for i, pair := range raw {
		pairPath := fmt.Sprintf("%s.conversion_method[%d]", path, i)
		if len(pair) != 2 {
			return nil, parseErrf(pairPath, "expected a [key, method] pair")
		}
		key, err := conversionKey(pair[0])
		if err != nil {
			return nil, parseErrf(pairPath, "%v", err)
		}
		if !idents[key] {
			return nil, parseErrf(pairPath, "key %q does not reference a parameter", key)
		}
		method, ok := pair[1].(string)
		if !ok {
			return nil, parseErrf(pairPath, "method must be a string, got %T", pair[1])
		}
		conv, used, err := ParseConversion(method)
		if err != nil {
			return nil, parseErrf(pairPath, "%v", err)
		}
		if used {
			out[key] = conv
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func conversionKey(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	}
	return "", fmt.Errorf("key must be a parameter name or index, got %T", raw)
}

// profileOrder recovers the document order of insertion_profile
// tables from the TOML metadata.
func profileOrder(md toml.MetaData) []string {
	var order []string
	seen := make(map[string]bool)
	for _, key := range md.Keys() {
		parts := []string(key)
		if len(parts) >= 3 && parts[0] == "data_link" && parts[1] == "insertion_profile" {
			if !seen[parts[2]] {
				seen[parts[2]] = true
				order = append(order, parts[2])
			}
		}
	}
	return order
}

// namedParameterOrder recovers the document order of one profile's
// named parameters.
func namedParameterOrder(md toml.MetaData, table string) []string {
	var order []string
	seen := make(map[string]bool)
	for _, key := range md.Keys() {
		parts := []string(key)
		if len(parts) >= 5 && parts[0] == "data_link" && parts[1] == "insertion_profile" &&
			parts[2] == table && parts[3] == "named_parameters" {
			if !seen[parts[4]] {
				seen[parts[4]] = true
				order = append(order, parts[4])
			}
		}
	}
	return order
}
