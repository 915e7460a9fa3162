package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Unit is one extracted record: a mapping (map[string]any) or an
// ordered tuple ([]any), addressed by key paths during transform.
type Unit = any

// DataSource extracts units for the transformer. Variants: API,
// SQLite query, inline raw data.
type DataSource interface {
	Name() string
	Format() ResultFormat
	ResultsKey() string
	Extract(ctx context.Context) ([]Unit, error)
}

type sourceCommon struct {
	name       string
	format     ResultFormat
	resultsKey string
}

func (s *sourceCommon) Name() string         { return s.name }
func (s *sourceCommon) Format() ResultFormat { return s.format }
func (s *sourceCommon) ResultsKey() string   { return s.resultsKey }

// interpret converts a decoded JSON payload into units per the result
// format contract.
func (s *sourceCommon) interpret(payload any) ([]Unit, error) {
	switch s.format {
	case NestedJSON:
		return []Unit{payload}, nil
	case MultipleJSONEntries:
		list, ok := payload.([]any)
		if !ok {
			return nil, fmt.Errorf("source %s: expected a top-level list, got %T", s.name, payload)
		}
		return append([]Unit{}, list...), nil
	case JSONObjectResults:
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("source %s: expected an object, got %T", s.name, payload)
		}
		inner, ok := obj[s.resultsKey]
		if !ok {
			return nil, fmt.Errorf("source %s: results key %q missing", s.name, s.resultsKey)
		}
		list, ok := inner.([]any)
		if !ok {
			return nil, fmt.Errorf("source %s: results key %q is not a list", s.name, s.resultsKey)
		}
		return append([]Unit{}, list...), nil
	case DBFlatRows:
		list, ok := payload.([]any)
		if !ok {
			return nil, fmt.Errorf("source %s: expected row tuples, got %T", s.name, payload)
		}
		return append([]Unit{}, list...), nil
	}
	return nil, fmt.Errorf("source %s: unsupported result format %q", s.name, s.format)
}

// APISource extracts units from an HTTP endpoint.
type APISource struct {
	sourceCommon
	URL     string
	Headers map[string]string
	Params  map[string]string

	// HTTPClient overrides http.DefaultClient, mainly for tests.
	HTTPClient *http.Client
}

// NewAPISource creates an API-backed source.
func NewAPISource(name string, format ResultFormat, resultsKey, url string, headers, params map[string]string) *APISource {
	return &APISource{
		sourceCommon: sourceCommon{name: name, format: format, resultsKey: resultsKey},
		URL:          url,
		Headers:      headers,
		Params:       params,
	}
}

func (s *APISource) Extract(ctx context.Context) ([]Unit, error) {
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.name, err)
	}
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}
	if len(s.Params) > 0 {
		q := req.URL.Query()
		for k, v := range s.Params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source %s: unexpected status %d", s.name, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.name, err)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("source %s: decode response: %w", s.name, err)
	}
	return s.interpret(payload)
}

// SQLiteSource extracts units by running a query against a local
// SQLite database. With DBFlatRows each unit is an ordered tuple in
// column order; other formats get column-keyed mappings.
type SQLiteSource struct {
	sourceCommon
	Path  string
	Query string
}

// NewSQLiteSource creates a query-backed source.
func NewSQLiteSource(name string, format ResultFormat, resultsKey, path, query string) *SQLiteSource {
	return &SQLiteSource{
		sourceCommon: sourceCommon{name: name, format: format, resultsKey: resultsKey},
		Path:         path,
		Query:        query,
	}
}

func (s *SQLiteSource) Extract(ctx context.Context) ([]Unit, error) {
	db, err := sql.Open("sqlite3", "file:"+s.Path+"?mode=ro&_pragma=busy_timeout(30000)")
	if err != nil {
		return nil, fmt.Errorf("source %s: open %s: %w", s.name, s.Path, err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, s.Query)
	if err != nil {
		return nil, fmt.Errorf("source %s: query: %w", s.name, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.name, err)
	}

	var units []Unit
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("source %s: scan: %w", s.name, err)
		}
		if s.format == DBFlatRows {
			units = append(units, values)
			continue
		}
		unit := make(map[string]any, len(columns))
		for i, col := range columns {
			unit[col] = values[i]
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source %s: %w", s.name, err)
	}
	return units, nil
}

// RawSource holds units supplied in memory, used by the CSV importer
// and by inline data in the TOML document.
type RawSource struct {
	sourceCommon
	Data []Unit
}

// NewRawSource creates a source over in-memory units.
func NewRawSource(name string, format ResultFormat, resultsKey string, data []Unit) *RawSource {
	return &RawSource{
		sourceCommon: sourceCommon{name: name, format: format, resultsKey: resultsKey},
		Data:         data,
	}
}

func (s *RawSource) Extract(_ context.Context) ([]Unit, error) {
	if s.format == NestedJSON && len(s.Data) == 1 {
		return []Unit{s.Data[0]}, nil
	}
	return append([]Unit{}, s.Data...), nil
}
