package rawsink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tidwall/gjson"

	"github.com/jobcan-tools/jobcan-di/internal/jobcan"
)

const responsesSchema = `
CREATE TABLE IF NOT EXISTS responses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    api_type TEXT NOT NULL,
    brief_key TEXT NOT NULL,
    detailed_key TEXT NOT NULL DEFAULT '',
    response TEXT NOT NULL,
    UNIQUE (api_type, brief_key, detailed_key) ON CONFLICT REPLACE
);
`

// DBSink stores responses in a dedicated SQLite database, one row per
// logical record. List pages are exploded: each element of "results"
// becomes its own row keyed by the endpoint's natural key, so a
// re-fetch replaces exactly the records it saw again.
type DBSink struct {
	db   *sql.DB
	path string
}

// NewDBSink opens (creating if needed) the raw-response database.
func NewDBSink(ctx context.Context, path string) (*DBSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create raw response directory: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(30000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open raw response database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping raw response database: %w", err)
	}
	if _, err := db.ExecContext(ctx, responsesSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create responses table: %w", err)
	}
	return &DBSink{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *DBSink) Path() string { return s.path }

// SavePage explodes a list page into one row per result element.
// Elements without the natural key fall back to page/index addressing
// so nothing is silently dropped.
func (s *DBSink) SavePage(ctx context.Context, apiType jobcan.APIType, pageNo int, body []byte) error {
	results := gjson.GetBytes(body, "results")
	if !results.IsArray() {
		return s.upsert(ctx, apiType, fmt.Sprintf("p%d", pageNo), "", string(body))
	}
	keyField := apiType.NaturalKey()
	var firstErr error
	results.ForEach(func(idx, element gjson.Result) bool {
		brief := element.Get(keyField).String()
		if brief == "" {
			brief = fmt.Sprintf("p%d-%d", pageNo, int(idx.Int()))
		}
		if err := s.upsert(ctx, apiType, brief, "", element.Raw); err != nil {
			firstErr = err
			return false
		}
		return true
	})
	return firstErr
}

// SaveDetail stores one request document keyed (form_id, request_id).
func (s *DBSink) SaveDetail(ctx context.Context, formID int, requestID string, body []byte) error {
	return s.upsert(ctx, jobcan.RequestDetail, strconv.Itoa(formID), requestID, string(body))
}

func (s *DBSink) upsert(ctx context.Context, apiType jobcan.APIType, brief, detailed, response string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO responses (api_type, brief_key, detailed_key, response) VALUES (?, ?, ?, ?)`,
		string(apiType), brief, detailed, response)
	if err != nil {
		return fmt.Errorf("store raw response %s/%s: %w", apiType, brief, err)
	}
	return nil
}

func (s *DBSink) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
