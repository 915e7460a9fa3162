package rawsink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobcan-tools/jobcan-di/internal/jobcan"
)

func TestFileSinkNaming(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, 2, "utf-8")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.SavePage(ctx, jobcan.UserV3, 1, []byte(`{"count":1,"results":[{"user_code":"A"}]}`)))
	require.NoError(t, sink.SaveDetail(ctx, 7, "r42", []byte(`{"id":"r42"}`)))

	page, err := os.ReadFile(filepath.Join(dir, "user_v3-p1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "\n", "indent=2 must pretty-print")

	detail, err := os.ReadFile(filepath.Join(dir, "request_detail-rr42.json"))
	require.NoError(t, err)
	assert.Contains(t, string(detail), "r42")
	require.NoError(t, sink.Close())
}

func TestFileSinkNonJSONWrittenVerbatim(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, 2, "")
	require.NoError(t, err)

	body := []byte("<html>error</html>")
	require.NoError(t, sink.SavePage(context.Background(), jobcan.Group, 3, body))
	got, err := os.ReadFile(filepath.Join(dir, "group-p3.json"))
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestDBSinkExplodesResults(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobcan-API-response.db")
	sink, err := NewDBSink(ctx, path)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	page := []byte(`{"count":2,"next":null,"results":[{"user_code":"A","name":"a"},{"user_code":"B","name":"b"}]}`)
	require.NoError(t, sink.SavePage(ctx, jobcan.UserV3, 1, page))

	var n int
	require.NoError(t, sink.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM responses WHERE api_type = ?`, string(jobcan.UserV3)).Scan(&n))
	assert.Equal(t, 2, n)

	// Replaying the same page replaces, not duplicates.
	require.NoError(t, sink.SavePage(ctx, jobcan.UserV3, 1, page))
	require.NoError(t, sink.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM responses WHERE api_type = ?`, string(jobcan.UserV3)).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestDBSinkDetailKeys(t *testing.T) {
	ctx := context.Background()
	sink, err := NewDBSink(ctx, filepath.Join(t.TempDir(), "raw.db"))
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	require.NoError(t, sink.SaveDetail(ctx, 12, "sp-1", []byte(`{"id":"sp-1"}`)))
	require.NoError(t, sink.SaveDetail(ctx, 12, "sp-1", []byte(`{"id":"sp-1","v":2}`)))

	var response string
	require.NoError(t, sink.db.QueryRowContext(ctx,
		`SELECT response FROM responses WHERE api_type = ? AND brief_key = '12' AND detailed_key = 'sp-1'`,
		string(jobcan.RequestDetail)).Scan(&response))
	assert.Contains(t, response, `"v":2`)
}

func TestManagerSwitchClosesCurrent(t *testing.T) {
	ctx := context.Background()
	sink, err := NewDBSink(ctx, filepath.Join(t.TempDir(), "raw.db"))
	require.NoError(t, err)

	m := NewManager(sink)
	require.NoError(t, m.Switch(Discard{}))
	assert.Nil(t, sink.db, "switch must close the previous sink")
	require.NoError(t, m.Close())
}
