package tempstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "temp", "form_outline_temp.json")
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(tempPath(t))

	in := map[int]*FormOutline{
		1: {Success: true, IDs: []string{"r1", "r2"}, LastAccess: "2026/01/02 03:04:05"},
		2: {Success: false, IDs: []string{}, LastAccess: "2026/01/01 00:00:00"},
	}
	require.NoError(t, store.Save(in))

	out, err := store.Load()
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"r1", "r2"}, out[1].IDs)
	assert.True(t, out[1].Success)
	assert.Equal(t, "2026/01/02 03:04:05", out[1].LastAccess)
	assert.False(t, out[2].Success)
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := NewFileStore(tempPath(t))
	out, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCleanupRetainsPendingWork(t *testing.T) {
	path := tempPath(t)
	store := NewFileStore(path)

	require.NoError(t, store.Save(map[int]*FormOutline{
		1: {Success: true, IDs: []string{"r1"}},
	}))
	require.NoError(t, store.Cleanup())
	_, err := os.Stat(path)
	assert.NoError(t, err, "file with pending ids must survive cleanup")

	require.NoError(t, store.Save(map[int]*FormOutline{
		1: {Success: true, IDs: []string{}},
	}))
	require.NoError(t, store.Cleanup())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "emptied file must be removed")
}

func TestOutlineRemove(t *testing.T) {
	o := &FormOutline{IDs: []string{"a", "b", "c"}}
	o.Remove("b")
	assert.Equal(t, []string{"a", "c"}, o.IDs)
	assert.False(t, o.IsEmpty())
	o.Remove("a")
	o.Remove("c")
	assert.True(t, o.IsEmpty())
}

func TestMemoryStoreFlushOnSave(t *testing.T) {
	path := tempPath(t)
	backing := NewFileStore(path)
	mem, err := NewMemoryStore(backing)
	require.NoError(t, err)

	mem.Put(5, &FormOutline{Success: true, IDs: []string{"x"}})
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "Put must not touch disk")

	require.NoError(t, mem.Flush())
	onDisk, err := backing.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, onDisk[5].IDs)

	mem.Delete(5)
	require.NoError(t, mem.Cleanup())
	_, statErr = os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
