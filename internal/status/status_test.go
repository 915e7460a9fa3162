package status

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobcan-tools/jobcan-di/internal/jobcan"
)

func TestProgressSetClearsSpecifics(t *testing.T) {
	p := NewProgress()
	p.Set(StageBasicData, SubGetUser)
	p.AddSpecifics("A", "B")
	require.True(t, p.HasSpecific("A"))

	// Same pair keeps specifics.
	p.Set(StageBasicData, SubGetUser)
	assert.True(t, p.HasSpecific("A"))

	p.Set(StageBasicData, SubGetGroup)
	assert.False(t, p.HasSpecific("A"))
	assert.Empty(t, p.Specifics)
}

func TestIsFutureProcessTotalOrder(t *testing.T) {
	p := NewProgress()
	p.Set(StageBasicData, SubGetPosition)

	// Strictly before: done.
	assert.False(t, p.IsFutureProcess(StageInitializing, SubNone, ""))
	assert.False(t, p.IsFutureProcess(StageBasicData, SubGetUser, ""))
	assert.False(t, p.IsFutureProcess(StageBasicData, SubGetGroup, ""))

	// At or after: still to do.
	assert.True(t, p.IsFutureProcess(StageBasicData, SubGetPosition, ""))
	assert.True(t, p.IsFutureProcess(StageBasicData, SubGetCompany, ""))
	assert.True(t, p.IsFutureProcess(StageFormOutline, SubGetForm, ""))
	assert.True(t, p.IsFutureProcess(StageTerminating, SubCompleted, ""))
}

func TestIsFutureProcessSpecifics(t *testing.T) {
	p := NewProgress()
	p.Set(StageBasicData, SubGetUser)
	p.AddSpecifics("u01", "u02")

	assert.False(t, p.IsFutureProcess(StageBasicData, SubGetUser, "u01"))
	assert.True(t, p.IsFutureProcess(StageBasicData, SubGetUser, "u03"))

	// Specifics only gate the current pair, not later ones.
	assert.True(t, p.IsFutureProcess(StageBasicData, SubGetGroup, "u01"))
}

func TestIsFutureProcessTerminal(t *testing.T) {
	done := NewProgress()
	done.Set(StageTerminating, SubCompleted)
	assert.False(t, done.IsFutureProcess(StageBasicData, SubGetUser, ""))

	failed := NewProgress()
	failed.Set(StageTerminating, SubFailed)
	assert.False(t, failed.IsFutureProcess(StageBasicData, SubGetUser, ""))
}

func TestIsFutureAPIMapping(t *testing.T) {
	p := NewProgress()
	p.Set(StageBasicData, SubGetGroup)

	assert.False(t, p.IsFutureAPI(jobcan.UserV3, ""))
	assert.True(t, p.IsFutureAPI(jobcan.Group, ""))
	assert.True(t, p.IsFutureAPI(jobcan.Form, ""))
	assert.True(t, p.IsFutureAPI(jobcan.RequestDetail, ""))
}

func TestMergeFailureRecordsStageRule(t *testing.T) {
	// Mirrors the user/group scenario: progress reached GET_GROUP, so
	// user failures were already retried (new wins) while group
	// failures were not (union).
	prev := NewFailureRecord()
	prev.Record(jobcan.UserV3, "1", "2", "3")
	prev.Record(jobcan.Group, "g1")

	next := NewFailureRecord()
	next.Record(jobcan.UserV3, "1", "3", "5")
	next.Record(jobcan.Group, "g2")

	reached := NewProgress()
	reached.Set(StageBasicData, SubGetGroup)

	merged := MergeFailureRecords(prev, next, reached)
	assert.Equal(t, []string{"1", "3", "5"}, merged.BasicData[jobcan.UserV3].Sorted())
	assert.Equal(t, []string{"g1", "g2"}, merged.BasicData[jobcan.Group].Sorted())
}

func TestMergeFailureRecordsIdempotent(t *testing.T) {
	r := NewFailureRecord()
	r.Record(jobcan.UserV3, "a", "b")
	r.RecordDetail(7, "r1")
	r.MarkDirty(jobcan.Position, true)

	reached := NewProgress()
	reached.Set(StageBasicData, SubGetPosition)

	merged := MergeFailureRecords(r, r, reached)
	assert.Equal(t, r.BasicData[jobcan.UserV3].Sorted(), merged.BasicData[jobcan.UserV3].Sorted())
	assert.Equal(t, r.RequestDetail[7].Sorted(), merged.RequestDetail[7].Sorted())
	assert.True(t, merged.IsDirty(jobcan.Position))
}

func TestMergeRequestDetailPerForm(t *testing.T) {
	prev := NewFailureRecord()
	prev.RecordDetail(1, "r1", "r2")
	prev.RecordDetail(2, "r9")

	next := NewFailureRecord()
	next.RecordDetail(1, "r3")

	// Detail stage not yet consumed: union per form.
	reached := NewProgress()
	reached.Set(StageFormDetail, SubGetRequestDetail)
	merged := MergeFailureRecords(prev, next, reached)
	assert.Equal(t, []string{"r1", "r2", "r3"}, merged.RequestDetail[1].Sorted())
	assert.Equal(t, []string{"r9"}, merged.RequestDetail[2].Sorted())

	// Past the detail stage: new record is authoritative.
	reached.Set(StageTerminating, SubCompleted)
	merged = MergeFailureRecords(prev, next, reached)
	assert.Equal(t, []string{"r3"}, merged.RequestDetail[1].Sorted())
	assert.NotContains(t, merged.RequestDetail, 2)
}

func TestStatusMergeLastAccess(t *testing.T) {
	prev := New()
	prev.TouchLastAccess(1, "2026/01/01 00:00:00")
	prev.TouchLastAccess(2, "2026/03/01 12:00:00")

	s := New()
	s.Set(StageTerminating, SubCompleted)
	s.TouchLastAccess(1, "2026/02/01 00:00:00")

	s.Merge(prev)
	assert.Equal(t, "2026/02/01 00:00:00", s.FormAPILastAccess[1])
	assert.Equal(t, "2026/03/01 12:00:00", s.FormAPILastAccess[2])
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "app_status")
	file := NewFile(path)

	s := New()
	s.Set(StageBasicData, SubGetUser)
	s.AddSpecifics("A", "B", "C")
	s.FetchFailure.Record(jobcan.Group, "g7")
	s.FetchFailure.MarkDirty(jobcan.Form, true)
	s.DBSaveFailure.RecordDetail(3, "r4")
	s.ConfigFilePath = "config/config.ini"
	s.TouchLastAccess(3, "2026/05/06 07:08:09")
	require.NoError(t, file.Save(s))

	loaded, warn := file.Load()
	require.Nil(t, warn)
	assert.Equal(t, StageBasicData, loaded.Outline)
	assert.Equal(t, SubGetUser, loaded.Detail)
	assert.Equal(t, []string{"A", "B", "C"}, loaded.Specifics.Sorted())
	assert.Equal(t, []string{"g7"}, loaded.FetchFailure.BasicData[jobcan.Group].Sorted())
	assert.True(t, loaded.FetchFailure.IsDirty(jobcan.Form))
	assert.Equal(t, []string{"r4"}, loaded.DBSaveFailure.RequestDetail[3].Sorted())
	assert.Equal(t, "2026/05/06 07:08:09", loaded.FormAPILastAccess[3])
}

func TestFileLoadMissing(t *testing.T) {
	file := NewFile(filepath.Join(t.TempDir(), "nope", "app_status"))
	s, warn := file.Load()
	require.Nil(t, warn)
	assert.Equal(t, StageInitializing, s.Outline)
	assert.True(t, s.FetchFailure.IsEmpty())
}

func TestFileLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app_status")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, warn := NewFile(path).Load()
	require.NotNil(t, warn)
	assert.Equal(t, StageInitializing, s.Outline)
}

func TestStatusReset(t *testing.T) {
	s := New()
	s.Set(StageTerminating, SubCompleted)
	s.ConfigFilePath = "config/config.ini"
	s.FetchFailure.Record(jobcan.UserV3, "x")
	s.TouchLastAccess(5, "2026/01/02 03:04:05")

	s.Reset()
	assert.Equal(t, StageInitializing, s.Outline)
	assert.True(t, s.FetchFailure.IsEmpty())
	assert.Equal(t, "config/config.ini", s.ConfigFilePath)
	assert.Equal(t, "2026/01/02 03:04:05", s.FormAPILastAccess[5])
}
