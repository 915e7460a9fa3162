package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
	"github.com/jobcan-tools/jobcan-di/internal/timeparsing"
)

// Status is the full persisted state of the integrator: the progress
// pair, both failure records, the config file in use, the per-form
// last-access stamps, and the error that terminated the previous run.
type Status struct {
	Progress

	FetchFailure  FailureRecord `json:"fetch_failure_record"`
	DBSaveFailure FailureRecord `json:"db_save_failure_record"`

	ConfigFilePath string `json:"config_file_path,omitempty"`

	// FormAPILastAccess maps form_id to the applied_after stamp of the
	// last completed outline fetch, "YYYY/MM/DD HH:MM:SS".
	FormAPILastAccess map[int]string `json:"form_api_last_access"`

	// LastError is the fatal error that terminated the previous run,
	// nil after a clean completion.
	LastError *dierr.Fatal `json:"last_error,omitempty"`
}

// New creates an empty status at the starting progress.
func New() *Status {
	return &Status{
		Progress:          NewProgress(),
		FetchFailure:      NewFailureRecord(),
		DBSaveFailure:     NewFailureRecord(),
		FormAPILastAccess: make(map[int]string),
	}
}

// Merge combines this (newer) status with a previous run's, per the
// resumption rules: progress and scalars come from the newer status,
// failure records merge against the progress the newer run reached,
// and last-access stamps take the element-wise later value.
func (s *Status) Merge(prev *Status) {
	if prev == nil {
		return
	}
	s.FetchFailure = MergeFailureRecords(prev.FetchFailure, s.FetchFailure, s.Progress)
	s.DBSaveFailure = MergeFailureRecords(prev.DBSaveFailure, s.DBSaveFailure, s.Progress)

	if s.FormAPILastAccess == nil {
		s.FormAPILastAccess = make(map[int]string)
	}
	for formID, stamp := range prev.FormAPILastAccess {
		s.FormAPILastAccess[formID] = timeparsing.LaterStamp(s.FormAPILastAccess[formID], stamp)
	}
}

// TouchLastAccess advances a form's last-access stamp, never moving it
// backwards.
func (s *Status) TouchLastAccess(formID int, stamp string) {
	if s.FormAPILastAccess == nil {
		s.FormAPILastAccess = make(map[int]string)
	}
	s.FormAPILastAccess[formID] = timeparsing.LaterStamp(s.FormAPILastAccess[formID], stamp)
}

// Reset returns the status to a fresh state, keeping only the config
// file path. Called when a run reaches TERMINATING/COMPLETED.
func (s *Status) Reset() {
	configPath := s.ConfigFilePath
	lastAccess := s.FormAPILastAccess
	*s = *New()
	s.ConfigFilePath = configPath
	s.FormAPILastAccess = lastAccess
}

// File persists a Status as one JSON document, rewritten on every
// mutation so readers always see committed work.
type File struct {
	path string
}

// NewFile creates a persister for the given path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the status file location.
func (f *File) Path() string { return f.path }

// Load reads the persisted status. A missing file yields a fresh
// status and no warning; an unreadable or malformed file yields a
// fresh status plus an InvalidStatusFilePath warning.
func (f *File) Load() (*Status, *dierr.Warning) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return New(), dierr.NewWarning(dierr.InvalidStatusFilePath).
			With("path", f.path).
			With("error", err.Error())
	}

	s := New()
	if err := json.Unmarshal(data, s); err != nil {
		return New(), dierr.NewWarning(dierr.InvalidStatusFilePath).
			With("path", f.path).
			With("error", err.Error())
	}
	if s.Specifics == nil {
		s.Specifics = NewStringSet()
	}
	if s.FormAPILastAccess == nil {
		s.FormAPILastAccess = make(map[int]string)
	}
	return s, nil
}

// Save writes the status atomically: a temp file in the same directory
// renamed over the target, so a crash mid-write never corrupts state.
func (f *File) Save(s *Status) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create status directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".app_status-*")
	if err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write status: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace status: %w", err)
	}
	return nil
}
