// Package appdir owns the on-disk layout of the application directory:
// where the config file, status file, temp files, raw-response archive and
// the main database live.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Well-known names under the application directory.
const (
	ConfigDirName  = "config"
	TempDirName    = "temp"
	JSONDirName    = "json"
	ConfigFileName = "config.ini"
	StatusFileName = "app_status"

	// OutlineTempFileName holds in-flight form outlines between the
	// outline and detail stages.
	OutlineTempFileName = "form_outline_temp.json"

	// RawResponseDBName is the side database used by the DB-mode raw sink.
	RawResponseDBName = "jobcan-API-response.db"

	lockFileName = ".jobcan-di.lock"
)

// Dir is an application directory rooted at a single path.
type Dir struct {
	root string
}

// New creates a Dir rooted at the given path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default resolves the application directory next to the executable,
// falling back to the working directory.
func Default() (Dir, error) {
	if exe, err := os.Executable(); err == nil {
		return Dir{root: filepath.Dir(exe)}, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return Dir{}, fmt.Errorf("resolve app directory: %w", err)
	}
	return Dir{root: cwd}, nil
}

// Root returns the application directory path.
func (d Dir) Root() string { return d.root }

// ConfigDir returns <app>/config.
func (d Dir) ConfigDir() string { return filepath.Join(d.root, ConfigDirName) }

// TempDir returns <app>/temp.
func (d Dir) TempDir() string { return filepath.Join(d.root, TempDirName) }

// JSONDir returns <app>/json, the default file-mode raw sink directory.
func (d Dir) JSONDir() string { return filepath.Join(d.root, JSONDirName) }

// ConfigFile returns <app>/config/config.ini.
func (d Dir) ConfigFile() string { return filepath.Join(d.ConfigDir(), ConfigFileName) }

// StatusFile returns <app>/config/app_status.
func (d Dir) StatusFile() string { return filepath.Join(d.ConfigDir(), StatusFileName) }

// OutlineTempFile returns <app>/temp/form_outline_temp.json.
func (d Dir) OutlineTempFile() string { return filepath.Join(d.TempDir(), OutlineTempFileName) }

// LockFile returns the path of the single-instance lock file.
func (d Dir) LockFile() string { return filepath.Join(d.root, lockFileName) }

// DatabaseFile resolves a configured database path. Relative paths are
// anchored at the application directory; absolute paths pass through.
func (d Dir) DatabaseFile(path string) string {
	if path == "" || path == ":memory:" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.root, path)
}

// RawResponseDB resolves the raw-sink database path under the given
// directory, defaulting to the app root when dir is empty.
func (d Dir) RawResponseDB(dir string) string {
	if dir == "" {
		return filepath.Join(d.root, RawResponseDBName)
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(d.root, dir)
	}
	return filepath.Join(dir, RawResponseDBName)
}

// RawDataDir resolves the file-mode raw sink directory, defaulting to
// <app>/json when dir is empty.
func (d Dir) RawDataDir(dir string) string {
	if dir == "" {
		return d.JSONDir()
	}
	if !filepath.IsAbs(dir) {
		return filepath.Join(d.root, dir)
	}
	return dir
}

// EnsureLayout creates the config and temp directories if missing.
func (d Dir) EnsureLayout() error {
	for _, dir := range []string{d.ConfigDir(), d.TempDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
