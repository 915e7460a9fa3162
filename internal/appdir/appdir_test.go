package appdir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureLayout_CreatesDirs(t *testing.T) {
	d := New(t.TempDir())
	if err := d.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout() error: %v", err)
	}
	for _, dir := range []string{d.ConfigDir(), d.TempDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestEnsureLayout_Idempotent(t *testing.T) {
	d := New(t.TempDir())
	if err := d.EnsureLayout(); err != nil {
		t.Fatalf("first EnsureLayout() error: %v", err)
	}
	if err := d.EnsureLayout(); err != nil {
		t.Fatalf("second EnsureLayout() error: %v", err)
	}
}

func TestPaths(t *testing.T) {
	root := filepath.Join("some", "app")
	d := New(root)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ConfigFile", d.ConfigFile(), filepath.Join(root, "config", "config.ini")},
		{"StatusFile", d.StatusFile(), filepath.Join(root, "config", "app_status")},
		{"OutlineTempFile", d.OutlineTempFile(), filepath.Join(root, "temp", "form_outline_temp.json")},
		{"JSONDir", d.JSONDir(), filepath.Join(root, "json")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestDatabaseFile(t *testing.T) {
	d := New("/app")

	tests := []struct {
		path string
		want string
	}{
		{"jobcan.db", filepath.Join("/app", "jobcan.db")},
		{filepath.Join("sub", "jobcan.db"), filepath.Join("/app", "sub", "jobcan.db")},
		{"/abs/jobcan.db", "/abs/jobcan.db"},
		{":memory:", ":memory:"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := d.DatabaseFile(tt.path); got != tt.want {
			t.Errorf("DatabaseFile(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestRawResponseDB(t *testing.T) {
	d := New("/app")

	if got, want := d.RawResponseDB(""), filepath.Join("/app", RawResponseDBName); got != want {
		t.Errorf("RawResponseDB(\"\") = %q, want %q", got, want)
	}
	if got, want := d.RawResponseDB("raw"), filepath.Join("/app", "raw", RawResponseDBName); got != want {
		t.Errorf("RawResponseDB(\"raw\") = %q, want %q", got, want)
	}
	if got, want := d.RawResponseDB("/data"), filepath.Join("/data", RawResponseDBName); got != want {
		t.Errorf("RawResponseDB(\"/data\") = %q, want %q", got, want)
	}
}

func TestRawDataDir(t *testing.T) {
	d := New("/app")

	if got, want := d.RawDataDir(""), filepath.Join("/app", "json"); got != want {
		t.Errorf("RawDataDir(\"\") = %q, want %q", got, want)
	}
	if got, want := d.RawDataDir("archive"), filepath.Join("/app", "archive"); got != want {
		t.Errorf("RawDataDir(\"archive\") = %q, want %q", got, want)
	}
}
