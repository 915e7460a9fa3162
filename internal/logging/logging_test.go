package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
)

func TestOpen_WritesTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, warn := Open(path, false, "utf-8", false)
	if warn != nil {
		t.Fatalf("Open() warning = %v", warn)
	}
	l.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }

	l.Infof("fetched %d pages", 3)
	l.Warningf("retrying %s", "users")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	got := string(data)
	want := "2026/03/14 09:26:53 [INFO] fetched 3 pages\n2026/03/14 09:26:53 [WARNING] retrying users\n"
	if got != want {
		t.Errorf("log content = %q, want %q", got, want)
	}
}

func TestOpen_TruncateClearsPreviousRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(path, []byte("old line\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	l, warn := Open(path, true, "", false)
	if warn != nil {
		t.Fatalf("Open() warning = %v", warn)
	}
	l.Infof("fresh start")
	_ = l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "old line") {
		t.Error("previous run's content survived truncation")
	}
	if !strings.Contains(string(data), "fresh start") {
		t.Error("new line missing after truncation")
	}
}

func TestOpen_KeepsPreviousRunWithoutTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(path, []byte("old line\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	l, warn := Open(path, false, "", false)
	if warn != nil {
		t.Fatalf("Open() warning = %v", warn)
	}
	l.Infof("appended")
	_ = l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "old line") {
		t.Error("previous content lost without truncation")
	}
}

func TestOpen_EmptyPathIsConsoleOnly(t *testing.T) {
	l, warn := Open("", false, "", false)
	if warn != nil {
		t.Fatalf("Open() warning = %v", warn)
	}
	l.Infof("goes nowhere")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestLogger_NotifierReceivesMessages(t *testing.T) {
	l, _ := Open("", false, "", false)
	defer l.Close()

	var gotLevel Level
	var gotMsg string
	l.SetNotifier(func(level Level, msg string) {
		gotLevel = level
		gotMsg = msg
	})

	l.Errorf("token %s rejected", "abc")
	if gotLevel != LevelError {
		t.Errorf("level = %v, want %v", gotLevel, LevelError)
	}
	if gotMsg != "token abc rejected" {
		t.Errorf("msg = %q, want %q", gotMsg, "token abc rejected")
	}
}

func TestLogger_WarningAndFatalHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, _ := Open(path, false, "", false)

	l.Warning(dierr.NewWarning(dierr.ApiDataNotFound).With("api_type", "user"))
	l.Fatal(dierr.NewFatal(dierr.TokenInvalid))
	l.Warning(nil)
	l.Fatal(nil)
	_ = l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.Contains(got, "ApiDataNotFound(api_type=user)") {
		t.Errorf("warning line missing: %q", got)
	}
	if !strings.Contains(got, "TokenInvalid") {
		t.Errorf("fatal line missing: %q", got)
	}
	if lines := strings.Count(got, "\n"); lines != 2 {
		t.Errorf("line count = %d, want 2 (nil entries must not log)", lines)
	}
}

func TestLookupEncoder(t *testing.T) {
	if lookupEncoder("") != nil {
		t.Error("empty name should not transform")
	}
	if lookupEncoder("UTF-8") != nil {
		t.Error("utf-8 should not transform")
	}
	if lookupEncoder("shift_jis") == nil {
		t.Error("shift_jis should resolve to an encoder")
	}
	if lookupEncoder("not-a-real-charset") != nil {
		t.Error("unknown names should fall back to identity")
	}
}

func TestFileNotifier_AppendAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.log")
	n := NewFileNotifier(path)
	n.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }

	n.Notify(LevelWarning, "users page 2 failed")
	n.Notify(LevelError, "token rejected")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read notifications: %v", err)
	}
	want := "2026-03-14T09:00:00Z|WARNING|users page 2 failed\n2026-03-14T09:00:00Z|ERROR|token rejected\n"
	if string(data) != want {
		t.Errorf("notifications = %q, want %q", string(data), want)
	}

	if err := n.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Clear() left the notifications file behind")
	}
	if err := n.Clear(); err != nil {
		t.Errorf("second Clear() error: %v", err)
	}
}

func TestFileNotifier_Progress(t *testing.T) {
	n := NewFileNotifier(filepath.Join(t.TempDir(), "n.log"))
	n.SetProgress("BASIC_DATA / GET_USER")
	if got := n.Progress(); got != "BASIC_DATA / GET_USER" {
		t.Errorf("Progress() = %q", got)
	}
	n.ClearProgress()
	if got := n.Progress(); got != "" {
		t.Errorf("Progress() after clear = %q", got)
	}
}
