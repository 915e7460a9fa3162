package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	opts, warn := Load(filepath.Join(t.TempDir(), "no-such.ini"))
	if warn == nil {
		t.Fatal("Load() warning = nil, want InvalidConfigFilePath")
	}
	if warn.Kind != dierr.InvalidConfigFilePath {
		t.Errorf("warning kind = %q, want %q", warn.Kind, dierr.InvalidConfigFilePath)
	}
	want := Defaults()
	if opts != want {
		t.Errorf("Load() = %+v, want defaults %+v", opts, want)
	}
}

func TestLoad_ReadsAllSections(t *testing.T) {
	path := writeConfig(t, `
[API]
TOKEN_ENV_NAME = JOBCAN_TOKEN
API_TOKEN = inline-token
REQUESTS_PER_HOUR = 1800
REQUESTS_PER_SEC = 2

[DATA_RETRIEVAL]
SAVE_RAW_DATA = DB
RAW_DATA_DIR = archive
JSON_INDENT = 4
JSON_ENCODING = cp932
INCLUDE_CANCELED_FORMS = true

[DATABASE]
DB_PATH = data/main.db

[LOGGING]
LOG_INIT = ALWAYS_ON_STARTUP
LOG_PATH = logs/app.log
LOG_ENCODING = utf-8

[NOTIFICATION]
ENABLE_NOTIFICATION = true
CLEAR_PREVIOUS_NOTIFICATIONS_ON_STARTUP = false
NOTIFY_LOG_LEVEL = ERROR
CLEAR_PROGRESS_ON_ERROR = true

[DEBUGGING]
LOG_TO_CONSOLE = true
CATCH_ERRORS_ON_RUN = false
`)
	opts, warn := Load(path)
	if warn != nil {
		t.Fatalf("Load() warning = %v, want nil", warn)
	}

	if opts.TokenEnvName != "JOBCAN_TOKEN" {
		t.Errorf("TokenEnvName = %q", opts.TokenEnvName)
	}
	if opts.APIToken != "inline-token" {
		t.Errorf("APIToken = %q", opts.APIToken)
	}
	if opts.RequestsPerHour != 1800 {
		t.Errorf("RequestsPerHour = %v", opts.RequestsPerHour)
	}
	if opts.RequestsPerSec != 2 {
		t.Errorf("RequestsPerSec = %v", opts.RequestsPerSec)
	}
	if opts.SaveRawData != RawDataDB {
		t.Errorf("SaveRawData = %q", opts.SaveRawData)
	}
	if opts.RawDataDir != "archive" {
		t.Errorf("RawDataDir = %q", opts.RawDataDir)
	}
	if opts.JSONIndent != 4 {
		t.Errorf("JSONIndent = %d", opts.JSONIndent)
	}
	if opts.JSONEncoding != "cp932" {
		t.Errorf("JSONEncoding = %q", opts.JSONEncoding)
	}
	if !opts.IncludeCanceledForms {
		t.Error("IncludeCanceledForms = false")
	}
	if opts.DBPath != "data/main.db" {
		t.Errorf("DBPath = %q", opts.DBPath)
	}
	if opts.LogInit != LogInitAlwaysOnStartup {
		t.Errorf("LogInit = %q", opts.LogInit)
	}
	if !opts.EnableNotification {
		t.Error("EnableNotification = false")
	}
	if opts.ClearPreviousNotificationsOnStartup {
		t.Error("ClearPreviousNotificationsOnStartup = true")
	}
	if opts.NotifyLogLevel != NotifyError {
		t.Errorf("NotifyLogLevel = %q", opts.NotifyLogLevel)
	}
	if !opts.ClearProgressOnError {
		t.Error("ClearProgressOnError = false")
	}
	if !opts.LogToConsole {
		t.Error("LogToConsole = false")
	}
	if opts.CatchErrorsOnRun {
		t.Error("CatchErrorsOnRun = true")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "[API]\nAPI_TOKEN = abc\n")
	opts, warn := Load(path)
	if warn != nil {
		t.Fatalf("Load() warning = %v, want nil", warn)
	}
	if opts.APIToken != "abc" {
		t.Errorf("APIToken = %q, want %q", opts.APIToken, "abc")
	}
	def := Defaults()
	if opts.DBPath != def.DBPath {
		t.Errorf("DBPath = %q, want default %q", opts.DBPath, def.DBPath)
	}
	if opts.JSONIndent != def.JSONIndent {
		t.Errorf("JSONIndent = %d, want default %d", opts.JSONIndent, def.JSONIndent)
	}
	if opts.CatchErrorsOnRun != def.CatchErrorsOnRun {
		t.Errorf("CatchErrorsOnRun = %v, want default %v", opts.CatchErrorsOnRun, def.CatchErrorsOnRun)
	}
}

func TestParseRawDataMode(t *testing.T) {
	tests := []struct {
		in   string
		want RawDataMode
	}{
		{"NEVER", RawDataNever},
		{"", RawDataNever},
		{"false", RawDataNever},
		{"FILE", RawDataFile},
		{"file", RawDataFile},
		{"true", RawDataFile},
		{"1", RawDataFile},
		{"DB", RawDataDB},
		{"database", RawDataDB},
	}
	for _, tt := range tests {
		if got := parseRawDataMode(tt.in); got != tt.want {
			t.Errorf("parseRawDataMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveToken_EnvPreemptsInline(t *testing.T) {
	t.Setenv("JOBCAN_DI_TEST_TOKEN", "from-env")
	opts := Options{TokenEnvName: "JOBCAN_DI_TEST_TOKEN", APIToken: "inline"}
	tok, fatal := opts.ResolveToken()
	if fatal != nil {
		t.Fatalf("ResolveToken() fatal = %v", fatal)
	}
	if tok != "from-env" {
		t.Errorf("token = %q, want %q", tok, "from-env")
	}
}

func TestResolveToken_EnvNotFound(t *testing.T) {
	opts := Options{TokenEnvName: "JOBCAN_DI_DEFINITELY_UNSET", APIToken: "inline"}
	_, fatal := opts.ResolveToken()
	if fatal == nil {
		t.Fatal("ResolveToken() fatal = nil")
	}
	if fatal.Kind != dierr.TokenMissingEnvNotFound {
		t.Errorf("kind = %q, want %q", fatal.Kind, dierr.TokenMissingEnvNotFound)
	}
}

func TestResolveToken_EnvEmpty(t *testing.T) {
	t.Setenv("JOBCAN_DI_TEST_EMPTY", "")
	opts := Options{TokenEnvName: "JOBCAN_DI_TEST_EMPTY"}
	_, fatal := opts.ResolveToken()
	if fatal == nil {
		t.Fatal("ResolveToken() fatal = nil")
	}
	if fatal.Kind != dierr.TokenMissingEnvEmpty {
		t.Errorf("kind = %q, want %q", fatal.Kind, dierr.TokenMissingEnvEmpty)
	}
}

func TestResolveToken_InlineFallback(t *testing.T) {
	opts := Options{APIToken: "inline"}
	tok, fatal := opts.ResolveToken()
	if fatal != nil {
		t.Fatalf("ResolveToken() fatal = %v", fatal)
	}
	if tok != "inline" {
		t.Errorf("token = %q, want %q", tok, "inline")
	}
}

func TestResolveToken_NothingConfigured(t *testing.T) {
	_, fatal := Options{}.ResolveToken()
	if fatal == nil {
		t.Fatal("ResolveToken() fatal = nil")
	}
	if fatal.Kind != dierr.TokenNotFound {
		t.Errorf("kind = %q, want %q", fatal.Kind, dierr.TokenNotFound)
	}
}

func TestRequestInterval(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want time.Duration
	}{
		{"per-sec wins", Options{RequestsPerSec: 2, RequestsPerHour: 3600}, 500 * time.Millisecond},
		{"per-hour only", Options{RequestsPerHour: 3600}, time.Second},
		{"neither", Options{}, 0},
		{"default hourly", Defaults(), 4 * time.Second},
	}
	for _, tt := range tests {
		if got := tt.opts.RequestInterval(); got != tt.want {
			t.Errorf("%s: RequestInterval() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNotifyAt(t *testing.T) {
	on := Options{EnableNotification: true, NotifyLogLevel: NotifyWarning}
	if on.NotifyAt(NotifyInfo) {
		t.Error("INFO passed a WARNING gate")
	}
	if !on.NotifyAt(NotifyWarning) {
		t.Error("WARNING blocked by a WARNING gate")
	}
	if !on.NotifyAt(NotifyError) {
		t.Error("ERROR blocked by a WARNING gate")
	}

	off := Options{EnableNotification: false, NotifyLogLevel: NotifyInfo}
	if off.NotifyAt(NotifyError) {
		t.Error("notification passed with ENABLE_NOTIFICATION off")
	}

	never := Options{EnableNotification: true, NotifyLogLevel: NotifyNever}
	if never.NotifyAt(NotifyError) {
		t.Error("notification passed with NOTIFY_LOG_LEVEL NEVER")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "[API]\nREQUESTS_PER_SEC = 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Options, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, path, func(o Options) {
			select {
			case got <- o:
			default:
			}
		})
	}()

	// Give the watcher a beat to register before rewriting.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("[API]\nREQUESTS_PER_SEC = 5\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case opts := <-got:
		if opts.RequestsPerSec != 5 {
			t.Errorf("RequestsPerSec = %v, want 5", opts.RequestsPerSec)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop on context cancel")
	}
}
