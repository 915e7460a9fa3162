// Package config loads and watches the application's config.ini.
//
// A missing or unreadable file is not an error: the loader reports an
// InvalidConfigFilePath warning and every option falls back to its
// default, so a bare install still runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/encoding/ini"
	"github.com/spf13/viper"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
)

// RawDataMode selects where raw API responses are archived.
type RawDataMode string

const (
	RawDataNever RawDataMode = "NEVER"
	RawDataFile  RawDataMode = "FILE"
	RawDataDB    RawDataMode = "DB"
)

// LogInitMode controls whether the log file is truncated on startup.
type LogInitMode string

const (
	LogInitNever           LogInitMode = "NEVER"
	LogInitAlwaysOnStartup LogInitMode = "ALWAYS_ON_STARTUP"
)

// NotifyLevel is the minimum log level forwarded to the notifier.
type NotifyLevel string

const (
	NotifyNever   NotifyLevel = "NEVER"
	NotifyInfo    NotifyLevel = "INFO"
	NotifyWarning NotifyLevel = "WARNING"
	NotifyError   NotifyLevel = "ERROR"
)

// Options is the full set of recognized config.ini settings.
type Options struct {
	// [API]
	TokenEnvName    string
	APIToken        string
	RequestsPerHour float64
	RequestsPerSec  float64

	// [DATA_RETRIEVAL]
	SaveRawData          RawDataMode
	RawDataDir           string
	JSONIndent           int
	JSONEncoding         string
	IncludeCanceledForms bool

	// [DATABASE]
	DBPath string

	// [LOGGING]
	LogInit     LogInitMode
	LogPath     string
	LogEncoding string

	// [NOTIFICATION]
	EnableNotification                  bool
	ClearPreviousNotificationsOnStartup bool
	NotifyLogLevel                      NotifyLevel
	ClearProgressOnError                bool

	// [DEBUGGING]
	LogToConsole     bool
	CatchErrorsOnRun bool
}

// Defaults returns the options applied when config.ini is absent.
func Defaults() Options {
	return Options{
		RequestsPerHour:                     900,
		SaveRawData:                         RawDataNever,
		JSONIndent:                          2,
		JSONEncoding:                        "utf-8",
		DBPath:                              "jobcan-data.db",
		LogInit:                             LogInitNever,
		LogPath:                             "jobcan-di.log",
		LogEncoding:                         "utf-8",
		EnableNotification:                  false,
		ClearPreviousNotificationsOnStartup: true,
		NotifyLogLevel:                      NotifyWarning,
		ClearProgressOnError:                false,
		LogToConsole:                        false,
		CatchErrorsOnRun:                    true,
	}
}

// Load reads config.ini at path. A missing or broken file yields the
// defaults plus a non-nil InvalidConfigFilePath warning.
func Load(path string) (Options, *dierr.Warning) {
	opts := Defaults()

	// viper dropped its built-in INI codec in v1.20; it lives in the
	// companion encoding module now and must be registered explicitly.
	reg := viper.NewCodecRegistry()
	if err := reg.RegisterCodec("ini", ini.Codec{}); err != nil {
		return opts, dierr.NewWarning(dierr.InvalidConfigFilePath).
			With("path", path).
			With("error", err.Error())
	}
	v := viper.NewWithOptions(viper.WithCodecRegistry(reg))
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	setDefaults(v, opts)

	if err := v.ReadInConfig(); err != nil {
		return opts, dierr.NewWarning(dierr.InvalidConfigFilePath).
			With("path", path).
			With("error", err.Error())
	}

	opts.TokenEnvName = v.GetString("API.TOKEN_ENV_NAME")
	opts.APIToken = v.GetString("API.API_TOKEN")
	opts.RequestsPerHour = v.GetFloat64("API.REQUESTS_PER_HOUR")
	opts.RequestsPerSec = v.GetFloat64("API.REQUESTS_PER_SEC")

	opts.SaveRawData = parseRawDataMode(v.GetString("DATA_RETRIEVAL.SAVE_RAW_DATA"))
	opts.RawDataDir = v.GetString("DATA_RETRIEVAL.RAW_DATA_DIR")
	opts.JSONIndent = v.GetInt("DATA_RETRIEVAL.JSON_INDENT")
	opts.JSONEncoding = v.GetString("DATA_RETRIEVAL.JSON_ENCODING")
	opts.IncludeCanceledForms = v.GetBool("DATA_RETRIEVAL.INCLUDE_CANCELED_FORMS")

	opts.DBPath = v.GetString("DATABASE.DB_PATH")

	opts.LogInit = parseLogInitMode(v.GetString("LOGGING.LOG_INIT"))
	opts.LogPath = v.GetString("LOGGING.LOG_PATH")
	opts.LogEncoding = v.GetString("LOGGING.LOG_ENCODING")

	opts.EnableNotification = v.GetBool("NOTIFICATION.ENABLE_NOTIFICATION")
	opts.ClearPreviousNotificationsOnStartup = v.GetBool("NOTIFICATION.CLEAR_PREVIOUS_NOTIFICATIONS_ON_STARTUP")
	opts.NotifyLogLevel = parseNotifyLevel(v.GetString("NOTIFICATION.NOTIFY_LOG_LEVEL"))
	opts.ClearProgressOnError = v.GetBool("NOTIFICATION.CLEAR_PROGRESS_ON_ERROR")

	opts.LogToConsole = v.GetBool("DEBUGGING.LOG_TO_CONSOLE")
	opts.CatchErrorsOnRun = v.GetBool("DEBUGGING.CATCH_ERRORS_ON_RUN")

	return opts, nil
}

func setDefaults(v *viper.Viper, opts Options) {
	v.SetDefault("API.TOKEN_ENV_NAME", opts.TokenEnvName)
	v.SetDefault("API.API_TOKEN", opts.APIToken)
	v.SetDefault("API.REQUESTS_PER_HOUR", opts.RequestsPerHour)
	v.SetDefault("API.REQUESTS_PER_SEC", opts.RequestsPerSec)
	v.SetDefault("DATA_RETRIEVAL.SAVE_RAW_DATA", string(opts.SaveRawData))
	v.SetDefault("DATA_RETRIEVAL.RAW_DATA_DIR", opts.RawDataDir)
	v.SetDefault("DATA_RETRIEVAL.JSON_INDENT", opts.JSONIndent)
	v.SetDefault("DATA_RETRIEVAL.JSON_ENCODING", opts.JSONEncoding)
	v.SetDefault("DATA_RETRIEVAL.INCLUDE_CANCELED_FORMS", opts.IncludeCanceledForms)
	v.SetDefault("DATABASE.DB_PATH", opts.DBPath)
	v.SetDefault("LOGGING.LOG_INIT", string(opts.LogInit))
	v.SetDefault("LOGGING.LOG_PATH", opts.LogPath)
	v.SetDefault("LOGGING.LOG_ENCODING", opts.LogEncoding)
	v.SetDefault("NOTIFICATION.ENABLE_NOTIFICATION", opts.EnableNotification)
	v.SetDefault("NOTIFICATION.CLEAR_PREVIOUS_NOTIFICATIONS_ON_STARTUP", opts.ClearPreviousNotificationsOnStartup)
	v.SetDefault("NOTIFICATION.NOTIFY_LOG_LEVEL", string(opts.NotifyLogLevel))
	v.SetDefault("NOTIFICATION.CLEAR_PROGRESS_ON_ERROR", opts.ClearProgressOnError)
	v.SetDefault("DEBUGGING.LOG_TO_CONSOLE", opts.LogToConsole)
	v.SetDefault("DEBUGGING.CATCH_ERRORS_ON_RUN", opts.CatchErrorsOnRun)
}

// parseRawDataMode accepts the named modes plus boolean spellings kept
// for older config files (true meant "write JSON files").
func parseRawDataMode(s string) RawDataMode {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FILE", "TRUE", "YES", "ON", "1":
		return RawDataFile
	case "DB", "DATABASE":
		return RawDataDB
	default:
		return RawDataNever
	}
}

func parseLogInitMode(s string) LogInitMode {
	if strings.EqualFold(strings.TrimSpace(s), string(LogInitAlwaysOnStartup)) {
		return LogInitAlwaysOnStartup
	}
	return LogInitNever
}

func parseNotifyLevel(s string) NotifyLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO":
		return NotifyInfo
	case "WARNING":
		return NotifyWarning
	case "ERROR":
		return NotifyError
	default:
		return NotifyNever
	}
}

// ResolveToken returns the API token. TOKEN_ENV_NAME preempts API_TOKEN:
// when set, the named environment variable must exist and be non-empty.
func (o Options) ResolveToken() (string, *dierr.Fatal) {
	if o.TokenEnvName != "" {
		val, ok := os.LookupEnv(o.TokenEnvName)
		if !ok {
			return "", dierr.NewFatal(dierr.TokenMissingEnvNotFound).
				With("env", o.TokenEnvName)
		}
		if val == "" {
			return "", dierr.NewFatal(dierr.TokenMissingEnvEmpty).
				With("env", o.TokenEnvName)
		}
		return val, nil
	}
	if o.APIToken != "" {
		return o.APIToken, nil
	}
	return "", dierr.NewFatal(dierr.TokenNotFound)
}

// RequestInterval derives the minimum spacing between API requests.
// An explicit REQUESTS_PER_SEC wins over REQUESTS_PER_HOUR; a
// non-positive rate disables throttling.
func (o Options) RequestInterval() time.Duration {
	if o.RequestsPerSec > 0 {
		return time.Duration(float64(time.Second) / o.RequestsPerSec)
	}
	if o.RequestsPerHour > 0 {
		return time.Duration(float64(time.Hour) / o.RequestsPerHour)
	}
	return 0
}

// NotifyAt reports whether a message at the given level passes the
// NOTIFY_LOG_LEVEL gate.
func (o Options) NotifyAt(level NotifyLevel) bool {
	if !o.EnableNotification {
		return false
	}
	rank := func(l NotifyLevel) int {
		switch l {
		case NotifyInfo:
			return 1
		case NotifyWarning:
			return 2
		case NotifyError:
			return 3
		default:
			return 0
		}
	}
	gate := rank(o.NotifyLogLevel)
	if gate == 0 {
		return false
	}
	return rank(level) >= gate
}

// Validate reports options that cannot be used as configured.
func (o Options) Validate() []string {
	var issues []string
	if o.JSONIndent < 0 {
		issues = append(issues, fmt.Sprintf("JSON_INDENT: %s is invalid (must be >= 0)", strconv.Itoa(o.JSONIndent)))
	}
	if o.RequestsPerSec < 0 {
		issues = append(issues, "REQUESTS_PER_SEC: must be >= 0")
	}
	if o.RequestsPerHour < 0 {
		issues = append(issues, "REQUESTS_PER_HOUR: must be >= 0")
	}
	if o.DBPath == "" {
		issues = append(issues, "DB_PATH: must not be empty")
	}
	return issues
}
