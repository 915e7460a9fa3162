// Package dierr defines the two-kind error taxonomy shared by every subsystem:
// fatal errors stop the run, retryable warnings are recorded and skipped.
//
// Both kinds serialize to JSON as {"kind": ..., "args": {...}} so they
// round-trip through the status file between runs.
package dierr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a single failure class. The string value is what lands in
// the status file, so renaming a kind is a persistence format change.
type Kind string

// Fatal kinds. Any of these aborts the current run.
const (
	TokenNotFound                 Kind = "TokenNotFound"
	TokenMissingEnvEmpty          Kind = "TokenMissingEnvEmpty"
	TokenMissingEnvNotFound       Kind = "TokenMissingEnvNotFound"
	TokenInvalid                  Kind = "TokenInvalid"
	DatabaseConnectionFailed      Kind = "DatabaseConnectionFailed"
	DatabaseTableCreationFailed   Kind = "DatabaseTableCreationFailed"
	RequestConnectionError        Kind = "RequestConnectionError"
	RequestReadTimeout            Kind = "RequestReadTimeout"
	NotInitialized                Kind = "NotInitialized"
	ApiClientNotPrepared          Kind = "ApiClientNotPrepared"
	DatabaseConnectionNotPrepared Kind = "DatabaseConnectionNotPrepared"
	DatabaseNotPrepared           Kind = "DatabaseNotPrepared"
	AlreadyRunning                Kind = "AlreadyRunning"
	Unexpected                    Kind = "Unexpected"
)

// Warning kinds. Work continues; the item is recorded for the next run.
const (
	InvalidConfigFilePath          Kind = "InvalidConfigFilePath"
	InvalidStatusFilePath          Kind = "InvalidStatusFilePath"
	InvalidLogFilePath             Kind = "InvalidLogFilePath"
	ApiInvalidParameter            Kind = "ApiInvalidParameter"
	ApiInvalidJsonFormat           Kind = "ApiInvalidJsonFormat"
	ApiCommonIdSyncFailed          Kind = "ApiCommonIdSyncFailed"
	ApiDataNotFound                Kind = "ApiDataNotFound"
	ApiUnexpected                  Kind = "ApiUnexpected"
	FormDetailApiInvalidParameter  Kind = "FormDetailApiInvalidParameter"
	FormDetailApiDataNotFound      Kind = "FormDetailApiDataNotFound"
	FormDetailApiUnexpected        Kind = "FormDetailApiUnexpected"
	DBUpdateFailed                 Kind = "DBUpdateFailed"
	ApiResponseJsonDecodeError     Kind = "ApiResponseJsonDecodeError"
	CsvReadFailed                  Kind = "CsvReadFailed"
)

// Fatal is an error that terminates the run. The wrapped cause participates
// in errors.Is/As chains but is not serialized; callers that need the cause
// preserved across runs put its message into Args.
type Fatal struct {
	Kind Kind              `json:"kind"`
	Args map[string]string `json:"args,omitempty"`

	cause error
}

// NewFatal creates a fatal error of the given kind.
func NewFatal(kind Kind) *Fatal {
	return &Fatal{Kind: kind}
}

// FatalFrom creates a fatal error wrapping cause. The cause's message is
// mirrored into Args["error"] so it survives serialization.
func FatalFrom(kind Kind, cause error) *Fatal {
	f := &Fatal{Kind: kind, cause: cause}
	if cause != nil {
		f = f.With("error", cause.Error())
	}
	return f
}

// With returns the receiver with an argument added. Args is lazily allocated
// so zero-arg errors stay cheap.
func (e *Fatal) With(key, value string) *Fatal {
	if e.Args == nil {
		e.Args = make(map[string]string)
	}
	e.Args[key] = value
	return e
}

func (e *Fatal) Error() string {
	return formatKind(string(e.Kind), e.Args)
}

func (e *Fatal) Unwrap() error {
	return e.cause
}

// Warning is a retryable per-item error. It carries no hidden cause: all
// context lives in Args so the value round-trips through JSON unchanged.
type Warning struct {
	Kind Kind              `json:"kind"`
	Args map[string]string `json:"args,omitempty"`
}

// NewWarning creates a warning of the given kind.
func NewWarning(kind Kind) *Warning {
	return &Warning{Kind: kind}
}

// With returns the receiver with an argument added.
func (w *Warning) With(key, value string) *Warning {
	if w.Args == nil {
		w.Args = make(map[string]string)
	}
	w.Args[key] = value
	return w
}

func (w *Warning) Error() string {
	return formatKind(string(w.Kind), w.Args)
}

// formatKind renders "Kind(k1=v1, k2=v2)" with keys sorted for stable output.
func formatKind(kind string, args map[string]string) string {
	if len(args) == 0 {
		return kind
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", k, args[k])
	}
	b.WriteByte(')')
	return b.String()
}

// AsFatal reports whether err is or wraps a *Fatal.
func AsFatal(err error) (*Fatal, bool) {
	var f *Fatal
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// AsWarning reports whether err is or wraps a *Warning.
func AsWarning(err error) (*Warning, bool) {
	var w *Warning
	if errors.As(err, &w) {
		return w, true
	}
	return nil, false
}

// IsFatal reports whether err carries a fatal kind. A nil error and plain
// warnings are not fatal; any unclassified error is treated as fatal so a
// bug cannot silently downgrade to a warning.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := AsWarning(err); ok {
		return false
	}
	return true
}
