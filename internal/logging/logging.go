// Package logging writes the application log file and mirrors selected
// lines to the console and the notifier. The log file rotates via
// lumberjack; LOG_ENCODING re-encodes lines for tools that expect a
// legacy codepage.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

const timestampLayout = "2006/01/02 15:04:05"

// Logger appends timestamped lines to the log file. Safe for use from
// multiple goroutines.
type Logger struct {
	mu      sync.Mutex
	file    io.WriteCloser
	enc     *encoding.Encoder
	console bool
	notify  func(Level, string)
	now     func() time.Time
}

// Open prepares the application log at path. truncate clears any
// previous content first (LOG_INIT = ALWAYS_ON_STARTUP). A file that
// cannot be prepared is reported as an InvalidLogFilePath warning and
// the logger degrades to console-only output.
func Open(path string, truncate bool, encodingName string, console bool) (*Logger, *dierr.Warning) {
	l := &Logger{console: console, now: time.Now, enc: lookupEncoder(encodingName)}

	if path == "" {
		return l, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return l, dierr.NewWarning(dierr.InvalidLogFilePath).
			With("path", path).
			With("error", err.Error())
	}
	if truncate {
		if err := os.Truncate(path, 0); err != nil && !os.IsNotExist(err) {
			return l, dierr.NewWarning(dierr.InvalidLogFilePath).
				With("path", path).
				With("error", err.Error())
		}
	}
	l.file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	return l, nil
}

// lookupEncoder resolves a LOG_ENCODING/JSON_ENCODING name to an
// encoder. UTF-8 and unknown names need no transformation.
func lookupEncoder(name string) *encoding.Encoder {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil
	}
	e, err := ianaindex.IANA.Encoding(name)
	if err != nil || e == nil {
		return nil
	}
	return e.NewEncoder()
}

// SetNotifier installs the callback that receives lines passing the
// notification gate. The gate itself (level filtering) belongs to the
// caller.
func (l *Logger) SetNotifier(fn func(Level, string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = fn
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s [%s] %s\n", l.now().Format(timestampLayout), level, msg)

	l.mu.Lock()
	if l.file != nil {
		out := []byte(line)
		if l.enc != nil {
			if encoded, err := l.enc.Bytes(out); err == nil {
				out = encoded
			}
		}
		// Logging must never interrupt the run.
		_, _ = l.file.Write(out)
	}
	if l.console {
		fmt.Fprint(os.Stderr, line)
	}
	notify := l.notify
	l.mu.Unlock()

	if notify != nil {
		notify(level, msg)
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

func (l *Logger) Warningf(format string, args ...interface{}) {
	l.logf(LevelWarning, format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

// Warning logs a retryable warning with its kind and arguments.
func (l *Logger) Warning(w *dierr.Warning) {
	if w == nil {
		return
	}
	l.logf(LevelWarning, "%s", w.Error())
}

// Fatal logs a fatal error with its kind and arguments.
func (l *Logger) Fatal(f *dierr.Fatal) {
	if f == nil {
		return
	}
	l.logf(LevelError, "%s", f.Error())
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
