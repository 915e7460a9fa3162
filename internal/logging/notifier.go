package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileNotifier records notification lines in a file that external tools
// can tail, and tracks a single current-progress line. Writes fail
// silently: notification must never interrupt the run.
//
// Line format: TIMESTAMP|LEVEL|MESSAGE
type FileNotifier struct {
	mu       sync.Mutex
	path     string
	progress string
	now      func() time.Time
}

func NewFileNotifier(path string) *FileNotifier {
	return &FileNotifier{path: path, now: time.Now}
}

// Clear removes previously recorded notifications.
func (n *FileNotifier) Clear() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	err := os.Remove(n.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Notify appends one notification line.
func (n *FileNotifier) Notify(level Level, msg string) {
	entry := fmt.Sprintf("%s|%s|%s\n", n.now().UTC().Format(time.RFC3339), level, msg)

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(n.path), 0o750); err != nil {
		return
	}
	f, err := os.OpenFile(n.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(entry)
}

// SetProgress replaces the current-progress line.
func (n *FileNotifier) SetProgress(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = msg
}

// ClearProgress drops the current-progress line.
func (n *FileNotifier) ClearProgress() {
	n.SetProgress("")
}

// Progress returns the current-progress line.
func (n *FileNotifier) Progress() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.progress
}
