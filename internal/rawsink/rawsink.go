// Package rawsink archives every API response verbatim, parallel to
// the normalized database. Two modes exist: one JSON file per page, or
// one row per result element in a dedicated SQLite database.
package rawsink

import (
	"context"

	"github.com/jobcan-tools/jobcan-di/internal/jobcan"
)

// Sink receives raw response bodies as they arrive.
type Sink interface {
	// SavePage archives one paginated list page.
	SavePage(ctx context.Context, apiType jobcan.APIType, pageNo int, body []byte) error
	// SaveDetail archives one request-detail document.
	SaveDetail(ctx context.Context, formID int, requestID string, body []byte) error
	Close() error
}

// Discard is the no-op sink used when SAVE_RAW_DATA is NEVER.
type Discard struct{}

func (Discard) SavePage(context.Context, jobcan.APIType, int, []byte) error { return nil }
func (Discard) SaveDetail(context.Context, int, string, []byte) error      { return nil }
func (Discard) Close() error                                               { return nil }

// Manager holds the active sink and switches modes, closing the
// current sink cleanly before opening the next.
type Manager struct {
	current Sink
}

// NewManager starts with the given sink, or Discard when nil.
func NewManager(sink Sink) *Manager {
	if sink == nil {
		sink = Discard{}
	}
	return &Manager{current: sink}
}

// Sink returns the active sink.
func (m *Manager) Sink() Sink {
	return m.current
}

// Switch closes the active sink and installs the replacement. A nil
// replacement means Discard.
func (m *Manager) Switch(next Sink) error {
	err := m.current.Close()
	if next == nil {
		next = Discard{}
	}
	m.current = next
	return err
}

// Close shuts the active sink down and leaves Discard in place.
func (m *Manager) Close() error {
	return m.Switch(nil)
}
