package timeparsing

import "time"

// StampLayout is the timestamp layout used by the API and in persisted
// state (applied_after, form_api_last_access, temp-store last_access).
const StampLayout = "2006/01/02 15:04:05"

// FormatStamp renders t in the API layout.
func FormatStamp(t time.Time) string {
	return t.Format(StampLayout)
}

// ParseStamp parses a timestamp in the API layout.
func ParseStamp(s string) (time.Time, error) {
	return time.ParseInLocation(StampLayout, s, time.Local)
}

// LaterStamp returns the later of two stamps. The layout's fixed-width
// fields sort chronologically, so plain string comparison is enough;
// an empty stamp always loses.
func LaterStamp(a, b string) string {
	if a >= b {
		return a
	}
	return b
}
