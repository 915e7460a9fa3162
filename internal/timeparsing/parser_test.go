package timeparsing

import (
	"testing"
	"time"
)

func TestParseCompactDuration(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "+6h adds 6 hours", input: "+6h", want: time.Date(2026, 6, 15, 18, 0, 0, 0, time.UTC)},
		{name: "+1d adds 1 day", input: "+1d", want: time.Date(2026, 6, 16, 12, 0, 0, 0, time.UTC)},
		{name: "+2w adds 2 weeks", input: "+2w", want: time.Date(2026, 6, 29, 12, 0, 0, 0, time.UTC)},
		{name: "+3m adds 3 months", input: "+3m", want: time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)},
		{name: "+1y adds 1 year", input: "+1y", want: time.Date(2027, 6, 15, 12, 0, 0, 0, time.UTC)},
		{name: "-1d subtracts 1 day", input: "-1d", want: time.Date(2026, 6, 14, 12, 0, 0, 0, time.UTC)},
		{name: "-6h subtracts 6 hours", input: "-6h", want: time.Date(2026, 6, 15, 6, 0, 0, 0, time.UTC)},
		{name: "no sign means positive", input: "3m", want: time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)},
		{name: "multi-digit amount", input: "+365d", want: time.Date(2027, 6, 15, 12, 0, 0, 0, time.UTC)},

		{name: "sign at end is invalid", input: "6h+", wantErr: true},
		{name: "double sign is invalid", input: "++1d", wantErr: true},
		{name: "unknown unit is invalid", input: "1x", wantErr: true},
		{name: "empty string is invalid", input: "", wantErr: true},
		{name: "bare number is invalid", input: "6", wantErr: true},
		{name: "spaces are invalid", input: "+ 6h", wantErr: true},
		{name: "date is not a compact duration", input: "2026/01/15", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCompactDuration(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCompactDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseCompactDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsCompactDuration(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"+6h", true},
		{"-1d", true},
		{"3m", true},
		{"", false},
		{"yesterday", false},
		{"2026/01/15", false},
		{"1x", false},
	}
	for _, tt := range tests {
		if got := IsCompactDuration(tt.input); got != tt.want {
			t.Errorf("IsCompactDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseExpression_Layers(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"compact duration", "-1d", time.Date(2026, 6, 14, 12, 0, 0, 0, time.UTC)},
		{"api layout", "2026/01/15 09:30:00", time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)},
		{"date only slash", "2026/01/15", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"date only dash", "2026-01-15", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExpression(tt.input, now)
			if err != nil {
				t.Fatalf("ParseExpression(%q) error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseExpression(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseExpression_NaturalLanguage(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.Local) // Thursday

	got, err := ParseExpression("yesterday", now)
	if err != nil {
		t.Fatalf("ParseExpression(\"yesterday\") error: %v", err)
	}
	if got.Day() != 14 || got.Month() != time.January {
		t.Errorf("yesterday = %v, want Jan 14", got)
	}

	if _, err := ParseExpression("garbage input here", now); err == nil {
		t.Error("ParseExpression(garbage) error = nil, want error")
	}
}

func TestParseNaturalLanguage(t *testing.T) {
	now := time.Date(2026, 1, 14, 10, 0, 0, 0, time.Local) // Wednesday

	tests := []struct {
		input   string
		wantDay int
	}{
		{"tomorrow", 15},
		{"yesterday", 13},
	}
	for _, tt := range tests {
		got, err := ParseNaturalLanguage(tt.input, now)
		if err != nil {
			t.Fatalf("ParseNaturalLanguage(%q) error: %v", tt.input, err)
		}
		if got.Day() != tt.wantDay {
			t.Errorf("ParseNaturalLanguage(%q) day = %d, want %d", tt.input, got.Day(), tt.wantDay)
		}
	}
}

func TestStampRoundTrip(t *testing.T) {
	in := "2026/03/14 09:26:53"
	parsed, err := ParseStamp(in)
	if err != nil {
		t.Fatalf("ParseStamp(%q) error: %v", in, err)
	}
	if got := FormatStamp(parsed); got != in {
		t.Errorf("FormatStamp(ParseStamp(%q)) = %q", in, got)
	}
}

func TestLaterStamp(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"2026/03/14 09:00:00", "2026/03/14 10:00:00", "2026/03/14 10:00:00"},
		{"2026/03/15 00:00:00", "2026/03/14 23:59:59", "2026/03/15 00:00:00"},
		{"", "2026/01/01 00:00:00", "2026/01/01 00:00:00"},
		{"2026/01/01 00:00:00", "", "2026/01/01 00:00:00"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := LaterStamp(tt.a, tt.b); got != tt.want {
			t.Errorf("LaterStamp(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
