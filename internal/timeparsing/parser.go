// Package timeparsing resolves the time expressions accepted on the
// command line (--applied-after and friends) into concrete timestamps.
//
// Parsing is layered:
//  1. Compact duration (+6h, -1d, +2w) relative to now
//  2. Absolute timestamp (API layout, date-only, RFC 3339)
//  3. Natural language (yesterday, last monday)
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// compactRe matches compact duration patterns: [+-]?(\d+)([hdwmy])
var compactRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseCompactDuration parses compact duration syntax relative to now.
//
// Units: h = hours, d = days, w = weeks, m = months, y = years.
// No sign means positive: "-1d" is yesterday, "3m" three months ahead.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	m := compactRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	amount, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", m[2])
	}
	if m[1] == "-" {
		amount = -amount
	}

	switch m[3] {
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, amount), nil
	case "w":
		return now.AddDate(0, 0, amount*7), nil
	case "m":
		return now.AddDate(0, amount, 0), nil
	case "y":
		return now.AddDate(amount, 0, 0), nil
	}
	return now, nil
}

// IsCompactDuration reports whether s matches compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactRe.MatchString(s)
}

// absoluteLayouts are tried in order for absolute expressions.
var absoluteLayouts = []string{
	StampLayout,
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
}

// ParseExpression resolves any accepted expression to a timestamp,
// trying the layers in order.
func ParseExpression(s string, now time.Time) (time.Time, error) {
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	return ParseNaturalLanguage(s, now)
}
