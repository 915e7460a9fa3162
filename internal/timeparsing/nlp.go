package timeparsing

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var nlParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseNaturalLanguage parses expressions like "yesterday" or
// "last monday at 9am" relative to now.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	r, err := nlParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot parse time expression: %q", s)
	}
	return r.Time, nil
}
