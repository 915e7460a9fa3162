package loader

import "regexp"

// matchName reports whether a source name matches a regex reference.
// The pattern is anchored: a partial match is not a reference.
func matchName(pattern, name string) bool {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return false
	}
	return re.MatchString(name)
}
