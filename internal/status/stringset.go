package status

import (
	"encoding/json"
	"sort"
)

// StringSet is a set of identifiers that serializes as a sorted JSON
// array, keeping the status file diffable between runs.
type StringSet map[string]struct{}

// NewStringSet creates a set holding the given identifiers.
func NewStringSet(ids ...string) StringSet {
	s := make(StringSet, len(ids))
	s.Add(ids...)
	return s
}

// Add inserts identifiers.
func (s StringSet) Add(ids ...string) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Remove drops identifiers.
func (s StringSet) Remove(ids ...string) {
	for _, id := range ids {
		delete(s, id)
	}
}

// Has reports membership.
func (s StringSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Union returns a new set holding every member of s and other.
func (s StringSet) Union(other StringSet) StringSet {
	out := make(StringSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Clone returns an independent copy.
func (s StringSet) Clone() StringSet {
	out := make(StringSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the members in ascending order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *StringSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewStringSet(ids...)
	return nil
}
