// Package pipeline models a declarative Extract-Transform-Load
// pipeline: a database definition, named data sources, and per-table
// insertion profiles, parsed from a TOML document.
package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// StepKind discriminates the three path step variants.
type StepKind int

const (
	// StepKey descends into a mapping by key.
	StepKey StepKind = iota
	// StepIndex descends into a list by position.
	StepIndex
	// StepAggregate iterates the list at this depth, producing one
	// row per element. Spelled -1 in the TOML document.
	StepAggregate
)

// Step is one step of a key path.
type Step struct {
	Kind  StepKind
	Key   string
	Index int
}

// Key creates a mapping-key step.
func Key(k string) Step { return Step{Kind: StepKey, Key: k} }

// Index creates a list-index step.
func Index(i int) Step { return Step{Kind: StepIndex, Index: i} }

// Aggregate creates an aggregate-all step.
func Aggregate() Step { return Step{Kind: StepAggregate} }

func (s Step) String() string {
	switch s.Kind {
	case StepKey:
		return strconv.Quote(s.Key)
	case StepIndex:
		return strconv.Itoa(s.Index)
	default:
		return "-1"
	}
}

// KeyPath addresses a value inside a nested JSON-like structure.
type KeyPath []Step

func (p KeyPath) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// HasAggregate reports whether any step is an aggregate.
func (p KeyPath) HasAggregate() bool {
	for _, s := range p {
		if s.Kind == StepAggregate {
			return true
		}
	}
	return false
}

// SplitAggregate splits the path at its first aggregate step: the
// prefix before it (the group key) and the remainder after it. ok is
// false when the path has no aggregate step.
func (p KeyPath) SplitAggregate() (group, rest KeyPath, ok bool) {
	for i, s := range p {
		if s.Kind == StepAggregate {
			return p[:i], p[i+1:], true
		}
	}
	return nil, nil, false
}

// Equal reports step-wise equality.
func (p KeyPath) Equal(other KeyPath) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// ParseKeyPath converts raw TOML values (strings and integers) into a
// KeyPath. A negative integer is the aggregate sentinel.
func ParseKeyPath(raw []any) (KeyPath, error) {
	path := make(KeyPath, 0, len(raw))
	for i, v := range raw {
		switch val := v.(type) {
		case string:
			path = append(path, Key(val))
		case int64:
			path = append(path, stepFromInt(int(val)))
		case int:
			path = append(path, stepFromInt(val))
		case float64:
			if val != float64(int(val)) {
				return nil, fmt.Errorf("step %d: %v is not an integer index", i, val)
			}
			path = append(path, stepFromInt(int(val)))
		default:
			return nil, fmt.Errorf("step %d: %T is neither a key nor an index", i, v)
		}
	}
	return path, nil
}

func stepFromInt(i int) Step {
	if i < 0 {
		return Aggregate()
	}
	return Index(i)
}
