// Package transform flattens nested source units into insertable rows
// by Cartesian-expanding aggregate key paths, then applies per-column
// type coercions.
package transform

import (
	"fmt"

	"github.com/jobcan-tools/jobcan-di/internal/pipeline"
)

// ErrMode selects how RecursiveGet treats access that cannot succeed.
type ErrMode int

const (
	// Strict rejects missing keys, out-of-bounds indices, key steps on
	// lists, and any step applied to a non-container.
	Strict ErrMode = iota
	// Lenient yields nil for anything Strict would reject, except a
	// key step on a list, which maps the remaining path over every
	// element instead.
	Lenient
)

// RecursiveGet resolves a key path against nested JSON-like data.
//
// An empty path returns data unchanged. Key steps descend into
// mappings, non-negative index steps into lists. An aggregate step on
// a list maps the remainder of the path over every element, producing
// a list; the aggregate step is consumed. In Lenient mode a key step
// on a list also maps over the elements, but without being consumed.
func RecursiveGet(data any, path pipeline.KeyPath, mode ErrMode) (any, error) {
	if len(path) == 0 {
		return data, nil
	}
	step, rest := path[0], path[1:]

	switch container := data.(type) {
	case map[string]any:
		if step.Kind != pipeline.StepKey {
			return reject(mode, "cannot index mapping with %s", step)
		}
		inner, ok := container[step.Key]
		if !ok {
			return reject(mode, "key %s not found", step)
		}
		return RecursiveGet(inner, rest, mode)

	case []any:
		switch step.Kind {
		case pipeline.StepIndex:
			if step.Index >= len(container) {
				return reject(mode, "index %d out of range (len %d)", step.Index, len(container))
			}
			return RecursiveGet(container[step.Index], rest, mode)
		case pipeline.StepAggregate:
			return mapOver(container, rest, mode)
		default:
			if mode == Strict {
				return nil, fmt.Errorf("cannot index list with %s", step)
			}
			// Key step on a list: mapped over, not consumed.
			return mapOver(container, path, mode)
		}

	default:
		return reject(mode, "cannot descend into %T with %s", data, step)
	}
}

func mapOver(list []any, path pipeline.KeyPath, mode ErrMode) (any, error) {
	out := make([]any, len(list))
	for i, elem := range list {
		v, err := RecursiveGet(elem, path, mode)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func reject(mode ErrMode, format string, args ...any) (any, error) {
	if mode == Lenient {
		return nil, nil
	}
	return nil, fmt.Errorf(format, args...)
}
