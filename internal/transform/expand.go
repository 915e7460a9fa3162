package transform

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/jobcan-tools/jobcan-di/internal/pipeline"
)

// groupMember is one placeholder belonging to an aggregate group: the
// part of its path after the group's first aggregate step.
type groupMember struct {
	placeholder string
	rest        pipeline.KeyPath
}

// group collects every placeholder sharing the same prefix up to the
// first aggregate step. Groups expand in profile insertion order,
// which is observable in the output row order.
type group struct {
	key     pipeline.KeyPath
	members []groupMember
}

// ExpandNamed flattens one source unit against named parameters,
// producing one row per element of the Cartesian product over the
// profile's aggregate groups. Output ordering: group-key insertion
// order, then inner list order.
func ExpandNamed(unit pipeline.Unit, params []pipeline.NamedParam) ([]map[string]any, error) {
	base := make(map[string]any)
	var groups []group

	for _, p := range params {
		groupKey, rest, aggregate := p.Path.SplitAggregate()
		if !aggregate {
			v, err := RecursiveGet(unit, p.Path, Lenient)
			if err != nil {
				return nil, fmt.Errorf("placeholder %s: %w", p.Placeholder, err)
			}
			base[p.Placeholder] = v
			continue
		}
		idx := -1
		for i := range groups {
			if groups[i].key.Equal(groupKey) {
				idx = i
				break
			}
		}
		if idx < 0 {
			groups = append(groups, group{key: groupKey})
			idx = len(groups) - 1
		}
		groups[idx].members = append(groups[idx].members, groupMember{placeholder: p.Placeholder, rest: rest})
	}

	rows := []map[string]any{base}
	for _, g := range groups {
		expanded, err := expandGroup(unit, g, rows)
		if err != nil {
			return nil, err
		}
		rows = expanded
	}
	return rows, nil
}

// expandGroup crosses the current row set with one aggregate group.
// A nil group value keeps the current rows, with each of the group's
// placeholders set to nil. A non-list value is an error.
func expandGroup(unit pipeline.Unit, g group, rows []map[string]any) ([]map[string]any, error) {
	inner, err := RecursiveGet(unit, g.key, Lenient)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", g.key, err)
	}
	if inner == nil {
		for _, row := range rows {
			for _, m := range g.members {
				row[m.placeholder] = nil
			}
		}
		return rows, nil
	}
	list, ok := inner.([]any)
	if !ok {
		return nil, fmt.Errorf("group %s: expected a list, got %T", g.key, inner)
	}

	nested := false
	for _, m := range g.members {
		if m.rest.HasAggregate() {
			nested = true
			break
		}
	}

	var out []map[string]any
	for _, row := range rows {
		for _, elem := range list {
			if !nested {
				combined := cloneRow(row)
				for _, m := range g.members {
					v, err := RecursiveGet(elem, m.rest, Lenient)
					if err != nil {
						return nil, fmt.Errorf("placeholder %s: %w", m.placeholder, err)
					}
					combined[m.placeholder] = v
				}
				out = append(out, combined)
				continue
			}

			// A member's rest still aggregates: recursively expand the
			// element against the group's members and cross every
			// product with the current row.
			subParams := make([]pipeline.NamedParam, len(g.members))
			for i, m := range g.members {
				subParams[i] = pipeline.NamedParam{Placeholder: m.placeholder, Path: m.rest}
			}
			subRows, err := ExpandNamed(elem, subParams)
			if err != nil {
				return nil, err
			}
			for _, sub := range subRows {
				combined := cloneRow(row)
				for k, v := range sub {
					combined[k] = v
				}
				out = append(out, combined)
			}
		}
	}
	return out, nil
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// ExpandPositional flattens one unit against positional parameters.
// Internally positions become string-keyed placeholders; the rows
// re-serialize to tuples by sorting the keys numerically.
func ExpandPositional(unit pipeline.Unit, params []pipeline.KeyPath) ([][]any, error) {
	named := make([]pipeline.NamedParam, len(params))
	for i, p := range params {
		named[i] = pipeline.NamedParam{Placeholder: strconv.Itoa(i), Path: p}
	}
	rows, err := ExpandNamed(unit, named)
	if err != nil {
		return nil, err
	}

	out := make([][]any, len(rows))
	for i, row := range rows {
		keys := make([]int, 0, len(row))
		for k := range row {
			n, err := strconv.Atoi(k)
			if err != nil {
				return nil, fmt.Errorf("positional row key %q is not numeric", k)
			}
			keys = append(keys, n)
		}
		sort.Ints(keys)
		tuple := make([]any, len(keys))
		for j, k := range keys {
			tuple[j] = row[strconv.Itoa(k)]
		}
		out[i] = tuple
	}
	return out, nil
}
