package transform

import (
	"fmt"
	"strconv"

	"github.com/jobcan-tools/jobcan-di/internal/pipeline"
)

// Row is one flattened, converted output row. Exactly one of Named or
// Values is set, matching the profile variant.
type Row struct {
	Named  map[string]any
	Values []any
}

// Apply runs the full transform for one profile over extracted units:
// Cartesian expansion per unit, then type conversions. Output order
// follows source-unit order, then expansion order.
func Apply(profile pipeline.InsertionProfile, units []pipeline.Unit) ([]Row, error) {
	switch p := profile.(type) {
	case *pipeline.NamedProfile:
		return applyNamed(p, units)
	case *pipeline.PositionalProfile:
		return applyPositional(p, units)
	}
	return nil, fmt.Errorf("unsupported profile type %T", profile)
}

func applyNamed(p *pipeline.NamedProfile, units []pipeline.Unit) ([]Row, error) {
	var out []Row
	for i, unit := range units {
		rows, err := ExpandNamed(unit, p.Parameters)
		if err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
		for _, row := range rows {
			for placeholder, value := range row {
				conv, ok := p.ConversionFor(placeholder)
				if !ok {
					continue
				}
				converted, err := Convert(value, conv)
				if err != nil {
					return nil, fmt.Errorf("unit %d, placeholder %s: %w", i, placeholder, err)
				}
				row[placeholder] = converted
			}
			out = append(out, Row{Named: row})
		}
	}
	return out, nil
}

func applyPositional(p *pipeline.PositionalProfile, units []pipeline.Unit) ([]Row, error) {
	var out []Row
	for i, unit := range units {
		tuples, err := ExpandPositional(unit, p.Parameters)
		if err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
		for _, tuple := range tuples {
			for pos := range tuple {
				conv, ok := p.ConversionFor(strconv.Itoa(pos))
				if !ok {
					continue
				}
				converted, err := Convert(tuple[pos], conv)
				if err != nil {
					return nil, fmt.Errorf("unit %d, parameter %d: %w", i, pos, err)
				}
				tuple[pos] = converted
			}
			out = append(out, Row{Values: tuple})
		}
	}
	return out, nil
}
