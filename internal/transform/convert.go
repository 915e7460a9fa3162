package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jobcan-tools/jobcan-di/internal/pipeline"
)

// Convert coerces one bound value. nil passes through every
// conversion: a missing field stays NULL in the database.
func Convert(value any, conv pipeline.Conversion) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch conv {
	case pipeline.ToInt:
		return toInt(value)
	case pipeline.ToFloat:
		return toFloat(value)
	case pipeline.ToString:
		return toString(value), nil
	case pipeline.ToBool:
		return toBool(value)
	}
	return nil, fmt.Errorf("unknown conversion: %q", conv)
}

func toInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			// Numeric strings with a fraction still convert, truncated.
			f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if ferr != nil {
				return nil, fmt.Errorf("cannot convert %q to int", v)
			}
			return int64(f), nil
		}
		return n, nil
	}
	return nil, fmt.Errorf("cannot convert %T to int", value)
}

func toFloat(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to float", v)
		}
		return f, nil
	}
	return nil, fmt.Errorf("cannot convert %T to float", value)
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return fmt.Sprintf("%v", value)
}

func toBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off", "":
			return false, nil
		}
		return nil, fmt.Errorf("cannot convert %q to bool", v)
	}
	return nil, fmt.Errorf("cannot convert %T to bool", value)
}
