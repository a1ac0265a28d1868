package ccl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Value is a parsed operand literal. Duration and size shorthands are
// normalized at parse time: durations to seconds, sizes to bytes, so that
// they take part in plain numeric comparisons.
type Value struct {
	raw any
}

var (
	durationPattern = regexp.MustCompile(`^(\d+)(s|m|h|d|w)$`)
	sizePattern     = regexp.MustCompile(`^(\d+)(KB|MB|GB|TB)$`)
)

var durationSeconds = map[string]int64{
	"s": 1,
	"m": 60,
	"h": 3600,
	"d": 86400,
	"w": 604800,
}

var sizeBytes = map[string]int64{
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
}

// ParseValue turns an operand literal into a typed Value. Quoted text is a
// string, true/false are booleans, numbers are int or float, 90d-style
// shorthand becomes a number, anything else is a bare string.
func ParseValue(literal string) (Value, error) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return Value{}, fmt.Errorf("empty operand")
	}

	if len(literal) >= 2 {
		if (literal[0] == '"' && literal[len(literal)-1] == '"') ||
			(literal[0] == '\'' && literal[len(literal)-1] == '\'') {
			return Value{raw: literal[1 : len(literal)-1]}, nil
		}
	}

	switch literal {
	case "true":
		return Value{raw: true}, nil
	case "false":
		return Value{raw: false}, nil
	}

	if m := durationPattern.FindStringSubmatch(literal); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid duration %q: %w", literal, err)
		}
		return Value{raw: n * durationSeconds[m[2]]}, nil
	}

	if m := sizePattern.FindStringSubmatch(literal); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid size %q: %w", literal, err)
		}
		return Value{raw: n * sizeBytes[m[2]]}, nil
	}

	if n, err := strconv.ParseInt(literal, 10, 64); err == nil {
		return Value{raw: n}, nil
	}

	if f, err := strconv.ParseFloat(literal, 64); err == nil {
		return Value{raw: f}, nil
	}

	return Value{raw: literal}, nil
}

// Raw returns the underlying literal value.
func (v Value) Raw() any { return v.raw }

// Float returns the value as a float64 when it is numeric.
func (v Value) Float() (float64, bool) {
	return toFloat(v.raw)
}

// Bool returns the value as a bool when it is boolean.
func (v Value) Bool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok
}

// String renders the value the way it takes part in string comparisons.
func (v Value) String() string {
	return canonical(v.raw)
}

// toFloat coerces the numeric shapes a decoded property bag can contain.
// Numeric text coerces too, matching the loose typing of scanner payloads.
func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func canonical(value any) string {
	switch s := value.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}
