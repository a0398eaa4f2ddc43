package builtin

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// defaultFunctions returns the scalar functions every query should have
// available regardless of which source produced its rows, condensed
// from the teacher's pkg/builtin/{math,string,date}_functions.go — one
// representative handful per category rather than porting the full
// ~100-function surface, since internal/plan/eval's evalCall already covers
// the handful the optimizer's constant-folding rule exercises directly
// (ABS, COALESCE, LOWER, UPPER, LENGTH, CONCAT); this registry is the
// escape hatch for everything else a query might name.
func defaultFunctions() []*Info {
	return []*Info{
		{Name: "SQRT", Category: "math", Handler: mathUnary(math.Sqrt)},
		{Name: "CEIL", Category: "math", Handler: mathUnary(math.Ceil)},
		{Name: "FLOOR", Category: "math", Handler: mathUnary(math.Floor)},
		{Name: "POW", Category: "math", Handler: mathPow},
		{Name: "MOD", Category: "math", Handler: mathMod},
		{Name: "SIGN", Category: "math", Handler: mathSign},

		{Name: "TRIM", Category: "string", Handler: stringUnary(strings.TrimSpace)},
		{Name: "LTRIM", Category: "string", Handler: stringUnary(func(s string) string { return strings.TrimLeft(s, " ") })},
		{Name: "RTRIM", Category: "string", Handler: stringUnary(func(s string) string { return strings.TrimRight(s, " ") })},
		{Name: "REVERSE", Category: "string", Handler: stringUnary(reverseString)},
		{Name: "REPLACE", Category: "string", Handler: stringReplace},
		{Name: "STARTS_WITH", Category: "string", Handler: stringPredicate(strings.HasPrefix)},
		{Name: "ENDS_WITH", Category: "string", Handler: stringPredicate(strings.HasSuffix)},
		{Name: "CONTAINS", Category: "string", Handler: stringPredicate(strings.Contains)},

		{Name: "YEAR", Category: "date", Handler: dateField(func(t time.Time) interface{} { return int64(t.Year()) })},
		{Name: "MONTH", Category: "date", Handler: dateField(func(t time.Time) interface{} { return int64(t.Month()) })},
		{Name: "DAY", Category: "date", Handler: dateField(func(t time.Time) interface{} { return int64(t.Day()) })},
		{Name: "DATE_TRUNC", Category: "date", Handler: dateTrunc},
	}
}

func toFloat64(arg interface{}) (float64, error) {
	switch v := arg.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("builtin: expected numeric argument, got %T", arg)
	}
}

func mathUnary(fn func(float64) float64) Handle {
	return func(args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("builtin: expected 1 argument, got %d", len(args))
		}
		f, err := toFloat64(args[0])
		if err != nil {
			return nil, err
		}
		return fn(f), nil
	}
}

func mathPow(args []interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("builtin: POW expects 2 arguments, got %d", len(args))
	}
	base, err := toFloat64(args[0])
	if err != nil {
		return nil, err
	}
	exp, err := toFloat64(args[1])
	if err != nil {
		return nil, err
	}
	return math.Pow(base, exp), nil
}

func mathMod(args []interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("builtin: MOD expects 2 arguments, got %d", len(args))
	}
	a, err := toFloat64(args[0])
	if err != nil {
		return nil, err
	}
	b, err := toFloat64(args[1])
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, fmt.Errorf("builtin: MOD by zero")
	}
	return math.Mod(a, b), nil
}

func mathSign(args []interface{}) (interface{}, error) {
	f, err := toFloat64argN(args, 0)
	if err != nil {
		return nil, err
	}
	switch {
	case f > 0:
		return int64(1), nil
	case f < 0:
		return int64(-1), nil
	default:
		return int64(0), nil
	}
}

func toFloat64argN(args []interface{}, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("builtin: missing argument %d", i)
	}
	return toFloat64(args[i])
}

func toStringArg(arg interface{}) string {
	if s, ok := arg.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", arg)
}

func stringUnary(fn func(string) string) Handle {
	return func(args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("builtin: expected 1 argument, got %d", len(args))
		}
		return fn(toStringArg(args[0])), nil
	}
}

func stringPredicate(fn func(s, sub string) bool) Handle {
	return func(args []interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("builtin: expected 2 arguments, got %d", len(args))
		}
		return fn(toStringArg(args[0]), toStringArg(args[1])), nil
	}
}

func stringReplace(args []interface{}) (interface{}, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("builtin: REPLACE expects 3 arguments, got %d", len(args))
	}
	return strings.ReplaceAll(toStringArg(args[0]), toStringArg(args[1]), toStringArg(args[2])), nil
}

func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

func toTimeArg(arg interface{}) (time.Time, error) {
	switch v := arg.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(time.RFC3339, v)
	case int64:
		return time.Unix(v, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("builtin: cannot interpret %T as a time", arg)
	}
}

func dateField(extract func(time.Time) interface{}) Handle {
	return func(args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("builtin: expected 1 argument, got %d", len(args))
		}
		t, err := toTimeArg(args[0])
		if err != nil {
			return nil, err
		}
		return extract(t), nil
	}
}

func dateTrunc(args []interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("builtin: DATE_TRUNC expects (unit, timestamp), got %d arguments", len(args))
	}
	unit := toStringArg(args[0])
	t, err := toTimeArg(args[1])
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(unit) {
	case "second":
		return t.Truncate(time.Second), nil
	case "minute":
		return t.Truncate(time.Minute), nil
	case "hour":
		return t.Truncate(time.Hour), nil
	case "day":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()), nil
	default:
		return nil, fmt.Errorf("builtin: DATE_TRUNC unsupported unit %q", unit)
	}
}
