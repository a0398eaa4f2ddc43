package eval

import (
	"fmt"
	"strings"
)

func evalString(fn string, args []interface{}) (interface{}, error) {
	switch fn {
	case "LOWER":
		return strings.ToLower(asString(args[0])), nil
	case "UPPER":
		return strings.ToUpper(asString(args[0])), nil
	case "LENGTH":
		return int64(len(asString(args[0]))), nil
	case "CONCAT":
		var b strings.Builder
		for _, a := range args {
			b.WriteString(asString(a))
		}
		return b.String(), nil
	default:
		return nil, fmt.Errorf("eval: unknown string function %q", fn)
	}
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
