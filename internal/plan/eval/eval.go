// Package eval evaluates plan.Expr trees against a row, given the schema
// that row was produced under. It is shared by every component that
// needs to apply a predicate or projection to materialized rows: the
// in-memory reference adapter and the physical Filter/Project/Aggregate
// operators.
package eval

import (
	"fmt"
	"math"

	"github.com/datapunk/lakequery/internal/builtin"
	"github.com/datapunk/lakequery/internal/plan"
)

// Row evaluates expr against row under schema, returning the scalar
// result. NULL is represented as a nil interface{} value throughout.
func Row(schema plan.Schema, row []interface{}, expr plan.Expr) (interface{}, error) {
	switch e := expr.(type) {
	case *plan.Literal:
		return e.Val, nil
	case *plan.ColumnRef:
		idx := schema.IndexOf(e.Qualified)
		if idx < 0 {
			return nil, fmt.Errorf("eval: column %q not found in schema", e.Qualified)
		}
		return row[idx], nil
	case *plan.BinOp:
		return evalBinOp(schema, row, e)
	case *plan.Call:
		return evalCall(schema, row, e)
	case *plan.Case:
		for _, w := range e.Whens {
			cond, err := Row(schema, row, w.When)
			if err != nil {
				return nil, err
			}
			if b, ok := cond.(bool); ok && b {
				return Row(schema, row, w.Then)
			}
		}
		if e.Else != nil {
			return Row(schema, row, e.Else)
		}
		return nil, nil
	case *plan.Cast:
		v, err := Row(schema, row, e.Inner)
		if err != nil {
			return nil, err
		}
		return cast(v, e.Typ.Tag)
	default:
		return nil, fmt.Errorf("eval: unsupported expression %T", expr)
	}
}

func evalBinOp(schema plan.Schema, row []interface{}, b *plan.BinOp) (interface{}, error) {
	left, err := Row(schema, row, b.Left)
	if err != nil {
		return nil, err
	}
	right, err := Row(schema, row, b.Right)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case "AND":
		lb, lok := left.(bool)
		rb, rok := right.(bool)
		return lok && rok && lb && rb, nil
	case "OR":
		lb, _ := left.(bool)
		rb, _ := right.(bool)
		return lb || rb, nil
	case "=", "!=", "<", "<=", ">", ">=":
		return compare(left, right, b.Op)
	case "+", "-", "*", "/":
		return arith(left, right, b.Op)
	default:
		return nil, fmt.Errorf("eval: unsupported operator %q", b.Op)
	}
}

func compare(left, right interface{}, op string) (interface{}, error) {
	if left == nil || right == nil {
		return false, nil // NULL comparisons are unknown; treated as false
	}
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	var cmp int
	if lok && rok {
		switch {
		case lf < rf:
			cmp = -1
		case lf > rf:
			cmp = 1
		}
	} else {
		ls, rs := fmt.Sprintf("%v", left), fmt.Sprintf("%v", right)
		switch {
		case ls < rs:
			cmp = -1
		case ls > rs:
			cmp = 1
		}
	}
	switch op {
	case "=":
		return cmp == 0, nil
	case "!=":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return nil, fmt.Errorf("eval: unreachable operator %q", op)
}

func arith(left, right interface{}, op string) (interface{}, error) {
	if left == nil || right == nil {
		return nil, nil
	}
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("eval: arithmetic on non-numeric operands")
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("eval: division by zero")
		}
		return lf / rf, nil
	}
	return nil, fmt.Errorf("eval: unreachable operator %q", op)
}

func evalCall(schema plan.Schema, row []interface{}, c *plan.Call) (interface{}, error) {
	args := make([]interface{}, len(c.Args))
	for i, a := range c.Args {
		v, err := Row(schema, row, a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch c.Fn {
	case "ABS":
		f, _ := toFloat(args[0])
		return math.Abs(f), nil
	case "COALESCE":
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	case "LOWER", "UPPER", "LENGTH", "CONCAT":
		return evalString(c.Fn, args)
	default:
		reg := builtin.Default()
		if _, ok := reg.Get(c.Fn); ok {
			return reg.Call(c.Fn, args)
		}
		return nil, fmt.Errorf("eval: unknown function %q", c.Fn)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func cast(v interface{}, tag plan.TypeTag) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch tag {
	case plan.TInt64:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("eval: cannot cast %T to int64", v)
		}
		return int64(f), nil
	case plan.TFloat64:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("eval: cannot cast %T to float64", v)
		}
		return f, nil
	case plan.TUTF8:
		return fmt.Sprintf("%v", v), nil
	default:
		return v, nil
	}
}
