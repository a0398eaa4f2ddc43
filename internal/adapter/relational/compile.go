package relational

import (
	"fmt"
	"strings"

	"github.com/datapunk/lakequery/internal/plan"
)

// compile renders a Scan, optionally wrapped in Filter/Project/Limit,
// into a single parameterized SELECT. This is the pushdown boundary: the
// federation planner only ever forwards subplans this adapter's Supports
// method accepted.
func compile(n plan.Node, dialect Dialect) (string, []interface{}, error) {
	var (
		projection []string
		predicate  plan.Expr
		limit      *int64
		offset     *int64
	)

	cur := n
walk:
	for {
		switch v := cur.(type) {
		case *plan.Limit:
			l := v.N
			o := v.Offset
			limit = &l
			offset = &o
			cur = v.Child
		case *plan.Filter:
			predicate = andExpr(predicate, v.Predicate)
			cur = v.Child
		case *plan.Project:
			for _, e := range v.Exprs {
				projection = append(projection, e.Alias)
			}
			cur = v.Child
		case *plan.Scan:
			if predicate == nil {
				predicate = v.Predicate
			} else if v.Predicate != nil {
				predicate = andExpr(predicate, v.Predicate)
			}
			if projection == nil {
				projection = v.Projection
			}
			break walk
		default:
			return "", nil, fmt.Errorf("relational adapter cannot compile subplan kind %s", cur.Kind())
		}
	}

	scan, ok := cur.(*plan.Scan)
	if !ok {
		return "", nil, fmt.Errorf("relational adapter requires a Scan at the plan leaf")
	}

	cols := "*"
	if len(projection) > 0 {
		cols = strings.Join(quoteAll(projection), ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, quote(scan.Table))

	var args []interface{}
	if predicate != nil {
		whereSQL, whereArgs, err := renderExpr(predicate, dialect, &args)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" WHERE ")
		b.WriteString(whereSQL)
		args = whereArgs
	}

	if limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *limit)
		if offset != nil && *offset > 0 {
			fmt.Fprintf(&b, " OFFSET %d", *offset)
		}
	}

	return b.String(), args, nil
}

func andExpr(a, b plan.Expr) plan.Expr {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &plan.BinOp{Op: "AND", Left: a, Right: b}
}

func quote(ident string) string { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` }

func quoteAll(idents []string) []string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = quote(id)
	}
	return out
}

// renderExpr renders an Expr tree as parameterized SQL text, appending
// its literal values to args. Only the operator subset the optimizer's
// capability-pushdown rule is allowed to push to a relational source is
// supported: comparisons, AND/OR, and +-*/.
func renderExpr(e plan.Expr, dialect Dialect, args *[]interface{}) (string, []interface{}, error) {
	switch v := e.(type) {
	case *plan.Literal:
		*args = append(*args, v.Val)
		return placeholder(dialect, len(*args)), *args, nil
	case *plan.ColumnRef:
		return quote(v.Qualified), *args, nil
	case *plan.BinOp:
		left, _, err := renderExpr(v.Left, dialect, args)
		if err != nil {
			return "", nil, err
		}
		right, _, err := renderExpr(v.Right, dialect, args)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("(%s %s %s)", left, v.Op, right), *args, nil
	default:
		return "", nil, fmt.Errorf("relational adapter cannot push down expression %T", e)
	}
}

func placeholder(dialect Dialect, n int) string {
	if dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
