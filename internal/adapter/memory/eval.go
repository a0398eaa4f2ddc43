package memory

import (
	"fmt"

	"github.com/datapunk/lakequery/internal/plan"
	"github.com/datapunk/lakequery/internal/plan/eval"
)

func errTableNotFound(name string) error {
	return fmt.Errorf("table %q not found", name)
}

func errUnsupportedSubplan(n plan.Node) error {
	return fmt.Errorf("memory adapter does not support subplan kind %s", n.Kind())
}

func projectRows(schema plan.Schema, rows [][]interface{}, cols []string) (plan.Schema, [][]interface{}) {
	idx := make([]int, len(cols))
	outSchema := make(plan.Schema, len(cols))
	for i, c := range cols {
		pos := schema.IndexOf(c)
		idx[i] = pos
		if pos >= 0 {
			outSchema[i] = schema[pos]
		}
	}
	out := make([][]interface{}, len(rows))
	for r, row := range rows {
		newRow := make([]interface{}, len(cols))
		for i, pos := range idx {
			if pos >= 0 {
				newRow[i] = row[pos]
			}
		}
		out[r] = newRow
	}
	return outSchema, out
}

func filterRows(schema plan.Schema, rows [][]interface{}, predicate plan.Expr) ([][]interface{}, error) {
	out := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		v, err := eval.Row(schema, row, predicate)
		if err != nil {
			return nil, err
		}
		if b, ok := v.(bool); ok && b {
			out = append(out, row)
		}
	}
	return out, nil
}
