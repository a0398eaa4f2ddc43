// Package parser converts SQL text into an internal/plan node tree via
// github.com/pingcap/tidb/pkg/parser, the same TiDB-dialect parser the
// teacher's pkg/parser.SQLAdapter wraps. Unlike the teacher, which
// converts the TiDB AST into its own intermediate SQLStatement model and
// defers plan construction to a separate layer, this package converts
// directly into plan.Node — this engine has no query-rewrite stage that
// operates on a pre-plan statement model, so the extra hop would be
// unused structure.
//
// Only a single SELECT statement is supported (scan/filter/project/join/
// group-by/order-by/limit); DDL, DML, and multi-statement scripts are out
// of scope (spec.md §1 non-goals: "does not implement a SQL dialect in
// full").
package parser

import (
	"fmt"
	"strings"

	tidbparser "github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/datapunk/lakequery/internal/plan"
	"github.com/datapunk/lakequery/internal/queryerr"
)

// Parser wraps a TiDB SQL parser instance. Parser instances are not safe
// for concurrent use by multiple goroutines, matching the underlying
// tidbparser.Parser; callers that parse concurrently should use one
// Parser per goroutine or serialize access.
type Parser struct {
	inner *tidbparser.Parser
}

// New creates a Parser.
func New() *Parser {
	return &Parser{inner: tidbparser.New()}
}

// Parse converts a single SELECT statement in sql into a plan.Node tree.
func (p *Parser) Parse(sql string) (plan.Node, error) {
	stmts, _, err := p.inner.Parse(sql, "", "")
	if err != nil {
		return nil, queryerr.New(queryerr.KindParse, "parse", "syntax_error", err.Error(),
			queryerr.WithContext(map[string]interface{}{"sql": sql}))
	}
	if len(stmts) == 0 {
		return nil, queryerr.New(queryerr.KindParse, "parse", "empty_statement", "no statements found")
	}
	if len(stmts) > 1 {
		return nil, queryerr.New(queryerr.KindParse, "parse", "multi_statement", "only a single statement is supported")
	}

	sel, ok := stmts[0].(*ast.SelectStmt)
	if !ok {
		return nil, queryerr.New(queryerr.KindParse, "parse", "unsupported_statement",
			fmt.Sprintf("unsupported statement type %T; only SELECT is supported", stmts[0]))
	}
	return convertSelect(sel)
}

func convertSelect(stmt *ast.SelectStmt) (plan.Node, error) {
	var node plan.Node
	var fromSource string

	if stmt.From != nil && stmt.From.TableRefs != nil {
		n, source, err := convertTableRefs(stmt.From.TableRefs)
		if err != nil {
			return nil, err
		}
		node = n
		fromSource = source
	} else {
		return nil, queryerr.New(queryerr.KindParse, "parse", "missing_from", "SELECT without FROM is not supported")
	}

	if stmt.Where != nil {
		predicate, err := convertExpr(stmt.Where)
		if err != nil {
			return nil, err
		}
		node = &plan.Filter{Predicate: predicate, Child: node}
	}

	if stmt.GroupBy != nil || hasAggregate(stmt) {
		agg, err := convertAggregate(stmt, node)
		if err != nil {
			return nil, err
		}
		node = agg
	}

	if stmt.Having != nil {
		predicate, err := convertExpr(stmt.Having.Expr)
		if err != nil {
			return nil, err
		}
		node = &plan.Filter{Predicate: predicate, Child: node}
	}

	if stmt.Fields != nil && !isStarOnly(stmt.Fields) {
		proj, err := convertProjection(stmt.Fields, node)
		if err != nil {
			return nil, err
		}
		node = proj
	}

	if stmt.OrderBy != nil {
		sort, err := convertOrderBy(stmt.OrderBy, node)
		if err != nil {
			return nil, err
		}
		node = sort
	}

	if stmt.Limit != nil {
		node = convertLimit(stmt.Limit, node)
	}

	_ = fromSource
	return node, nil
}

func isStarOnly(fields *ast.FieldList) bool {
	return len(fields.Fields) == 1 && fields.Fields[0].WildCard != nil
}

func convertTableRefs(refs *ast.Join) (plan.Node, string, error) {
	if refs.Right == nil {
		return convertResultSetNode(refs.Left)
	}

	left, source, err := convertResultSetNode(refs.Left)
	if err != nil {
		return nil, "", err
	}
	right, _, err := convertResultSetNode(refs.Right)
	if err != nil {
		return nil, "", err
	}

	// CrossJoin has no ON condition and maps onto JoinInner; the absence
	// of a Condition is what distinguishes a cross product at execution
	// time.
	kind := plan.JoinInner
	switch refs.Tp {
	case ast.LeftJoin:
		kind = plan.JoinLeft
	case ast.RightJoin:
		kind = plan.JoinRight
	}

	var cond plan.Expr
	if refs.On != nil && refs.On.Expr != nil {
		c, err := convertExpr(refs.On.Expr)
		if err != nil {
			return nil, "", err
		}
		cond = c
	}

	return &plan.Join{JoinKind: kind, Condition: cond, Left: left, Right: right}, source, nil
}

func convertResultSetNode(node ast.ResultSetNode) (plan.Node, string, error) {
	switch n := node.(type) {
	case *ast.Join:
		return convertTableRefs(n)
	case *ast.TableSource:
		switch src := n.Source.(type) {
		case *ast.TableName:
			name := qualifiedTableName(src)
			return &plan.Scan{Table: name}, name, nil
		case *ast.SelectStmt:
			sub, err := convertSelect(src)
			if err != nil {
				return nil, "", err
			}
			return sub, n.AsName.String(), nil
		default:
			return nil, "", queryerr.New(queryerr.KindParse, "parse", "unsupported_table_source",
				fmt.Sprintf("unsupported table source %T", src))
		}
	default:
		return nil, "", queryerr.New(queryerr.KindParse, "parse", "unsupported_from",
			fmt.Sprintf("unsupported FROM clause node %T", node))
	}
}

func qualifiedTableName(t *ast.TableName) string {
	if t.Schema.String() != "" {
		return t.Schema.String() + "." + t.Name.String()
	}
	return t.Name.String()
}

func convertProjection(fields *ast.FieldList, child plan.Node) (plan.Node, error) {
	exprs := make([]plan.NamedExpr, 0, len(fields.Fields))
	for _, f := range fields.Fields {
		if f.WildCard != nil {
			continue
		}
		e, err := convertExpr(f.Expr)
		if err != nil {
			return nil, err
		}
		alias := f.AsName.String()
		if alias == "" {
			if col, ok := f.Expr.(*ast.ColumnNameExpr); ok {
				alias = col.Name.Name.String()
			}
		}
		exprs = append(exprs, plan.NamedExpr{Expr: e, Alias: alias})
	}
	return &plan.Project{Exprs: exprs, Child: child}, nil
}

func hasAggregate(stmt *ast.SelectStmt) bool {
	found := false
	if stmt.Fields == nil {
		return false
	}
	for _, f := range stmt.Fields.Fields {
		ast.Walk(aggFinderVisitor{found: &found}, f.Expr)
	}
	return found
}

type aggFinderVisitor struct{ found *bool }

func (v aggFinderVisitor) Enter(n ast.Node) (ast.Node, bool) {
	if _, ok := n.(*ast.AggregateFuncExpr); ok {
		*v.found = true
		return n, true
	}
	return n, false
}
func (v aggFinderVisitor) Leave(n ast.Node) (ast.Node, bool) { return n, true }

func convertAggregate(stmt *ast.SelectStmt, child plan.Node) (*plan.Aggregate, error) {
	var groupKeys []plan.Expr
	if stmt.GroupBy != nil {
		for _, item := range stmt.GroupBy.Items {
			e, err := convertExpr(item.Expr)
			if err != nil {
				return nil, err
			}
			groupKeys = append(groupKeys, e)
		}
	}

	var aggs []plan.AggFunc
	if stmt.Fields != nil {
		for _, f := range stmt.Fields.Fields {
			call, ok := f.Expr.(*ast.AggregateFuncExpr)
			if !ok {
				continue
			}
			var arg plan.Expr
			if len(call.Args) > 0 {
				e, err := convertExpr(call.Args[0])
				if err != nil {
					return nil, err
				}
				arg = e
			}
			alias := f.AsName.String()
			if alias == "" {
				alias = strings.ToLower(call.F)
			}
			aggs = append(aggs, plan.AggFunc{
				Fn:       strings.ToUpper(call.F),
				Arg:      arg,
				Alias:    alias,
				Distinct: call.Distinct,
			})
		}
	}

	return &plan.Aggregate{GroupKeys: groupKeys, Aggs: aggs, Child: child}, nil
}

func convertOrderBy(order *ast.OrderByClause, child plan.Node) (*plan.Sort, error) {
	keys := make([]plan.SortKey, 0, len(order.Items))
	for _, item := range order.Items {
		e, err := convertExpr(item.Expr)
		if err != nil {
			return nil, err
		}
		keys = append(keys, plan.SortKey{Expr: e, Desc: item.Desc})
	}
	return &plan.Sort{Keys: keys, Child: child}, nil
}

func convertLimit(limit *ast.Limit, child plan.Node) plan.Node {
	n := &plan.Limit{Child: child}
	if limit.Count != nil {
		if v, ok := extractInt(limit.Count); ok {
			n.N = v
		}
	}
	if limit.Offset != nil {
		if v, ok := extractInt(limit.Offset); ok {
			n.Offset = v
		}
	}
	return n
}

func extractInt(e ast.ExprNode) (int64, bool) {
	valExpr, ok := e.(ast.ValueExpr)
	if !ok {
		return 0, false
	}
	switch v := valExpr.GetValue().(type) {
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func convertExpr(node ast.ExprNode) (plan.Expr, error) {
	switch n := node.(type) {
	case *ast.BinaryOperationExpr:
		left, err := convertExpr(n.L)
		if err != nil {
			return nil, err
		}
		right, err := convertExpr(n.R)
		if err != nil {
			return nil, err
		}
		op, err := normalizeOp(n.Op)
		if err != nil {
			return nil, err
		}
		return &plan.BinOp{Op: op, Left: left, Right: right}, nil

	case *ast.ColumnNameExpr:
		return &plan.ColumnRef{Qualified: qualifiedColumnName(n)}, nil

	case ast.ValueExpr:
		return &plan.Literal{Val: n.GetValue()}, nil

	case *ast.FuncCallExpr:
		args := make([]plan.Expr, 0, len(n.Args))
		for _, a := range n.Args {
			e, err := convertExpr(a)
			if err != nil {
				return nil, err
			}
			args = append(args, e)
		}
		return &plan.Call{Fn: strings.ToUpper(n.FnName.String()), Args: args}, nil

	case *ast.AggregateFuncExpr:
		args := make([]plan.Expr, 0, len(n.Args))
		for _, a := range n.Args {
			e, err := convertExpr(a)
			if err != nil {
				return nil, err
			}
			args = append(args, e)
		}
		return &plan.Call{Fn: strings.ToUpper(n.F), Args: args}, nil

	case *ast.PatternLikeOrIlikeExpr:
		left, err := convertExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		right, err := convertExpr(n.Pattern)
		if err != nil {
			return nil, err
		}
		op := "LIKE"
		if n.Not {
			op = "NOT LIKE"
		}
		return &plan.BinOp{Op: op, Left: left, Right: right}, nil

	case *ast.IsNullExpr:
		inner, err := convertExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		op := "IS NULL"
		if n.Not {
			op = "IS NOT NULL"
		}
		return &plan.Call{Fn: op, Args: []plan.Expr{inner}}, nil

	case *ast.ParenthesesExpr:
		return convertExpr(n.Expr)

	case *ast.PatternInExpr:
		left, err := convertExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		values := make([]plan.Expr, 0, len(n.List))
		for _, item := range n.List {
			e, err := convertExpr(item)
			if err != nil {
				return nil, err
			}
			values = append(values, e)
		}
		args := append([]plan.Expr{left}, values...)
		fn := "IN"
		if n.Not {
			fn = "NOT IN"
		}
		return &plan.Call{Fn: fn, Args: args}, nil

	case *ast.BetweenExpr:
		inner, err := convertExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		lo, err := convertExpr(n.Left)
		if err != nil {
			return nil, err
		}
		hi, err := convertExpr(n.Right)
		if err != nil {
			return nil, err
		}
		lower := &plan.BinOp{Op: ">=", Left: inner, Right: lo}
		upper := &plan.BinOp{Op: "<=", Left: inner, Right: hi}
		combined := plan.Expr(&plan.BinOp{Op: "AND", Left: lower, Right: upper})
		if n.Not {
			return &plan.Call{Fn: "NOT", Args: []plan.Expr{combined}}, nil
		}
		return combined, nil

	default:
		return nil, queryerr.New(queryerr.KindParse, "parse", "unsupported_expression",
			fmt.Sprintf("unsupported expression type %T", node))
	}
}

// normalizeOp maps a TiDB opcode to the canonical operator symbols
// internal/plan and internal/optimizer key their rules on (e.g. the
// commutative-operator table in internal/plan's canonicalizer), decoupling
// plan construction from the parser library's internal opcode naming.
func normalizeOp(op opcode.Op) (string, error) {
	switch op {
	case opcode.LogicAnd:
		return "AND", nil
	case opcode.LogicOr:
		return "OR", nil
	case opcode.EQ:
		return "=", nil
	case opcode.NE:
		return "!=", nil
	case opcode.LT:
		return "<", nil
	case opcode.LE:
		return "<=", nil
	case opcode.GT:
		return ">", nil
	case opcode.GE:
		return ">=", nil
	case opcode.Plus:
		return "+", nil
	case opcode.Minus:
		return "-", nil
	case opcode.Mul:
		return "*", nil
	case opcode.Div:
		return "/", nil
	default:
		return "", queryerr.New(queryerr.KindParse, "parse", "unsupported_operator",
			fmt.Sprintf("unsupported operator %q", op.String()))
	}
}

func qualifiedColumnName(n *ast.ColumnNameExpr) string {
	name := n.Name.Name.String()
	if n.Name.Table.L == "" {
		return name
	}
	if n.Name.Schema.L != "" {
		return n.Name.Schema.String() + "." + n.Name.Table.String() + "." + name
	}
	return n.Name.Table.String() + "." + name
}
