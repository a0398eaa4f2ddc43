package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint returns a deterministic hash of the canonicalised plan,
// suitable as a result-cache key. Equivalent plans under the equivalence
// defined by Canonicalize (commutative operand/child ordering) always
// produce the same fingerprint.
func Fingerprint(n Node) string {
	canon := Canonicalize(n)
	sum := sha256.Sum256([]byte(render(canon)))
	return hex.EncodeToString(sum[:])
}

// render produces a canonical textual form of a node, used both for
// fingerprinting and for cheap structural comparisons (renderNode). It is
// not intended to round-trip back into a Node.
func render(n interface{}) string {
	switch t := n.(type) {
	case nil:
		return "nil"
	case Node:
		return renderNodeFull(t)
	case Expr:
		return renderExpr(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func renderNodeFull(n Node) string {
	if n == nil {
		return "nil"
	}
	var b strings.Builder
	b.WriteString(string(n.Kind()))
	b.WriteByte('(')
	switch t := n.(type) {
	case *Scan:
		fmt.Fprintf(&b, "%s.%s,proj=%v,pred=%s", t.Source, t.Table, t.Projection, render(t.Predicate))
	case *Filter:
		fmt.Fprintf(&b, "pred=%s,%s", render(t.Predicate), renderNodeFull(t.Child))
	case *Project:
		keys := make([]string, len(t.Exprs))
		for i, e := range t.Exprs {
			keys[i] = e.Alias + "=" + render(e.Expr)
		}
		fmt.Fprintf(&b, "%s,%s", strings.Join(keys, ";"), renderNodeFull(t.Child))
	case *Join:
		fmt.Fprintf(&b, "%s,cond=%s,%s,%s", t.JoinKind, render(t.Condition), renderNodeFull(t.Left), renderNodeFull(t.Right))
	case *Aggregate:
		groupKeys := make([]string, len(t.GroupKeys))
		for i, g := range t.GroupKeys {
			groupKeys[i] = render(g)
		}
		aggs := make([]string, len(t.Aggs))
		for i, a := range t.Aggs {
			aggs[i] = fmt.Sprintf("%s(%s,distinct=%v)", a.Fn, render(a.Arg), a.Distinct)
		}
		sort.Strings(groupKeys)
		fmt.Fprintf(&b, "group=%v,aggs=%v,%s", groupKeys, aggs, renderNodeFull(t.Child))
	case *Window:
		fmt.Fprintf(&b, "%s", renderNodeFull(t.Child))
	case *Sort:
		keys := make([]string, len(t.Keys))
		for i, k := range t.Keys {
			keys[i] = fmt.Sprintf("%s:%v", render(k.Expr), k.Desc)
		}
		fmt.Fprintf(&b, "%v,%s", keys, renderNodeFull(t.Child))
	case *Limit:
		fmt.Fprintf(&b, "n=%d,off=%d,%s", t.N, t.Offset, renderNodeFull(t.Child))
	case *Union:
		parts := make([]string, len(t.Inputs))
		for i, in := range t.Inputs {
			parts[i] = renderNodeFull(in)
		}
		sort.Strings(parts)
		fmt.Fprintf(&b, "%v", parts)
	case *Federated:
		fmt.Fprintf(&b, "%s,deps=%v,%s", t.Source, t.Dependencies, renderNodeFull(t.Inner))
	case *Unsupported:
		fmt.Fprintf(&b, "%s", t.Reason)
	}
	b.WriteByte(')')
	return b.String()
}

func renderExpr(e Expr) string {
	if e == nil {
		return "nil"
	}
	switch t := e.(type) {
	case *Literal:
		return fmt.Sprintf("Lit(%v)", t.Val)
	case *ColumnRef:
		return fmt.Sprintf("Col(%s)", t.Qualified)
	case *Call:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = renderExpr(a)
		}
		return fmt.Sprintf("%s(%s)", t.Fn, strings.Join(args, ","))
	case *BinOp:
		return fmt.Sprintf("(%s %s %s)", renderExpr(t.Left), t.Op, renderExpr(t.Right))
	case *Case:
		var b strings.Builder
		b.WriteString("Case(")
		for _, w := range t.Whens {
			fmt.Fprintf(&b, "WHEN %s THEN %s;", renderExpr(w.When), renderExpr(w.Then))
		}
		fmt.Fprintf(&b, "ELSE %s)", renderExpr(t.Else))
		return b.String()
	case *Cast:
		return fmt.Sprintf("Cast(%s AS %s)", renderExpr(t.Inner), t.Typ.Tag)
	default:
		return "?"
	}
}
