package plan

// Visitor is called once per node during a Traverse, pre-order.
type Visitor func(n Node)

// Traverse walks the plan tree rooted at n, pre-order, calling visit on
// every node including n itself.
func Traverse(n Node, visit Visitor) {
	if n == nil {
		return
	}
	visit(n)
	for _, c := range n.Children() {
		Traverse(c, visit)
	}
}

// Rewriter produces a replacement for n given its already-rewritten
// children. Returning n unchanged (or a shallow copy) is valid when no
// rewrite applies; Transform handles structural sharing by only
// allocating a new node when a child actually changed.
type Rewriter func(n Node, newChildren []Node) Node

// Transform rewrites the tree bottom-up: children are transformed first,
// then rewrite is applied to the node with its (possibly new) children.
// Unchanged subtrees are shared with the original tree.
func Transform(n Node, rewrite Rewriter) Node {
	if n == nil {
		return nil
	}
	children := n.Children()
	if len(children) == 0 {
		return rewrite(n, nil)
	}
	newChildren := make([]Node, len(children))
	changed := false
	for i, c := range children {
		newChildren[i] = Transform(c, rewrite)
		if newChildren[i] != c {
			changed = true
		}
	}
	if changed {
		n = n.WithChildren(newChildren)
	}
	return rewrite(n, newChildren)
}

// CountNodes returns the number of nodes in the tree rooted at n.
func CountNodes(n Node) int {
	count := 0
	Traverse(n, func(Node) { count++ })
	return count
}
