package core

import "fmt"

// Node is one entry of the in-memory tree arena: the item plus mutable
// presentation state. Children are arena indices, not pointers, so the
// structure has no aliasing and copies cheaply.
type Node struct {
	Item        Item
	Highlighted bool

	children []int
}

// Tree is the navigable hierarchy derived from a flat row fetch. The
// sentinel root is never materialized; Roots holds the forest of its
// top-level children in fetch order.
type Tree struct {
	nodes []Node
	roots []int
}

// BuildTree converts the flat row set into a tree. Every non-sentinel row
// must reference an existing parent, and every row must be reachable from
// the sentinel; missing parents and cycles are integrity violations
// reported as storage errors, never silently dropped.
func BuildTree(rows []Item) (*Tree, error) {
	byID := make(map[int64]int, len(rows))
	for i := range rows {
		byID[rows[i].ID] = i
	}

	t := &Tree{}
	arena := make(map[int]int, len(rows)) // row index -> node index
	for i := range rows {
		if rows[i].IsRoot() {
			continue
		}
		arena[i] = len(t.nodes)
		t.nodes = append(t.nodes, Node{Item: rows[i]})
	}

	for i := range rows {
		row := &rows[i]
		if row.IsRoot() {
			continue
		}
		pi, ok := byID[row.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: item %d (%q) references missing parent %d",
				ErrStorage, row.ID, row.DisplayName, row.ParentID)
		}
		if rows[pi].IsRoot() {
			t.roots = append(t.roots, arena[i])
			continue
		}
		parent := &t.nodes[arena[pi]]
		parent.children = append(parent.children, arena[i])
	}

	// Every accepted node must be reachable from the forest. A row whose
	// parent chain never meets the sentinel sits on a cycle (or under
	// one); reject the whole build rather than loop on it later.
	visited := 0
	stack := append([]int(nil), t.roots...)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++
		stack = append(stack, t.nodes[idx].children...)
	}
	if visited != len(t.nodes) {
		return nil, fmt.Errorf("%w: %d of %d items unreachable from root (parent cycle)",
			ErrStorage, len(t.nodes)-visited, len(t.nodes))
	}

	return t, nil
}

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// Roots returns the indices of the top-level forest.
func (t *Tree) Roots() []int { return append([]int(nil), t.roots...) }

// Node returns the node at an arena index.
func (t *Tree) Node(i int) *Node { return &t.nodes[i] }

// Children returns the child indices of the node at i.
func (t *Tree) Children(i int) []int {
	return append([]int(nil), t.nodes[i].children...)
}

// VisibleTree filters the tree through the permission engine using the
// view scope for each node's kind. A filtered-out folder is skipped but
// traversal continues into its children, so permitted descendants
// surface under the nearest visible ancestor.
func VisibleTree(t *Tree, engine *Engine, sess *Session) *Tree {
	out := &Tree{}

	type frame struct {
		idx    int
		parent int // index into out.nodes, or -1 for the forest
	}

	var stack []frame
	for i := len(t.roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{idx: t.roots[i], parent: -1})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := &t.nodes[f.idx]
		parent := f.parent

		scope := ViewScopeFor(node.Item.Kind)
		if engine.Allowed(sess, node.Item.DisplayName, scope) {
			ni := len(out.nodes)
			out.nodes = append(out.nodes, Node{Item: node.Item, Highlighted: node.Highlighted})
			if f.parent == -1 {
				out.roots = append(out.roots, ni)
			} else {
				out.nodes[f.parent].children = append(out.nodes[f.parent].children, ni)
			}
			parent = ni
		}

		for i := len(node.children) - 1; i >= 0; i-- {
			stack = append(stack, frame{idx: node.children[i], parent: parent})
		}
	}

	return out
}
