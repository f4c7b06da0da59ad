package core

import "strings"

// Search walks the whole tree iteratively and returns the arena indices
// of nodes whose display name contains query (case-insensitive). As a
// side effect every visited node's highlight flag is set to whether it
// matched, so the view can repaint directly from the tree. The explicit
// stack keeps arbitrarily deep trees safe to walk.
func (t *Tree) Search(query string) []int {
	query = strings.ToLower(query)

	var matches []int
	stack := make([]int, 0, len(t.roots))
	for i := len(t.roots) - 1; i >= 0; i-- {
		stack = append(stack, t.roots[i])
	}

	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := &t.nodes[idx]
		matched := strings.Contains(strings.ToLower(node.Item.DisplayName), query)
		node.Highlighted = matched
		if matched {
			matches = append(matches, idx)
		}

		for i := len(node.children) - 1; i >= 0; i-- {
			stack = append(stack, node.children[i])
		}
	}

	return matches
}

// ClearHighlights resets every node's highlight flag unconditionally,
// using the same iterative traversal as Search.
func (t *Tree) ClearHighlights() {
	stack := append([]int(nil), t.roots...)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		t.nodes[idx].Highlighted = false
		stack = append(stack, t.nodes[idx].children...)
	}
}
