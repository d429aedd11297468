package planning

import "slices"

// HasCycleIfAdded reports whether adding from -> to to an acyclic graph would close a cycle.
// A self-loop is always a cycle. Otherwise one walk from to along outgoing edges decides it:
// the edge closes a cycle exactly when to already reaches from.
func HasCycleIfAdded(g *Graph, from, to string) bool {
	if from == to {
		return true
	}
	return reaches(g, to, from)
}

// FindCyclePath returns the cycle that from -> to would close, as
// [from, to, ..., from], or nil when the edge is safe.
func FindCyclePath(g *Graph, from, to string) []string {
	if from == to {
		return []string{from, from}
	}
	parent := map[string]string{to: ""}
	stack := []string{to}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == from {
			path := []string{}
			for n := from; n != ""; n = parent[n] {
				path = append(path, n)
			}
			slices.Reverse(path)
			return append([]string{from}, path...)
		}
		for _, next := range g.Neighbors(cur) {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur
			stack = append(stack, next)
		}
	}
	return nil
}

// HasCycle reports whether g contains any directed cycle.
// It runs a DFS from every node and tracks the nodes currently on the stack.
func HasCycle(g *Graph) bool {
	const (
		white = iota
		grey
		black
	)
	type frame struct {
		id    string
		next  []string
		index int
	}
	color := make(map[string]int, len(g.out))
	for _, root := range g.Nodes() {
		if color[root] != white {
			continue
		}
		color[root] = grey
		stack := []frame{{id: root, next: g.Neighbors(root)}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.index == len(top.next) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			n := top.next[top.index]
			top.index++
			switch color[n] {
			case grey:
				return true
			case white:
				color[n] = grey
				stack = append(stack, frame{id: n, next: g.Neighbors(n)})
			}
		}
	}
	return false
}

// reaches walks outgoing edges from src and reports whether dst is reachable.
func reaches(g *Graph, src, dst string) bool {
	visited := map[string]struct{}{src: {}}
	stack := []string{src}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == dst {
			return true
		}
		for next := range g.out[cur] {
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			stack = append(stack, next)
		}
	}
	return false
}
