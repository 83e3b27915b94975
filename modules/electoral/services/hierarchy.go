package services

import (
	"fmt"
	"slices"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

const noParent = -1

// Hierarchy is an immutable arena over one snapshot of geo nodes. Nodes are
// stored sorted by id; parent links and lookup indices hold arena positions,
// never pointers. A structural change requires building a new Hierarchy.
type Hierarchy struct {
	nodes    []domain.GeoNode
	index    map[domain.NodeID]int
	parent   []int
	children [][]int
	// ancestors[i] runs from the immediate parent to the root.
	ancestors [][]int
	// descendants[i][rank] lists descendants of i at level rank, ascending by id.
	descendants [][][]int
	roots       []int
}

const (
	white = iota
	gray
	black
)

// BuildHierarchy validates the nodes and precomputes ancestor and
// level-bucketed descendant indices. The input slice is not retained.
func BuildHierarchy(nodes []domain.GeoNode) (*Hierarchy, error) {
	sorted := slices.Clone(nodes)
	slices.SortFunc(sorted, func(a, b domain.GeoNode) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	h := &Hierarchy{
		nodes:  sorted,
		index:  make(map[domain.NodeID]int, len(sorted)),
		parent: make([]int, len(sorted)),
	}
	for i, n := range sorted {
		if !n.Level.Valid() {
			return nil, fmt.Errorf("node %d: %w: %q", n.ID, domain.ErrInvalidLevel, n.Level)
		}
		if _, dup := h.index[n.ID]; dup {
			return nil, fmt.Errorf("%w: %d", domain.ErrDuplicateNode, n.ID)
		}
		h.index[n.ID] = i
	}
	for i, n := range sorted {
		h.parent[i] = noParent
		if n.ParentID == nil {
			continue
		}
		p, ok := h.index[*n.ParentID]
		if !ok {
			return nil, fmt.Errorf("node %d: %w: %d", n.ID, domain.ErrUnknownParent, *n.ParentID)
		}
		h.parent[i] = p
	}

	top, err := h.detectCycles()
	if err != nil {
		return nil, err
	}
	if err := h.checkRoots(top); err != nil {
		return nil, err
	}
	for i, p := range h.parent {
		if p == noParent {
			continue
		}
		if h.nodes[p].Level.Rank() <= h.nodes[i].Level.Rank() {
			return nil, fmt.Errorf("%w: node %d (%s) under node %d (%s)",
				domain.ErrInvalidLevelOrder, h.nodes[i].ID, h.nodes[i].Level, h.nodes[p].ID, h.nodes[p].Level)
		}
	}

	h.buildIndices()
	return h, nil
}

// detectCycles walks every parent chain with white/gray/black coloring and
// returns, for each node, the arena position of its parentless top.
func (h *Hierarchy) detectCycles() ([]int, error) {
	color := make([]int, len(h.nodes))
	top := make([]int, len(h.nodes))
	stack := make([]int, 0, 8)

	for start := range h.nodes {
		if color[start] == black {
			continue
		}
		stack = stack[:0]
		cur := start
		for {
			if color[cur] == gray {
				path := make([]domain.NodeID, 0, len(stack)+1)
				from := slices.Index(stack, cur)
				for _, s := range stack[from:] {
					path = append(path, h.nodes[s].ID)
				}
				path = append(path, h.nodes[cur].ID)
				return nil, &domain.CycleError{NodeID: h.nodes[cur].ID, Path: path}
			}
			if color[cur] == black {
				break
			}
			color[cur] = gray
			stack = append(stack, cur)
			if h.parent[cur] == noParent {
				top[cur] = cur
				color[cur] = black
				stack = stack[:len(stack)-1]
				break
			}
			cur = h.parent[cur]
		}
		// Unwind: every node on the stack shares the top of the node we stopped at.
		t := top[cur]
		for j := len(stack) - 1; j >= 0; j-- {
			top[stack[j]] = t
			color[stack[j]] = black
		}
	}
	return top, nil
}

func (h *Hierarchy) checkRoots(top []int) error {
	general := make(map[int][]domain.NodeID)
	tops := make([]int, 0)
	seen := make(map[int]struct{})
	for i, n := range h.nodes {
		t := top[i]
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			tops = append(tops, t)
		}
		if n.IsRoot() {
			general[t] = append(general[t], n.ID)
		}
	}
	slices.Sort(tops)
	for _, t := range tops {
		ids := general[t]
		if len(ids) != 1 || !h.nodes[t].IsRoot() {
			return &domain.RootError{TopID: h.nodes[t].ID, RootIDs: ids}
		}
		h.roots = append(h.roots, t)
	}

	// Separate trees are fine only when they belong to different jurisdictions.
	byJurisdiction := make(map[int64][]domain.NodeID)
	for _, r := range h.roots {
		n := h.nodes[r]
		byJurisdiction[n.JurisdictionID] = append(byJurisdiction[n.JurisdictionID], n.ID)
	}
	for _, r := range h.roots {
		j := h.nodes[r].JurisdictionID
		if ids := byJurisdiction[j]; len(ids) > 1 {
			return &domain.RootError{JurisdictionID: j, TopID: h.nodes[r].ID, RootIDs: ids}
		}
	}

	// Every node must sit under the root of its own jurisdiction.
	for i, n := range h.nodes {
		if t := top[i]; h.nodes[t].JurisdictionID != n.JurisdictionID {
			return &domain.RootError{JurisdictionID: n.JurisdictionID, TopID: h.nodes[t].ID, RootIDs: byJurisdiction[n.JurisdictionID]}
		}
	}
	return nil
}

func (h *Hierarchy) buildIndices() {
	n := len(h.nodes)
	h.children = make([][]int, n)
	h.ancestors = make([][]int, n)
	h.descendants = make([][][]int, n)
	for i := range h.descendants {
		h.descendants[i] = make([][]int, len(domain.Levels))
	}

	// Nodes are visited in id order, so every child list and descendant bucket
	// ends up sorted ascending without an extra pass.
	for i := range h.nodes {
		if p := h.parent[i]; p != noParent {
			h.children[p] = append(h.children[p], i)
		}
		anc := make([]int, 0, 4)
		for p := h.parent[i]; p != noParent; p = h.parent[p] {
			anc = append(anc, p)
		}
		h.ancestors[i] = anc
		rank := h.nodes[i].Level.Rank()
		for _, a := range anc {
			h.descendants[a][rank] = append(h.descendants[a][rank], i)
		}
	}
}

func (h *Hierarchy) pos(id domain.NodeID) (int, error) {
	i, ok := h.index[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", domain.ErrUnknownNode, id)
	}
	return i, nil
}

func (h *Hierarchy) ids(positions []int) []domain.NodeID {
	out := make([]domain.NodeID, len(positions))
	for k, p := range positions {
		out[k] = h.nodes[p].ID
	}
	return out
}

// AncestorsOf returns the ancestor chain from the immediate parent to the root.
func (h *Hierarchy) AncestorsOf(id domain.NodeID) ([]domain.NodeID, error) {
	i, err := h.pos(id)
	if err != nil {
		return nil, err
	}
	return h.ids(h.ancestors[i]), nil
}

// DescendantsOf returns the descendants of id at the given level, ascending by
// id. The node itself is never included.
func (h *Hierarchy) DescendantsOf(id domain.NodeID, level domain.Level) ([]domain.NodeID, error) {
	i, err := h.pos(id)
	if err != nil {
		return nil, err
	}
	rank := level.Rank()
	if rank < 0 {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidLevel, level)
	}
	return h.ids(h.descendants[i][rank]), nil
}

// LevelOf returns the aggregation level of a node.
func (h *Hierarchy) LevelOf(id domain.NodeID) (domain.Level, error) {
	i, err := h.pos(id)
	if err != nil {
		return "", err
	}
	return h.nodes[i].Level, nil
}

// ChildrenOf returns the direct children of a node, ascending by id.
func (h *Hierarchy) ChildrenOf(id domain.NodeID) ([]domain.NodeID, error) {
	i, err := h.pos(id)
	if err != nil {
		return nil, err
	}
	return h.ids(h.children[i]), nil
}

// Node looks up a node by id.
func (h *Hierarchy) Node(id domain.NodeID) (domain.GeoNode, bool) {
	i, ok := h.index[id]
	if !ok {
		return domain.GeoNode{}, false
	}
	return h.nodes[i], true
}

// Contains reports whether id belongs to the hierarchy.
func (h *Hierarchy) Contains(id domain.NodeID) bool {
	_, ok := h.index[id]
	return ok
}

// RootOf returns the JURISDICTION_GENERAL node above id (or id itself).
func (h *Hierarchy) RootOf(id domain.NodeID) (domain.NodeID, error) {
	i, err := h.pos(id)
	if err != nil {
		return 0, err
	}
	if anc := h.ancestors[i]; len(anc) > 0 {
		return h.nodes[anc[len(anc)-1]].ID, nil
	}
	return id, nil
}

// Roots returns the JURISDICTION_GENERAL node of every jurisdiction, ascending by id.
func (h *Hierarchy) Roots() []domain.NodeID { return h.ids(h.roots) }

// Nodes returns a copy of all nodes sorted by id.
func (h *Hierarchy) Nodes() []domain.GeoNode { return slices.Clone(h.nodes) }

// Len is the number of nodes.
func (h *Hierarchy) Len() int { return len(h.nodes) }

// subtree returns i and all of its descendants, in arena order.
func (h *Hierarchy) subtree(i int) []int {
	out := []int{i}
	for _, bucket := range h.descendants[i] {
		out = append(out, bucket...)
	}
	slices.Sort(out)
	return out
}

func (h *Hierarchy) districtsUnder(i int) []int {
	return h.descendants[i][domain.LevelDistrict.Rank()]
}
