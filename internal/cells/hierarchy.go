package cells

import (
	"fmt"
	"sort"
)

// Tree is an explicit cell-type hierarchy: each node is a population
// label, leaves are the fine phenotypes assigned per cell, and inner
// nodes are coarser parent populations. Lookup is depth-first from the
// roots rather than ad hoc set membership.
type Tree struct {
	children map[string][]string
	parent   map[string]string
	roots    []string
}

// NewTree builds a hierarchy from parent → ordered children mappings.
// Every label may have at most one parent and the mapping must be acyclic.
func NewTree(children map[string][]string) (*Tree, error) {
	t := &Tree{
		children: make(map[string][]string, len(children)),
		parent:   make(map[string]string),
	}
	// Deterministic construction order regardless of map iteration.
	parents := make([]string, 0, len(children))
	for p := range children {
		parents = append(parents, p)
	}
	sort.Strings(parents)

	for _, p := range parents {
		kids := children[p]
		t.children[p] = append([]string(nil), kids...)
		for _, c := range kids {
			if c == p {
				return nil, fmt.Errorf("hierarchy: %q is its own child", p)
			}
			if prev, ok := t.parent[c]; ok {
				return nil, fmt.Errorf("hierarchy: %q has two parents (%q and %q)", c, prev, p)
			}
			t.parent[c] = p
		}
	}
	for _, p := range parents {
		if _, hasParent := t.parent[p]; !hasParent {
			t.roots = append(t.roots, p)
		}
	}
	// A rootless non-empty tree means every parent is somebody's child: a cycle.
	if len(children) > 0 && len(t.roots) == 0 {
		return nil, fmt.Errorf("hierarchy contains a cycle")
	}
	// Guard against cycles reachable below a root as well.
	for _, r := range t.roots {
		if err := t.checkAcyclic(r, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tree) checkAcyclic(label string, seen map[string]bool) error {
	if seen[label] {
		return fmt.Errorf("hierarchy cycle through %q", label)
	}
	seen[label] = true
	for _, c := range t.children[label] {
		if err := t.checkAcyclic(c, seen); err != nil {
			return err
		}
	}
	delete(seen, label)
	return nil
}

// Parent returns the immediate parent of label, or "" for roots and
// unknown labels.
func (t *Tree) Parent(label string) string {
	return t.parent[label]
}

// Known reports whether label appears anywhere in the tree.
func (t *Tree) Known(label string) bool {
	if _, ok := t.children[label]; ok {
		return true
	}
	_, ok := t.parent[label]
	return ok
}

// Leaves returns the leaf labels under population, depth-first. A leaf
// label returns itself, so every population maps to the set of fine
// phenotypes whose cells it contains.
func (t *Tree) Leaves(population string) []string {
	kids := t.children[population]
	if len(kids) == 0 {
		return []string{population}
	}
	var out []string
	for _, c := range kids {
		out = append(out, t.Leaves(c)...)
	}
	return out
}

// Contains reports whether label is population itself or any descendant
// of it, by depth-first traversal.
func (t *Tree) Contains(population, label string) bool {
	if population == label {
		return true
	}
	for _, c := range t.children[population] {
		if t.Contains(c, label) {
			return true
		}
	}
	return false
}

// Roots returns the top-level population labels in sorted order.
func (t *Tree) Roots() []string {
	return t.roots
}
