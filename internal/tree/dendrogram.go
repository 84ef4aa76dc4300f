// Package tree reconstructs a binary dendrogram from a precomputed
// hierarchical clustering (linkage sequence over the reference genomes)
// and lays it out for rendering.
package tree

import (
	"errors"
	"fmt"
	"math"

	"github.com/genome-heatmap/server/internal/dataset"
)

// ErrEmptyTree marks a TreeData with zero leaves. Callers render an
// empty-state panel, not an error.
var ErrEmptyTree = errors.New("tree has no leaves")

// Node is one dendrogram node. Leaf is non-nil for tips.
type Node struct {
	ID       int           `json:"id"`
	Leaf     *dataset.Leaf `json:"leaf,omitempty"`
	Left     *Node         `json:"left,omitempty"`
	Right    *Node         `json:"right,omitempty"`
	Distance float64       `json:"distance"`

	// Layout: X is the square-root-scaled merge distance normalized to
	// [0,1] (compresses long outgroup branches without losing local
	// resolution); Y is the in-order leaf row, fractional for internal
	// nodes.
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsLeaf reports whether the node is a tip.
func (n *Node) IsLeaf() bool { return n.Leaf != nil }

// Dendrogram is the laid-out tree.
type Dendrogram struct {
	Root        *Node
	Leaves      []*Node // in layout order, top to bottom
	MaxDistance float64
}

// LeafCount returns the number of tips.
func (d *Dendrogram) LeafCount() int { return len(d.Leaves) }

// InternalCount returns the number of merge nodes; always LeafCount-1
// for a valid linkage.
func (d *Dendrogram) InternalCount() int {
	return countInternal(d.Root)
}

func countInternal(n *Node) int {
	if n == nil || n.IsLeaf() {
		return 0
	}
	return 1 + countInternal(n.Left) + countInternal(n.Right)
}

// Build reconstructs and lays out the dendrogram from TreeData. Each
// linkage step merges two previously unconsumed nodes; leaf ids are
// 0..L-1 in leaf order and every leaf must be consumed exactly once
// across the whole structure.
func Build(td *dataset.TreeData) (*Dendrogram, error) {
	if td == nil || len(td.Leaves) == 0 {
		return nil, ErrEmptyTree
	}
	nLeaves := len(td.Leaves)
	if len(td.Linkage) != nLeaves-1 {
		return nil, fmt.Errorf("linkage has %d steps for %d leaves, want %d", len(td.Linkage), nLeaves, nLeaves-1)
	}
	if len(td.Distances) != 0 && len(td.Distances) != nLeaves {
		return nil, fmt.Errorf("distance matrix has %d rows for %d leaves", len(td.Distances), nLeaves)
	}

	nodes := make(map[int]*Node, 2*nLeaves)
	for i := range td.Leaves {
		nodes[i] = &Node{ID: i, Leaf: &td.Leaves[i]}
	}

	consumed := make(map[int]bool, 2*nLeaves)
	maxDist := 0.0
	var root *Node

	for _, step := range td.Linkage {
		left, ok := nodes[step.A]
		if !ok {
			return nil, fmt.Errorf("linkage references unknown node %d", step.A)
		}
		right, ok := nodes[step.B]
		if !ok {
			return nil, fmt.Errorf("linkage references unknown node %d", step.B)
		}
		if consumed[step.A] || consumed[step.B] {
			return nil, fmt.Errorf("linkage consumes node %d or %d twice", step.A, step.B)
		}
		if _, exists := nodes[step.ID]; exists {
			return nil, fmt.Errorf("linkage produces duplicate node id %d", step.ID)
		}
		consumed[step.A], consumed[step.B] = true, true

		merged := &Node{ID: step.ID, Left: left, Right: right, Distance: step.Distance}
		nodes[step.ID] = merged
		if step.Distance > maxDist {
			maxDist = step.Distance
		}
		root = merged
	}

	if root == nil {
		// Single leaf, no merges.
		root = nodes[0]
	}

	for i := 0; i < nLeaves; i++ {
		if !consumed[i] && root.ID != i {
			return nil, fmt.Errorf("leaf %d never appears in the linkage", i)
		}
	}

	d := &Dendrogram{Root: root, MaxDistance: maxDist}
	d.layout()
	return d, nil
}

// layout assigns in-order leaf rows and square-root-scaled distances.
func (d *Dendrogram) layout() {
	d.Leaves = d.Leaves[:0]
	scale := math.Sqrt(d.MaxDistance)

	var place func(n *Node) float64
	place = func(n *Node) float64 {
		if n.IsLeaf() {
			n.X = 0
			n.Y = float64(len(d.Leaves))
			d.Leaves = append(d.Leaves, n)
			return n.Y
		}
		yl := place(n.Left)
		yr := place(n.Right)
		n.Y = (yl + yr) / 2
		if scale > 0 {
			n.X = math.Sqrt(n.Distance) / scale
		}
		return n.Y
	}
	place(d.Root)
}

// StatBar names one optional per-leaf stat row.
type StatBar string

// Per-leaf stat bars, each collapsible independently of the tree.
const (
	BarGenes        StatBar = "genes"
	BarClusters     StatBar = "clusters"
	BarCoreFraction StatBar = "core_fraction"
)

// BarValue extracts the stat bar value for a leaf.
func BarValue(leaf *dataset.Leaf, bar StatBar) float64 {
	switch bar {
	case BarGenes:
		return float64(leaf.Stats.NGenes)
	case BarClusters:
		return float64(leaf.Stats.NClusters)
	case BarCoreFraction:
		return leaf.Stats.CoreFraction
	}
	return 0
}
