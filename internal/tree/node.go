// Package tree implements the execution tree a deployment runs: interior
// group nodes that sequence and frame their children, and leaf transform
// nodes that map an input state hash to an output state hash while
// performing side effects.
//
// The tree is driven in two passes. Calculate threads the state hash
// through every leaf without side effects and rewrites the tree against
// the resume point and the backup cache; Run executes the rewritten tree,
// persisting the resume hash after every leaf and feeding the cache for
// states whose execution was expensive enough to be worth keeping.
//
// Determinism is the contract: for every transform, Calculate and Run
// return the same output hash for the same input hash, and leaves execute
// in depth-first pre-order with leaf k+1 receiving exactly the hash leaf
// k returned.
package tree

import (
	"context"
	"fmt"

	"github.com/roach88/dbbm/internal/logx"
	"github.com/roach88/dbbm/internal/state"
)

// Transform is the leaf contract.
//
// CalculateTransform must be pure: no side effects, no I/O beyond
// reading the inputs that determine the fingerprint. RunTransform
// performs the side effects and returns the same hash
// CalculateTransform would; with dryRun set it only logs the intended
// effects.
type Transform interface {
	// Description names the leaf for logs and the journal.
	Description() string

	// CalculateTransform folds this leaf's inputs into the hash.
	CalculateTransform(in state.Hash) (state.Hash, error)

	// Requirements reports this leaf's preconditions into the sink.
	Requirements(sink *ReqSink)

	// RunTransform performs the side effects and returns the output
	// hash. Must agree with CalculateTransform for every input.
	RunTransform(ctx context.Context, in state.Hash, dryRun bool, log *logx.Log) (state.Hash, error)
}

// Node is one tree node: either a group (ordered children with optional
// pre/post log framing) or a transform leaf, never both.
type Node struct {
	pre       string
	post      string
	children  []*Node
	transform Transform
}

// NewGroup creates an interior node. pre and post are logged around the
// children during Run; either may be empty.
func NewGroup(pre, post string) *Node {
	return &Node{pre: pre, post: post}
}

// NewLeaf creates a transform node.
func NewLeaf(t Transform) *Node {
	return &Node{transform: t}
}

// IsGroup reports whether n is an interior node.
func (n *Node) IsGroup() bool { return n.transform == nil }

// Add appends children in order. It fails on transform nodes.
func (n *Node) Add(children ...*Node) error {
	if !n.IsGroup() {
		return fmt.Errorf("cannot add children to a transform node (%s)", n.transform.Description())
	}
	n.children = append(n.children, children...)
	return nil
}

// Children returns the ordered children of a group node.
func (n *Node) Children() []*Node { return n.children }

// Leaves counts the transform nodes under n.
func (n *Node) Leaves() int {
	if !n.IsGroup() {
		return 1
	}
	total := 0
	for _, c := range n.children {
		total += c.Leaves()
	}
	return total
}
