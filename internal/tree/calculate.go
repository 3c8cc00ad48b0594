package tree

import (
	"fmt"

	"github.com/roach88/dbbm/internal/cache"
	"github.com/roach88/dbbm/internal/state"
)

// CalcContext carries what the Calculate pass needs to rewrite the tree:
// the project databases (a cache hit must cover all of them), the cache,
// and a factory for the restore leaf that replaces a cached subtree. The
// factory lives here so this package stays ignorant of the concrete
// transform types.
type CalcContext struct {
	// Databases lists the project databases in declaration order.
	Databases []string

	// Cache answers existence queries. Nil disables cache rewrites.
	Cache cache.Cache

	// NewCacheRestore builds the transform that restores every project
	// database from the cached backups at the given state.
	NewCacheRestore func(h state.Hash, backupByDB map[string]string) Transform
}

// CalcResult is the outcome of calculating one node.
type CalcResult struct {
	// Node is the rewritten node. Nil means the node dropped out of the
	// tree: a resumed-past leaf, or a group left with no children.
	Node *Node

	// Hash is the state hash after this node.
	Hash state.Hash

	// Changed reports that this subtree hit the resume point or was
	// replaced by a cache restore. A changed child supersedes all its
	// earlier siblings.
	Changed bool

	// CacheHash is the state of the latest cache substitution in this
	// subtree, if any.
	CacheHash *state.Hash

	// ResumeFound reports that some leaf's output matched the starting
	// hash. A resume request whose hash matches no leaf is stale and
	// must not execute.
	ResumeFound bool
}

// Calculate threads the hash through the tree in depth-first pre-order,
// computing every leaf's output without side effects, and rewrites the
// tree along the way:
//
//   - a leaf whose output equals starting is the resume point: it and
//     everything before it drop out, and execution will begin with the
//     next leaf;
//   - a leaf whose output state is fully cached (one backup per project
//     database) is replaced by a restore-from-cache group, superseding
//     everything before it;
//   - a group whose rewritten children all dropped out is elided.
func (n *Node) Calculate(cc *CalcContext, in state.Hash, starting *state.Hash) (CalcResult, error) {
	if !n.IsGroup() {
		return n.calculateLeaf(cc, in, starting)
	}

	group := NewGroup(n.pre, n.post)
	out := in
	changed := false
	resumeFound := false
	var cacheHash *state.Hash

	for _, child := range n.children {
		res, err := child.Calculate(cc, out, starting)
		if err != nil {
			return CalcResult{}, err
		}
		out = res.Hash
		resumeFound = resumeFound || res.ResumeFound
		if res.Changed {
			// The resume point or a cache restore makes everything
			// before it redundant.
			group.children = nil
			changed = true
		}
		if res.CacheHash != nil {
			cacheHash = res.CacheHash
		}
		if res.Node != nil {
			group.children = append(group.children, res.Node)
		}
	}

	node := group
	if len(group.children) == 0 {
		node = nil
	}
	return CalcResult{Node: node, Hash: out, Changed: changed, CacheHash: cacheHash, ResumeFound: resumeFound}, nil
}

func (n *Node) calculateLeaf(cc *CalcContext, in state.Hash, starting *state.Hash) (CalcResult, error) {
	h, err := n.transform.CalculateTransform(in)
	if err != nil {
		return CalcResult{}, fmt.Errorf("calculate %s: %w", n.transform.Description(), err)
	}

	if starting != nil && h == *starting {
		// The resume point: everything up to and including this leaf
		// already ran.
		return CalcResult{Node: nil, Hash: h, Changed: true, ResumeFound: true}, nil
	}

	if backups, ok, err := n.cachedSet(cc, h); err != nil {
		return CalcResult{}, err
	} else if ok {
		restore := NewGroup("Restoring state from cache...", "")
		restore.children = []*Node{NewLeaf(cc.NewCacheRestore(h, backups))}
		return CalcResult{Node: restore, Hash: h, Changed: true, CacheHash: &h}, nil
	}

	return CalcResult{Node: n, Hash: h}, nil
}

// cachedSet reports whether every project database has a cached backup at
// state h, returning the backup paths by database.
func (n *Node) cachedSet(cc *CalcContext, h state.Hash) (map[string]string, bool, error) {
	if cc.Cache == nil || cc.NewCacheRestore == nil || len(cc.Databases) == 0 {
		return nil, false, nil
	}
	backups := make(map[string]string, len(cc.Databases))
	for _, db := range cc.Databases {
		path, ok, err := cc.Cache.TryGet(db, h, false)
		if err != nil {
			return nil, false, fmt.Errorf("cache probe %s at %s: %w", db, h, err)
		}
		if !ok {
			return nil, false, nil
		}
		backups[db] = path
	}
	return backups, true, nil
}
