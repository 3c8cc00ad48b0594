package tree

import (
	"context"
	"testing"

	"github.com/roach88/dbbm/internal/cache"
	"github.com/roach88/dbbm/internal/logx"
	"github.com/roach88/dbbm/internal/state"
)

// fakeTransform derives its output hash from its label, records its runs
// into a shared trace, and can be told to fail.
type fakeTransform struct {
	label string
	trace *[]string
	fail  error
}

func (f *fakeTransform) Description() string { return f.label }

func (f *fakeTransform) CalculateTransform(in state.Hash) (state.Hash, error) {
	tr := state.NewTransformer(in)
	tr.TransformString(f.label)
	return tr.Result(), nil
}

func (f *fakeTransform) Requirements(sink *ReqSink) {}

func (f *fakeTransform) RunTransform(ctx context.Context, in state.Hash, dryRun bool, log *logx.Log) (state.Hash, error) {
	if f.fail != nil {
		return state.Hash{}, f.fail
	}
	if f.trace != nil {
		*f.trace = append(*f.trace, f.label)
	}
	return f.CalculateTransform(in)
}

func stateEmpty() state.Hash { return state.Empty }

// memCache implements cache.Cache in memory.
type memCache struct {
	entries map[string]map[string]string // db → hex → path
	adds    []cache.Key
	hits    []cache.Key
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]map[string]string)}
}

func (m *memCache) put(db string, h state.Hash) {
	if m.entries[db] == nil {
		m.entries[db] = make(map[string]string)
	}
	m.entries[db][h.Hex()] = "/cache/" + db + "/" + h.Hex()
}

func (m *memCache) TryGet(db string, h state.Hash, updateHit bool) (string, bool, error) {
	path, ok := m.entries[db][h.Hex()]
	if ok && updateHit {
		m.hits = append(m.hits, cache.Key{DB: db, Hash: h})
	}
	return path, ok, nil
}

func (m *memCache) Add(ctx context.Context, conn, db string, h state.Hash) error {
	m.adds = append(m.adds, cache.Key{DB: db, Hash: h})
	m.put(db, h)
	return nil
}

func (m *memCache) UpdateHits(keys []cache.Key) error {
	m.hits = append(m.hits, keys...)
	return nil
}

func (m *memCache) GarbageCollect(bool) (cache.Stats, error) { return cache.Stats{}, nil }

// cacheRestoreTransform stands in for the restore leaf the Calculate
// pass substitutes: its output is pinned to the cached state.
type cacheRestoreTransform struct {
	fakeTransform
	result state.Hash
}

func (c *cacheRestoreTransform) CalculateTransform(state.Hash) (state.Hash, error) {
	return c.result, nil
}

func (c *cacheRestoreTransform) RunTransform(ctx context.Context, in state.Hash, dryRun bool, log *logx.Log) (state.Hash, error) {
	if c.trace != nil {
		*c.trace = append(*c.trace, c.label)
	}
	return c.result, nil
}

// buildChain makes root → [groups...] with one leaf per label, and
// returns the expected hash after each leaf.
func buildChain(t *testing.T, trace *[]string, labels ...string) (*Node, []state.Hash) {
	t.Helper()
	root := NewGroup("", "")
	hashes := make([]state.Hash, len(labels))
	h := state.Empty
	for i, label := range labels {
		leaf := &fakeTransform{label: label, trace: trace}
		if err := root.Add(NewLeaf(leaf)); err != nil {
			t.Fatal(err)
		}
		out, err := leaf.CalculateTransform(h)
		if err != nil {
			t.Fatal(err)
		}
		hashes[i] = out
		h = out
	}
	return root, hashes
}

func calcCtx(c cache.Cache, trace *[]string, dbs ...string) *CalcContext {
	return &CalcContext{
		Databases: dbs,
		Cache:     c,
		NewCacheRestore: func(h state.Hash, backups map[string]string) Transform {
			return &cacheRestoreTransform{
				fakeTransform: fakeTransform{label: "cache-restore", trace: trace},
				result:        h,
			}
		},
	}
}
