package assets

import (
	"hash/fnv"
	"sync"

	"github.com/google/btree"
)

// lockStripes bounds the mutation lock pool. Ids hashing to the same
// stripe serialize against each other, which costs a little parallelism
// but keeps memory flat under churning asset ids.
const lockStripes = 64

// Registry is the shared in-memory asset store. Multiple batch handlers
// mutate it concurrently; mutation is serialized per asset id while
// different assets are read and written fully in parallel.
//
// Stored assets are immutable once published: every mutation works on a
// private copy that is swapped in under the index lock, so readers never
// observe a partially mutated asset.
type Registry struct {
	mu    sync.RWMutex
	index *btree.BTreeG[*Asset]

	locks [lockStripes]sync.Mutex
}

// NewRegistry creates an empty asset registry.
func NewRegistry() *Registry {
	return &Registry{
		index: btree.NewG[*Asset](32, func(a, b *Asset) bool {
			return a.ID < b.ID
		}),
	}
}

func (r *Registry) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.locks[h.Sum32()%lockStripes]
}

// Update replaces the stored asset wholesale. Properties from a new scan
// overwrite prior ones; the evaluation history restarts because the new
// properties invalidate it.
func (r *Registry) Update(asset *Asset) {
	lock := r.lockFor(asset.ID)
	lock.Lock()
	defer lock.Unlock()

	r.publish(asset)
}

// WithAsset runs fn under the per-id lock, making the read-modify-write
// step atomic relative to this asset id. fn receives a private copy; the
// copy is published after fn returns. fn receives nil for an unknown id.
func (r *Registry) WithAsset(id string, fn func(asset *Asset)) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	stored, ok := r.index.Get(&Asset{ID: id})
	r.mu.RUnlock()

	if !ok {
		fn(nil)
		return
	}

	working := snapshot(stored)
	fn(working)
	r.publish(working)
}

func (r *Registry) publish(asset *Asset) {
	r.mu.Lock()
	r.index.ReplaceOrInsert(asset)
	r.mu.Unlock()
}

// Get returns the asset with the given id. The returned asset must be
// treated as read-only; use WithAsset to mutate.
func (r *Registry) Get(id string) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.index.Get(&Asset{ID: id})
}

// WithType returns every asset whose type matches, ordered by id.
func (r *Registry) WithType(assetType string) []*Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Asset
	r.index.Ascend(func(asset *Asset) bool {
		if asset.Type == assetType {
			out = append(out, asset)
		}
		return true
	})
	return out
}

// All returns every known asset, ordered by id.
func (r *Registry) All() []*Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Asset, 0, r.index.Len())
	r.index.Ascend(func(asset *Asset) bool {
		out = append(out, asset)
		return true
	})
	return out
}

// Len returns the number of known assets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.Len()
}

func snapshot(asset *Asset) *Asset {
	out := &Asset{
		ID:         asset.ID,
		Type:       asset.Type,
		Name:       asset.Name,
		Properties: asset.Properties,
	}
	if len(asset.EvaluationResults) > 0 {
		out.EvaluationResults = make([]EvaluationResult, len(asset.EvaluationResults))
		copy(out.EvaluationResults, asset.EvaluationResults)
	}
	return out
}
