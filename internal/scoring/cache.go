package scoring

import (
	"maps"
	"sync/atomic"

	"github.com/jordanhubbard/leadscore/internal/modelstore"
)

// ModelCache holds the loaded artifact per organization. Readers load an
// immutable snapshot map through an atomic pointer; writers copy the map and
// swap the pointer, so a reader never sees a half-replaced artifact.
type ModelCache struct {
	snapshot atomic.Pointer[map[string]*modelstore.Artifact]
}

// NewModelCache returns an empty cache.
func NewModelCache() *ModelCache {
	c := &ModelCache{}
	empty := make(map[string]*modelstore.Artifact)
	c.snapshot.Store(&empty)
	return c
}

// Get returns the cached artifact for orgID.
func (c *ModelCache) Get(orgID string) (*modelstore.Artifact, bool) {
	a, ok := (*c.snapshot.Load())[orgID]
	return a, ok
}

// Replace installs a freshly trained artifact, overwriting any entry.
func (c *ModelCache) Replace(orgID string, a *modelstore.Artifact) {
	c.update(func(m map[string]*modelstore.Artifact) bool {
		m[orgID] = a
		return true
	})
}

// StoreIfAbsent installs a lazily loaded artifact unless a newer one is
// already cached. It returns the artifact that ends up cached.
func (c *ModelCache) StoreIfAbsent(orgID string, a *modelstore.Artifact) *modelstore.Artifact {
	result := a
	c.update(func(m map[string]*modelstore.Artifact) bool {
		if existing, ok := m[orgID]; ok {
			result = existing
			return false
		}
		m[orgID] = a
		result = a
		return true
	})
	return result
}

// Invalidate drops the entry for orgID.
func (c *ModelCache) Invalidate(orgID string) {
	c.update(func(m map[string]*modelstore.Artifact) bool {
		if _, ok := m[orgID]; !ok {
			return false
		}
		delete(m, orgID)
		return true
	})
}

// Len reports the number of cached organizations.
func (c *ModelCache) Len() int {
	return len(*c.snapshot.Load())
}

func (c *ModelCache) update(mutate func(map[string]*modelstore.Artifact) bool) {
	for {
		old := c.snapshot.Load()
		next := maps.Clone(*old)
		if next == nil {
			next = make(map[string]*modelstore.Artifact)
		}
		if !mutate(next) {
			return
		}
		if c.snapshot.CompareAndSwap(old, &next) {
			return
		}
	}
}
