package ofga

import (
	"context"
	"fmt"
	"sync"
)

// Defaults caches a resolved store and model id so that clients constructed
// later need no explicit configuration. The zero value is ready to use.
//
// Both ids are replaced together: a reader never observes a store id from one
// refresh paired with a model id from another. Concurrent refreshes are
// allowed, the last writer wins.
type Defaults struct {
	mu      sync.RWMutex
	storeID string
	modelID string
}

// StoreID returns the cached store id, or "" when none was loaded.
func (d *Defaults) StoreID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.storeID
}

// ModelID returns the cached model id, or "" when none was loaded.
func (d *Defaults) ModelID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.modelID
}

// IDs returns both cached ids as a consistent pair.
func (d *Defaults) IDs() (storeID, modelID string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.storeID, d.modelID
}

// Set replaces both cached ids.
func (d *Defaults) Set(storeID, modelID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.storeID = storeID
	d.modelID = modelID
}

// Refresh resolves the store named storeName (creating it if absent) and the
// most recently created authorization model in it, then replaces both cached
// ids. A store without any model fails with [ErrNoModel].
func (d *Defaults) Refresh(ctx context.Context, c *Client, storeName string) error {
	store, err := c.EnsureStore(ctx, storeName)
	if err != nil {
		return err
	}
	model, err := c.LatestModel(ctx, store.ID)
	if err != nil {
		return err
	}
	if model == nil {
		return fmt.Errorf("store %q: %w", storeName, ErrNoModel)
	}
	d.Set(store.ID, model.ID)
	return nil
}
