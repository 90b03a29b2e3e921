package ofga

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Consistency hint sent with every read and query request: the service may
// serve slightly stale data in exchange for lower latency.
const consistencyMinimizeLatency = "MINIMIZE_LATENCY"

// Store is a named, isolated namespace holding authorization models and
// tuples.
type Store struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListStores returns all stores, optionally filtered by name, following
// pagination until the full listing is collected.
func (c *Client) ListStores(ctx context.Context, name string) ([]Store, error) {
	params := url.Values{}
	params.Set("consistency", consistencyMinimizeLatency)
	if name != "" {
		params.Set("name", name)
	}
	return paginate[Store](ctx, c, http.MethodGet, "/stores", params, nil, "stores", queryCursor)
}

// CreateStore creates a new store. Store names are not unique server-side,
// so calling this twice with the same name creates two stores; use
// [Client.EnsureStore] for find-or-create semantics.
func (c *Client) CreateStore(ctx context.Context, name string) (*Store, error) {
	store := &Store{}
	body := map[string]any{"name": name}
	if err := c.do(ctx, http.MethodPost, "/stores", nil, body, store); err != nil {
		return nil, err
	}
	return store, nil
}

// GetStore fetches a store by id. A missing store is not an error: it is
// reported as (nil, nil).
func (c *Client) GetStore(ctx context.Context, storeID string) (*Store, error) {
	storeID, err := c.resolveStoreID(storeID)
	if err != nil {
		return nil, err
	}
	store := &Store{}
	err = c.do(ctx, http.MethodGet, "/stores/"+storeID, nil, nil, store)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// StoreByName looks a store up by its exact name. No match is reported as
// (nil, nil). More than one match fails with [ErrAmbiguousStore] rather than
// silently picking one.
func (c *Client) StoreByName(ctx context.Context, name string) (*Store, error) {
	stores, err := c.ListStores(ctx, name)
	if err != nil {
		return nil, err
	}
	switch len(stores) {
	case 0:
		return nil, nil
	case 1:
		return &stores[0], nil
	default:
		return nil, fmt.Errorf("%w: %q matches %d stores", ErrAmbiguousStore, name, len(stores))
	}
}

// EnsureStore finds the store named name, creating it when absent.
// Idempotent by name, not by content.
func (c *Client) EnsureStore(ctx context.Context, name string) (*Store, error) {
	store, err := c.StoreByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if store != nil {
		return store, nil
	}
	return c.CreateStore(ctx, name)
}

// DeleteStore deletes a store by id.
func (c *Client) DeleteStore(ctx context.Context, storeID string) error {
	storeID, err := c.resolveStoreID(storeID)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/stores/"+storeID, nil, nil, nil)
}
