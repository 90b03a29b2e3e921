package ofga

import (
	"context"
	"encoding/json"
	"net/http"
)

// AuthorizationModel is one immutable version of a store's schema. New
// versions are created, never patched; the service lists them newest-first.
type AuthorizationModel struct {
	ID              string          `json:"id"`
	SchemaVersion   string          `json:"schema_version,omitempty"`
	TypeDefinitions json.RawMessage `json:"type_definitions,omitempty"`
	Conditions      json.RawMessage `json:"conditions,omitempty"`
}

// ListModels returns all authorization model versions of a store,
// newest-first, following pagination until the full listing is collected.
func (c *Client) ListModels(ctx context.Context, storeID string) ([]AuthorizationModel, error) {
	storeID, err := c.resolveStoreID(storeID)
	if err != nil {
		return nil, err
	}
	return paginate[AuthorizationModel](ctx, c, http.MethodGet, "/stores/"+storeID+"/authorization-models", nil, nil, "authorization_models", queryCursor)
}

// GetModel fetches a single authorization model version.
func (c *Client) GetModel(ctx context.Context, storeID, modelID string) (*AuthorizationModel, error) {
	storeID, err := c.resolveStoreID(storeID)
	if err != nil {
		return nil, err
	}
	modelID, err = c.resolveModelID(modelID)
	if err != nil {
		return nil, err
	}
	var resp struct {
		AuthorizationModel *AuthorizationModel `json:"authorization_model"`
	}
	if err := c.do(ctx, http.MethodGet, "/stores/"+storeID+"/authorization-models/"+modelID, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.AuthorizationModel, nil
}

// CreateModel publishes schema as a new authorization model version and
// returns its id. Existing versions are never modified.
func (c *Client) CreateModel(ctx context.Context, storeID string, schema json.RawMessage) (string, error) {
	storeID, err := c.resolveStoreID(storeID)
	if err != nil {
		return "", err
	}
	var resp struct {
		AuthorizationModelID string `json:"authorization_model_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/stores/"+storeID+"/authorization-models", nil, schema, &resp); err != nil {
		return "", err
	}
	return resp.AuthorizationModelID, nil
}

// LatestModel returns the most recently created model of a store, or
// (nil, nil) when the store has no models yet.
func (c *Client) LatestModel(ctx context.Context, storeID string) (*AuthorizationModel, error) {
	models, err := c.ListModels(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	return &models[0], nil
}
