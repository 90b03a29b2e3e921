package ofga

import (
	"context"
	"net/http"
	"strings"

	"github.com/samber/lo"
)

// CheckResponse is the full answer to a check query.
type CheckResponse struct {
	Allowed    bool   `json:"allowed"`
	Resolution string `json:"resolution,omitempty"`
}

// QueryOptions configures [Client.Check] and [Client.IsAllowed]. The zero
// value resolves the store and model from the client.
type QueryOptions struct {
	StoreID string
	ModelID string
}

// ListOptions configures [Client.ListObjects] and [Client.ListUsers].
type ListOptions struct {
	StoreID string
	ModelID string
	// IDsOnly strips the `type:` prefix from every returned reference.
	IDsOnly bool
}

// Check asks whether the relationship stated by key holds.
func (c *Client) Check(ctx context.Context, key TupleKey, opts QueryOptions) (*CheckResponse, error) {
	storeID, err := c.resolveStoreID(opts.StoreID)
	if err != nil {
		return nil, err
	}
	modelID, err := c.resolveModelID(opts.ModelID)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"tuple_key":              key,
		"authorization_model_id": modelID,
		"consistency":            consistencyMinimizeLatency,
	}
	resp := &CheckResponse{}
	if err := c.do(ctx, http.MethodPost, "/stores/"+storeID+"/check", nil, body, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// IsAllowed is [Client.Check] reduced to the allowed bit.
func (c *Client) IsAllowed(ctx context.Context, key TupleKey, opts QueryOptions) (bool, error) {
	resp, err := c.Check(ctx, key, opts)
	if err != nil {
		return false, err
	}
	return resp.Allowed, nil
}

// ListObjects returns every object of objectType the user has the given
// relation on, following pagination until the full result is collected.
func (c *Client) ListObjects(ctx context.Context, user, relation, objectType string, opts ListOptions) ([]string, error) {
	storeID, err := c.resolveStoreID(opts.StoreID)
	if err != nil {
		return nil, err
	}
	modelID, err := c.resolveModelID(opts.ModelID)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"user":                   user,
		"relation":               relation,
		"type":                   objectType,
		"authorization_model_id": modelID,
		"consistency":            consistencyMinimizeLatency,
	}
	objects, err := paginate[string](ctx, c, http.MethodPost, "/stores/"+storeID+"/list-objects", nil, body, "objects", bodyCursor)
	if err != nil {
		return nil, err
	}
	if opts.IDsOnly {
		objects = stripTypePrefixes(objects)
	}
	return objects, nil
}

// ListUsers returns every user holding the given relation on object,
// following pagination until the full result is collected. The object is
// given in `type:id` form.
func (c *Client) ListUsers(ctx context.Context, object, relation string, opts ListOptions) ([]string, error) {
	storeID, err := c.resolveStoreID(opts.StoreID)
	if err != nil {
		return nil, err
	}
	modelID, err := c.resolveModelID(opts.ModelID)
	if err != nil {
		return nil, err
	}
	objectType, objectID, _ := strings.Cut(object, ":")
	body := map[string]any{
		"object": map[string]any{
			"type": objectType,
			"id":   objectID,
		},
		"relation":               relation,
		"authorization_model_id": modelID,
		"consistency":            consistencyMinimizeLatency,
	}
	users, err := paginate[string](ctx, c, http.MethodPost, "/stores/"+storeID+"/list-users", nil, body, "users", bodyCursor)
	if err != nil {
		return nil, err
	}
	if opts.IDsOnly {
		users = stripTypePrefixes(users)
	}
	return users, nil
}

// stripTypePrefixes turns `type:id` references into bare ids by splitting on
// the first colon.
func stripTypePrefixes(refs []string) []string {
	return lo.Map(refs, func(ref string, _ int) string {
		if _, id, found := strings.Cut(ref, ":"); found {
			return id
		}
		return ref
	})
}
