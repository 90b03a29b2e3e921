package ofga

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// cursorFunc injects a continuation token into the next page's request.
// Which of the two request parts it targets depends on the endpoint kind,
// so the right injector is picked once at the call site.
type cursorFunc func(params url.Values, body map[string]any, token string)

// queryCursor is used by GET-style endpoints.
func queryCursor(params url.Values, _ map[string]any, token string) {
	params.Set("continuation_token", token)
}

// bodyCursor is used by POST-style endpoints.
func bodyCursor(_ url.Values, body map[string]any, token string) {
	body["continuation_token"] = token
}

// paginate follows the continuation-token protocol until the server stops
// returning a token, collecting the items found under itemsKey of every page
// in response order. An empty itemsKey decodes the whole body as the item
// array instead.
//
// Any request failure aborts the loop and discards everything accumulated so
// far; there are no partial results.
func paginate[T any](ctx context.Context, c *Client, method, endpoint string, params url.Values, body map[string]any, itemsKey string, cursor cursorFunc) ([]T, error) {
	if params == nil {
		params = url.Values{}
	}
	if body == nil {
		body = map[string]any{}
	}
	results := []T{}
	for {
		var payload any
		if len(body) > 0 {
			payload = body
		}
		data, err := c.doRaw(ctx, method, endpoint, params, payload)
		if err != nil {
			return nil, err
		}

		itemsData := json.RawMessage(data)
		token := ""
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err == nil {
			if itemsKey != "" {
				itemsData = fields[itemsKey]
			}
			if raw, ok := fields["continuation_token"]; ok {
				if err := json.Unmarshal(raw, &token); err != nil {
					return nil, fmt.Errorf("decoding continuation token of %s %s: %w", method, endpoint, err)
				}
			}
		}
		if len(itemsData) > 0 {
			items := []T{}
			if err := json.Unmarshal(itemsData, &items); err != nil {
				return nil, fmt.Errorf("decoding %q of %s %s response: %w", itemsKey, method, endpoint, err)
			}
			results = append(results, items...)
		}

		if token == "" {
			return results, nil
		}
		cursor(params, body, token)
	}
}
