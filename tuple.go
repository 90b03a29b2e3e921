package ofga

import (
	"context"
	"net/http"
	"time"

	"github.com/samber/lo"
)

// TupleKey is a single authorization fact: user has relation on object.
// User and object follow the `type:id` convention, e.g. "user:anne" and
// "doc:readme". Equality is structural across all three fields.
type TupleKey struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// Tuple is a stored [TupleKey] together with its write timestamp.
type Tuple struct {
	Key       TupleKey  `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

// The service rejects write requests carrying more than 100 tuple keys.
const writeBatchLimit = 100

// writeBatches deduplicates keys by structural equality (first occurrence
// wins) and partitions them into request-sized chunks, preserving order.
func writeBatches(keys []TupleKey) [][]TupleKey {
	keys = lo.Uniq(keys)
	if len(keys) == 0 {
		return nil
	}
	return lo.Chunk(keys, writeBatchLimit)
}

// WriteOptions configures [Client.WriteTuples]. The zero value resolves the
// store and model from the client and ignores duplicate tuples.
type WriteOptions struct {
	StoreID string
	ModelID string
	// ErrorOnDuplicate reports already-present tuples as an error instead of
	// skipping them. Leave it off when a call may be retried.
	ErrorOnDuplicate bool
}

// DeleteOptions configures [Client.DeleteTuples]. The zero value resolves
// the store and model from the client and ignores missing tuples.
type DeleteOptions struct {
	StoreID string
	ModelID string
	// ErrorOnMissing reports absent tuples as an error instead of skipping
	// them. Leave it off when a call may be retried.
	ErrorOnMissing bool
}

// ReadOptions configures [Client.ReadTuples].
type ReadOptions struct {
	StoreID string
}

// WriteTuples writes keys in deduplicated batches of at most 100, strictly
// in sequence. Batches are not atomic with respect to each other: when batch
// k fails, batches 1..k-1 have already been committed and are not rolled
// back. Callers retrying after a failure must therefore keep duplicates
// tolerated (the default), so re-submitting applied tuples is harmless.
func (c *Client) WriteTuples(ctx context.Context, keys []TupleKey, opts WriteOptions) error {
	storeID, err := c.resolveStoreID(opts.StoreID)
	if err != nil {
		return err
	}
	modelID, err := c.resolveModelID(opts.ModelID)
	if err != nil {
		return err
	}
	onDuplicate := "ignore"
	if opts.ErrorOnDuplicate {
		onDuplicate = "error"
	}
	for _, batch := range writeBatches(keys) {
		body := map[string]any{
			"writes": map[string]any{
				"tuple_keys":   batch,
				"on_duplicate": onDuplicate,
			},
			"authorization_model_id": modelID,
		}
		if err := c.do(ctx, http.MethodPost, "/stores/"+storeID+"/write", nil, body, nil); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTuples deletes keys in deduplicated batches of at most 100, with the
// same sequencing and partial-application caveats as [Client.WriteTuples]:
// retries must keep missing tuples tolerated (the default).
func (c *Client) DeleteTuples(ctx context.Context, keys []TupleKey, opts DeleteOptions) error {
	storeID, err := c.resolveStoreID(opts.StoreID)
	if err != nil {
		return err
	}
	modelID, err := c.resolveModelID(opts.ModelID)
	if err != nil {
		return err
	}
	onMissing := "ignore"
	if opts.ErrorOnMissing {
		onMissing = "error"
	}
	for _, batch := range writeBatches(keys) {
		body := map[string]any{
			"deletes": map[string]any{
				"tuple_keys": batch,
				"on_missing": onMissing,
			},
			"authorization_model_id": modelID,
		}
		if err := c.do(ctx, http.MethodPost, "/stores/"+storeID+"/write", nil, body, nil); err != nil {
			return err
		}
	}
	return nil
}

// ReadTuples returns every tuple matching filter, following pagination until
// the full set is collected. A zero filter reads the store's complete tuple
// set; partially filled filters match on the fields that are set.
func (c *Client) ReadTuples(ctx context.Context, filter TupleKey, opts ReadOptions) ([]Tuple, error) {
	storeID, err := c.resolveStoreID(opts.StoreID)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"consistency": consistencyMinimizeLatency,
	}
	if filter != (TupleKey{}) {
		key := map[string]any{}
		if filter.User != "" {
			key["user"] = filter.User
		}
		if filter.Relation != "" {
			key["relation"] = filter.Relation
		}
		if filter.Object != "" {
			key["object"] = filter.Object
		}
		body["tuple_key"] = key
	}
	return paginate[Tuple](ctx, c, http.MethodPost, "/stores/"+storeID+"/read", nil, body, "tuples", bodyCursor)
}
