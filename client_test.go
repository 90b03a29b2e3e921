package ofga_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/trevex/ofga"
	"github.com/trevex/ofga/fgatest"
)

func newServerAndClient(t *testing.T, options ...ofga.Option) (*fgatest.Server, *ofga.Client) {
	t.Helper()
	srv := fgatest.New()
	t.Cleanup(srv.Close)
	client, err := ofga.NewClient(srv.URL(), options...)
	require.NoError(t, err)
	return srv, client
}

func tupleFixtures(n int) []ofga.TupleKey {
	keys := make([]ofga.TupleKey, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, ofga.TupleKey{
			User:     fmt.Sprintf("user:%d", i),
			Relation: "viewer",
			Object:   "doc:1",
		})
	}
	return keys
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := ofga.NewClient("")
	require.Error(t, err)
}

func TestWithRetriesRecoversFromTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, `{"code":"internal_error"}`, http.StatusInternalServerError)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"stores": []ofga.Store{}}))
	}))
	t.Cleanup(srv.Close)

	client, err := ofga.NewClient(srv.URL, ofga.WithRetries(2))
	require.NoError(t, err)

	stores, err := client.ListStores(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, stores)
	require.EqualValues(t, 2, attempts.Load())
}

func TestWithH2CSpeaksCleartextHTTP2(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, 2, r.ProtoMajor)
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"stores": []ofga.Store{}}))
	})
	srv := httptest.NewServer(h2c.NewHandler(handler, &http2.Server{}))
	t.Cleanup(srv.Close)

	client, err := ofga.NewClient(srv.URL, ofga.WithH2C())
	require.NoError(t, err)

	stores, err := client.ListStores(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, stores)
}

func TestConcurrentChecksOnSharedClient(t *testing.T) {
	srv, client := newServerAndClient(t)
	ctx := context.Background()

	storeID, _ := srv.SeedStore("mystore")
	keys := tupleFixtures(10)
	srv.SeedTuples(storeID, keys...)
	require.NoError(t, client.LoadDefaults(ctx, "mystore"))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < 100; i++ {
		key := keys[i%len(keys)]
		g.Go(func() error {
			allowed, err := client.IsAllowed(ctx, key, ofga.QueryOptions{})
			if err != nil {
				return err
			}
			if !allowed {
				return fmt.Errorf("expected %v to be allowed", key)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestMissingIdentifiersAreConfigurationErrors(t *testing.T) {
	_, client := newServerAndClient(t)
	ctx := context.Background()

	key := ofga.TupleKey{User: "user:a", Relation: "viewer", Object: "doc:1"}

	err := client.WriteTuples(ctx, []ofga.TupleKey{key}, ofga.WriteOptions{})
	require.ErrorIs(t, err, ofga.ErrMissingStoreID)

	_, err = client.ReadTuples(ctx, ofga.TupleKey{}, ofga.ReadOptions{})
	require.ErrorIs(t, err, ofga.ErrMissingStoreID)

	err = client.WriteTuples(ctx, []ofga.TupleKey{key}, ofga.WriteOptions{StoreID: "somestore"})
	require.ErrorIs(t, err, ofga.ErrMissingModelID)

	_, err = client.Check(ctx, key, ofga.QueryOptions{StoreID: "somestore"})
	require.ErrorIs(t, err, ofga.ErrMissingModelID)
}

func TestExplicitIdentifierTakesPrecedence(t *testing.T) {
	srv, client := newServerAndClient(t, ofga.WithStoreID("configured"))
	ctx := context.Background()

	storeID, modelID := srv.SeedStore("mystore")
	key := ofga.TupleKey{User: "user:a", Relation: "viewer", Object: "doc:1"}

	// the configured id does not exist server-side, so only the explicit
	// override can succeed
	err := client.WriteTuples(ctx, []ofga.TupleKey{key}, ofga.WriteOptions{StoreID: storeID, ModelID: modelID})
	require.NoError(t, err)

	err = client.WriteTuples(ctx, []ofga.TupleKey{key}, ofga.WriteOptions{ModelID: modelID})
	var statusErr *ofga.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestLoadDefaults(t *testing.T) {
	srv, client := newServerAndClient(t)
	ctx := context.Background()

	storeID, modelID := srv.SeedStore("mystore")
	require.NoError(t, client.LoadDefaults(ctx, "mystore"))

	gotStore, gotModel := client.Defaults().IDs()
	require.Equal(t, storeID, gotStore)
	require.Equal(t, modelID, gotModel)

	// operations now need no explicit identifiers
	key := ofga.TupleKey{User: "user:a", Relation: "viewer", Object: "doc:1"}
	require.NoError(t, client.WriteTuples(ctx, []ofga.TupleKey{key}, ofga.WriteOptions{}))

	allowed, err := client.IsAllowed(ctx, key, ofga.QueryOptions{})
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestLoadDefaultsWithoutModel(t *testing.T) {
	_, client := newServerAndClient(t)

	// EnsureStore creates the store, but it has no model version yet
	err := client.LoadDefaults(context.Background(), "empty")
	require.ErrorIs(t, err, ofga.ErrNoModel)
}

func TestDefaultsAreSharedAcrossClients(t *testing.T) {
	srv, client := newServerAndClient(t)
	ctx := context.Background()

	srv.SeedStore("mystore")
	require.NoError(t, client.LoadDefaults(ctx, "mystore"))

	other, err := ofga.NewClient(srv.URL(), ofga.WithDefaults(client.Defaults()))
	require.NoError(t, err)

	key := ofga.TupleKey{User: "user:b", Relation: "viewer", Object: "doc:2"}
	require.NoError(t, other.WriteTuples(ctx, []ofga.TupleKey{key}, ofga.WriteOptions{}))

	tuples, err := other.ReadTuples(ctx, ofga.TupleKey{}, ofga.ReadOptions{})
	require.NoError(t, err)
	require.Len(t, tuples, 1)
	require.Equal(t, key, tuples[0].Key)
}

func TestDuplicateTuplesWrittenOnce(t *testing.T) {
	srv, client := newServerAndClient(t)
	ctx := context.Background()

	storeID, modelID := srv.SeedStore("mystore")
	srv.ResetCalls()

	keys := []ofga.TupleKey{
		{User: "user:a", Relation: "viewer", Object: "doc:1"},
		{User: "user:a", Relation: "viewer", Object: "doc:1"},
	}
	require.NoError(t, client.WriteTuples(ctx, keys, ofga.WriteOptions{StoreID: storeID, ModelID: modelID}))

	// one deduplicated batch, one request, one stored tuple
	require.Equal(t, 1, srv.Calls(http.MethodPost, "/write"))
	require.Equal(t, 1, srv.TupleCount(storeID))
}

func TestWriteTuplesErrorOnDuplicate(t *testing.T) {
	srv, client := newServerAndClient(t)
	ctx := context.Background()

	storeID, modelID := srv.SeedStore("mystore")
	key := ofga.TupleKey{User: "user:a", Relation: "viewer", Object: "doc:1"}
	opts := ofga.WriteOptions{StoreID: storeID, ModelID: modelID}

	require.NoError(t, client.WriteTuples(ctx, []ofga.TupleKey{key}, opts))
	// duplicate-tolerant by default, so a retry is safe
	require.NoError(t, client.WriteTuples(ctx, []ofga.TupleKey{key}, opts))

	opts.ErrorOnDuplicate = true
	err := client.WriteTuples(ctx, []ofga.TupleKey{key}, opts)
	var statusErr *ofga.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestDeleteTuplesErrorOnMissing(t *testing.T) {
	srv, client := newServerAndClient(t)
	ctx := context.Background()

	storeID, modelID := srv.SeedStore("mystore")
	key := ofga.TupleKey{User: "user:a", Relation: "viewer", Object: "doc:1"}
	opts := ofga.DeleteOptions{StoreID: storeID, ModelID: modelID}

	// missing-tolerant by default
	require.NoError(t, client.DeleteTuples(ctx, []ofga.TupleKey{key}, opts))

	opts.ErrorOnMissing = true
	err := client.DeleteTuples(ctx, []ofga.TupleKey{key}, opts)
	var statusErr *ofga.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestReadTuplesAcrossPages(t *testing.T) {
	srv, client := newServerAndClient(t)
	ctx := context.Background()

	storeID, _ := srv.SeedStore("mystore")
	keys := tupleFixtures(150)
	srv.SeedTuples(storeID, keys...)
	srv.ResetCalls()

	tuples, err := client.ReadTuples(ctx, ofga.TupleKey{}, ofga.ReadOptions{StoreID: storeID})
	require.NoError(t, err)
	require.Len(t, tuples, 150)
	// page size is 100, so the full set takes two requests
	require.Equal(t, 2, srv.Calls(http.MethodPost, "/read"))
	for i, tuple := range tuples {
		require.Equal(t, keys[i], tuple.Key)
	}
}

func TestReadTuplesFilter(t *testing.T) {
	srv, client := newServerAndClient(t)
	ctx := context.Background()

	storeID, _ := srv.SeedStore("mystore")
	srv.SeedTuples(storeID,
		ofga.TupleKey{User: "user:a", Relation: "viewer", Object: "doc:1"},
		ofga.TupleKey{User: "user:b", Relation: "viewer", Object: "doc:1"},
		ofga.TupleKey{User: "user:a", Relation: "editor", Object: "doc:2"},
	)

	tuples, err := client.ReadTuples(ctx, ofga.TupleKey{User: "user:a"}, ofga.ReadOptions{StoreID: storeID})
	require.NoError(t, err)
	require.Len(t, tuples, 2)

	tuples, err = client.ReadTuples(ctx, ofga.TupleKey{Relation: "viewer", Object: "doc:1"}, ofga.ReadOptions{StoreID: storeID})
	require.NoError(t, err)
	require.Len(t, tuples, 2)
}
