package ofga_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trevex/ofga"
)

func TestGetStoreAbsentIsNotAnError(t *testing.T) {
	_, client := newServerAndClient(t)

	store, err := client.GetStore(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.NoError(t, err)
	require.Nil(t, store)
}

func TestStoreLifecycle(t *testing.T) {
	_, client := newServerAndClient(t)
	ctx := context.Background()

	created, err := client.CreateStore(ctx, "mystore")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "mystore", created.Name)

	fetched, err := client.GetStore(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, fetched.ID)

	require.NoError(t, client.DeleteStore(ctx, created.ID))

	fetched, err = client.GetStore(ctx, created.ID)
	require.NoError(t, err)
	require.Nil(t, fetched)
}

func TestStoreByName(t *testing.T) {
	_, client := newServerAndClient(t)
	ctx := context.Background()

	store, err := client.StoreByName(ctx, "mystore")
	require.NoError(t, err)
	require.Nil(t, store)

	created, err := client.CreateStore(ctx, "mystore")
	require.NoError(t, err)
	_, err = client.CreateStore(ctx, "otherstore")
	require.NoError(t, err)

	store, err = client.StoreByName(ctx, "mystore")
	require.NoError(t, err)
	require.Equal(t, created.ID, store.ID)
}

func TestStoreByNameAmbiguous(t *testing.T) {
	_, client := newServerAndClient(t)
	ctx := context.Background()

	// store names are not unique server-side
	_, err := client.CreateStore(ctx, "mystore")
	require.NoError(t, err)
	_, err = client.CreateStore(ctx, "mystore")
	require.NoError(t, err)

	_, err = client.StoreByName(ctx, "mystore")
	require.ErrorIs(t, err, ofga.ErrAmbiguousStore)
}

func TestEnsureStoreIsIdempotentByName(t *testing.T) {
	_, client := newServerAndClient(t)
	ctx := context.Background()

	first, err := client.EnsureStore(ctx, "mystore")
	require.NoError(t, err)

	second, err := client.EnsureStore(ctx, "mystore")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	stores, err := client.ListStores(ctx, "mystore")
	require.NoError(t, err)
	require.Len(t, stores, 1)
}

func TestListStoresAcrossPages(t *testing.T) {
	srv, client := newServerAndClient(t)
	ctx := context.Background()
	srv.PageSize = 2

	names := []string{"one", "two", "three", "four", "five"}
	for _, name := range names {
		_, err := client.CreateStore(ctx, name)
		require.NoError(t, err)
	}

	stores, err := client.ListStores(ctx, "")
	require.NoError(t, err)
	require.Len(t, stores, len(names))
	for i, store := range stores {
		require.Equal(t, names[i], store.Name)
	}
}
