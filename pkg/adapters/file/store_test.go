package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/routeflow/pkg/adapters/file"
	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure Store implements RouteStore
var _ ports.RouteStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunRouteStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "route-a", &domain.Route{ID: "route-a"}))
	require.NoError(t, store.Save(ctx, "route-a", &domain.Route{ID: "route-a", FromAmount: "2"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are cleaned up after overwrite")
	assert.Equal(t, "route-a.json", entries[0].Name())

	loaded, err := store.Load(ctx, "route-a")
	require.NoError(t, err)
	assert.Equal(t, "2", loaded.FromAmount)

	// A leftover temp file from a crash is not a route.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tmp-route-b-123.json"), []byte("{"), 0o644))
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"route-a"}, ids)
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, "", &domain.Route{}))
	assert.Error(t, store.Save(ctx, "../escape", &domain.Route{}))
	_, err := store.Load(ctx, "a/b")
	assert.Error(t, err)
}

func TestFileStore_ListMissingDir(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "missing"))
	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
