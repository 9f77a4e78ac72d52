package workspace_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/lucy/internal/workspace"
)

func TestFileStoreFactoryCachesPerTenant(t *testing.T) {
	factory, err := workspace.NewFileStoreFactory(filepath.Join(t.TempDir(), "root"))
	require.NoError(t, err)

	storeA := factory.Store("tenant-a")
	storeAAgain := factory.Store("tenant-a")
	require.Same(t, storeA, storeAAgain)

	ctx := context.Background()
	require.NoError(t, storeA.Put(ctx, "skills/foo/SKILL.md", []byte("hello")))

	tenants, err := factory.Tenants(ctx)
	require.NoError(t, err)
	require.Contains(t, tenants, "tenant-a")
}

func TestFileStoreFactoryIsolatesTenants(t *testing.T) {
	factory, err := workspace.NewFileStoreFactory(filepath.Join(t.TempDir(), "root"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, factory.Store("tenant-a").Put(ctx, "activity.log", []byte("a")))
	require.NoError(t, factory.Store("tenant-b").Put(ctx, "activity.log", []byte("b")))

	data, ok, err := factory.Store("tenant-a").Get(ctx, "activity.log")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", string(data))
}

func TestFileStoreFactoryEmptyRootHasNoTenants(t *testing.T) {
	factory, err := workspace.NewFileStoreFactory(filepath.Join(t.TempDir(), "root"))
	require.NoError(t, err)

	tenants, err := factory.Tenants(context.Background())
	require.NoError(t, err)
	require.Empty(t, tenants)
}
