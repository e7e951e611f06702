package metadata

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/swiftserve/apierr"
	"github.com/robert-malhotra/swiftserve/internal/units"
)

func countingBuild(calls *atomic.Int64) BuildFunc {
	return func(_ context.Context, path string, u *units.Map) (*Object, error) {
		calls.Add(1)
		o := NewObject()
		o.Set("filename", String(path))
		o.Set("units", Units(u))
		return o, nil
	}
}

func tempSnapshot(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("snapshot"), 0o644))
	return p
}

func TestCacheHitAndSignature(t *testing.T) {
	var calls atomic.Int64
	c, err := NewCache(8, countingBuild(&calls))
	require.NoError(t, err)

	path := tempSnapshot(t, "a.hdf5")
	ctx := context.Background()
	u1 := &units.Map{Roles: map[string]units.Quantity{"mass": {Value: 1, Unit: "g"}}}
	u2 := &units.Map{Roles: map[string]units.Quantity{"mass": {Value: 2, Unit: "g"}}}

	first, hit, err := c.Get(ctx, path, u1)
	require.NoError(t, err)
	require.False(t, hit)

	second, hit, err := c.Get(ctx, path, u1)
	require.NoError(t, err)
	require.True(t, hit)
	require.Same(t, first, second)

	_, hit, err = c.Get(ctx, path, u2)
	require.NoError(t, err)
	require.False(t, hit)

	require.Equal(t, int64(2), calls.Load())
	stats := c.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(2), stats.Misses)
	require.Equal(t, 2, stats.Len)
}

func TestCacheInvalidatesOnChange(t *testing.T) {
	var calls atomic.Int64
	c, err := NewCache(8, countingBuild(&calls))
	require.NoError(t, err)

	path := tempSnapshot(t, "a.hdf5")
	ctx := context.Background()

	_, _, err = c.Get(ctx, path, nil)
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	_, hit, err := c.Get(ctx, path, nil)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, os.WriteFile(path, []byte("snapshot, rewritten"), 0o644))
	require.NoError(t, os.Chtimes(path, later, later))
	_, hit, err = c.Get(ctx, path, nil)
	require.NoError(t, err)
	require.False(t, hit, "a size change must invalidate even with the same mtime")

	_, hit, err = c.Get(ctx, path, nil)
	require.NoError(t, err)
	require.True(t, hit)

	require.Equal(t, int64(3), calls.Load())
	require.Equal(t, int64(2), c.Stats().Stale)
	require.Zero(t, c.Stats().Evictions)
}

func TestCacheBounded(t *testing.T) {
	var calls atomic.Int64
	c, err := NewCache(1, countingBuild(&calls))
	require.NoError(t, err)

	a, b := tempSnapshot(t, "a.hdf5"), tempSnapshot(t, "b.hdf5")
	ctx := context.Background()
	for _, p := range []string{a, b, a} {
		_, hit, err := c.Get(ctx, p, nil)
		require.NoError(t, err)
		require.False(t, hit)
	}
	require.Equal(t, int64(3), calls.Load())
	require.Equal(t, int64(2), c.Stats().Evictions)
	require.Equal(t, 1, c.Stats().Len)

	c.Purge()
	require.Zero(t, c.Stats().Len)
	require.Equal(t, int64(2), c.Stats().Evictions)
}

func TestCacheErrors(t *testing.T) {
	_, err := NewCache(0, nil)
	require.Error(t, err)

	c, err := NewCache(2, nil)
	require.NoError(t, err)
	_, _, err = c.Get(context.Background(), filepath.Join(t.TempDir(), "gone.hdf5"), nil)
	require.True(t, apierr.Has(err, apierr.DatasetPathInvalid))
	require.Zero(t, c.Stats().Misses)
}
