package metadata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/robert-malhotra/swiftserve/apierr"
	"github.com/robert-malhotra/swiftserve/internal/units"
)

// BuildFunc builds the metadata object of a snapshot.
type BuildFunc func(ctx context.Context, path string, u *units.Map) (*Object, error)

type cacheKey struct {
	path  string
	units uint64
}

type cacheEntry struct {
	size  int64
	mtime time.Time
	obj   *Object
}

// CacheStats reports cache activity since creation. Evictions counts only
// entries dropped to stay within capacity.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Stale     int64
	Evictions int64
	Len       int
}

// Cache is a bounded LRU of built metadata objects keyed by path and units
// signature. Every hit is checked against the file's current size and
// modification time; an entry whose file changed is dropped and rebuilt.
//
// Cached objects are shared between callers and must not be modified.
type Cache struct {
	cache *lru.Cache[cacheKey, *cacheEntry]
	build BuildFunc

	hits      atomic.Int64
	misses    atomic.Int64
	stale     atomic.Int64
	evictions atomic.Int64
}

// NewCache creates a cache holding at most size objects, filled by build.
// A nil build uses Build with default open options.
func NewCache(size int, build BuildFunc) (*Cache, error) {
	if build == nil {
		build = func(ctx context.Context, path string, u *units.Map) (*Object, error) {
			return Build(ctx, path, u)
		}
	}
	cache, err := lru.New[cacheKey, *cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create metadata cache: %w", err)
	}
	return &Cache{cache: cache, build: build}, nil
}

// Get returns the metadata object for path and u, building it on a miss.
// hit reports whether the object came from the cache.
func (c *Cache) Get(ctx context.Context, path string, u *units.Map) (obj *Object, hit bool, err error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, apierr.NewDatasetPathInvalid(path, err)
		}
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}

	key := cacheKey{path: path, units: u.Signature()}
	if e, ok := c.cache.Get(key); ok {
		if e.size == fi.Size() && e.mtime.Equal(fi.ModTime()) {
			c.hits.Add(1)
			return e.obj, true, nil
		}
		c.stale.Add(1)
		c.cache.Remove(key)
	}
	c.misses.Add(1)

	obj, err = c.build(ctx, path, u)
	if err != nil {
		return nil, false, err
	}
	if c.cache.Add(key, &cacheEntry{size: fi.Size(), mtime: fi.ModTime(), obj: obj}) {
		c.evictions.Add(1)
	}
	return obj, false, nil
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.cache.Purge()
}

// Stats returns current cache statistics.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Stale:     c.stale.Load(),
		Evictions: c.evictions.Load(),
		Len:       c.cache.Len(),
	}
}
