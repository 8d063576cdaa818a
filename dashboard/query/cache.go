package query

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/textileio/minion/util"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultFetchTimeout bounds background refreshes, which outlive the
	// caller's context.
	DefaultFetchTimeout = 30 * time.Second

	updatesBuffer = 16
)

// FetchFunc loads the value for a key.
type FetchFunc func(ctx context.Context) (interface{}, error)

type entry struct {
	value     interface{}
	err       error
	updatedAt time.Time
	checkedAt time.Time
	stale     bool
	// gen counts invalidations. A load only clears stale if no
	// invalidation landed while it ran.
	gen uint64
}

// Cache is a keyed read cache. Stale entries are served immediately while a
// single background refresh runs. Concurrent fetches of the same key share
// one request. Failed fetches are never retried; the next invalidation
// triggers the next attempt.
type Cache struct {
	lk      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group

	staleTime    time.Duration
	fetchTimeout time.Duration
	updates      chan string
	now          func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithStaleTime marks entries stale once they are older than d. Zero means
// entries stay fresh until invalidated.
func WithStaleTime(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.staleTime = d
	}
}

// WithFetchTimeout sets the timeout of background refreshes.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.fetchTimeout = d
	}
}

// NewCache returns an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:      make(map[string]*entry),
		fetchTimeout: DefaultFetchTimeout,
		updates:      make(chan string, updatesBuffer),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Updates receives the key of every entry written by a fetch. Sends never
// block; a slow reader may miss keys but will see the latest values.
func (c *Cache) Updates() <-chan string {
	return c.updates
}

// Fetch returns the value for key. A fresh entry is returned as is. A stale
// entry is returned immediately and refreshed in the background. A missing
// entry is loaded with fn before returning.
//
// An entry holding only an error returns that error, so a failed read shows
// up as absent data. An entry whose refresh failed keeps its previous value.
func (c *Cache) Fetch(ctx context.Context, key string, fn FetchFunc) (interface{}, error) {
	c.lk.Lock()
	e, ok := c.entries[key]
	if ok {
		value, err := e.value, e.err
		stale := c.isStale(e)
		c.lk.Unlock()
		if stale {
			c.refresh(ctx, key, fn)
		}
		if value != nil {
			return value, nil
		}
		return nil, err
	}
	c.lk.Unlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.load(ctx, key, fn)
	})
	return v, err
}

// Peek returns the cached value for key without fetching.
func (c *Cache) Peek(key string) (interface{}, bool) {
	c.lk.Lock()
	defer c.lk.Unlock()
	e, ok := c.entries[key]
	if !ok || e.value == nil {
		return nil, false
	}
	return e.value, true
}

// Invalidate marks every entry whose key starts with prefix as stale and
// returns how many were marked.
func (c *Cache) Invalidate(prefix string) int {
	c.lk.Lock()
	defer c.lk.Unlock()
	var n int
	for k, e := range c.entries {
		if strings.HasPrefix(k, prefix) {
			e.stale = true
			e.gen++
			n++
		}
	}
	return n
}

func (c *Cache) isStale(e *entry) bool {
	if e.stale {
		return true
	}
	return c.staleTime > 0 && c.now().Sub(e.checkedAt) > c.staleTime
}

func (c *Cache) refresh(ctx context.Context, key string, fn FetchFunc) {
	ctx, cancel := context.WithTimeout(util.DetachedContext(ctx), c.fetchTimeout)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.load(ctx, key, fn)
	})
	go func() {
		defer cancel()
		if res := <-ch; res.Err != nil {
			log.Debugf("refreshing %s: %s", key, res.Err)
		}
	}()
}

func (c *Cache) load(ctx context.Context, key string, fn FetchFunc) (interface{}, error) {
	var gen uint64
	c.lk.Lock()
	if e, ok := c.entries[key]; ok {
		gen = e.gen
	}
	c.lk.Unlock()

	v, err := fn(ctx)

	c.lk.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	now := c.now()
	if err != nil {
		e.err = err
	} else {
		e.value = v
		e.err = nil
		e.updatedAt = now
	}
	e.checkedAt = now
	if e.gen == gen {
		e.stale = false
	}
	c.lk.Unlock()

	select {
	case c.updates <- key:
	default:
	}
	return v, err
}

// UpdatedAt returns when key last loaded successfully.
func (c *Cache) UpdatedAt(key string) (time.Time, bool) {
	c.lk.Lock()
	defer c.lk.Unlock()
	e, ok := c.entries[key]
	if !ok || e.updatedAt.IsZero() {
		return time.Time{}, false
	}
	return e.updatedAt, true
}
