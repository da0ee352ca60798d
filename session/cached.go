package session

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/statemesh/core"
)

const defaultCacheSize = 256

// CachedStore is a read-through LRU cache in front of another SessionStore.
// The cache is refreshed only after the inner store acknowledged a write, and
// any failed write evicts the key so the next read goes to the source.
type CachedStore struct {
	inner core.SessionStore
	cache *lru.Cache[core.SessionKey, *core.Session]
}

// NewCachedStore wraps inner with an LRU of size entries (256 when size <= 0).
func NewCachedStore(inner core.SessionStore, size int) (*CachedStore, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[core.SessionKey, *core.Session](size)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &CachedStore{inner: inner, cache: cache}, nil
}

// Create implements core.SessionStore.
func (c *CachedStore) Create(ctx context.Context, sess *core.Session) (core.CommitToken, error) {
	tok, err := c.inner.Create(ctx, sess)
	if err != nil {
		return tok, err
	}
	c.cache.Add(sess.Key, sess.Clone())
	return tok, nil
}

// Get implements core.SessionStore.
func (c *CachedStore) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sess, ok := c.cache.Get(key); ok {
		return sess.Clone(), nil
	}
	sess, err := c.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, sess.Clone())
	return sess, nil
}

// Put implements core.SessionStore.
func (c *CachedStore) Put(ctx context.Context, sess *core.Session) (core.CommitToken, error) {
	tok, err := c.inner.Put(ctx, sess)
	if err != nil {
		c.cache.Remove(sess.Key)
		return tok, err
	}
	snap := sess.Clone()
	snap.Updated = tok.CommittedAt
	c.cache.Add(sess.Key, snap)
	return tok, nil
}

// List implements core.SessionStore. Listings are never cached.
func (c *CachedStore) List(ctx context.Context, appName, userID string) ([]core.SessionSummary, error) {
	return c.inner.List(ctx, appName, userID)
}

// Delete implements core.SessionStore.
func (c *CachedStore) Delete(ctx context.Context, key core.SessionKey) error {
	c.cache.Remove(key)
	return c.inner.Delete(ctx, key)
}

// Len reports the number of cached sessions.
func (c *CachedStore) Len() int { return c.cache.Len() }
