package repository

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"orgscope/internal/permission/domain"
)

// DefaultLoadTimeout bounds a shared upstream lookup.
const DefaultLoadTimeout = 10 * time.Second

// CachedRepository wraps a Repository with a short-lived LRU and collapses concurrent
// lookups for the same key into one upstream query.
type CachedRepository struct {
	next  Repository
	scope Scope
	cache *lru.LRU[string, domain.RoleSet]
	group singleflight.Group
	// loadTimeout bounds the shared lookup, which outlives the caller that started it.
	loadTimeout time.Duration
}

// NewCachedRepository returns a caching Repository. size <= 0 defaults to 1024 entries;
// ttl <= 0 defaults to 30 seconds. Failed lookups are never cached.
func NewCachedRepository(next Repository, scope Scope, size int, ttl time.Duration) *CachedRepository {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedRepository{
		next:  next,
		scope: scope,
		cache:       lru.NewLRU[string, domain.RoleSet](size, nil, ttl),
		loadTimeout: DefaultLoadTimeout,
	}
}

// ActiveRoles returns the cached role set or loads it from the wrapped repository.
// Concurrent callers share one lookup; a caller that gives up does not cancel it for the others.
func (c *CachedRepository) ActiveRoles(ctx context.Context, userID, orgID string) (domain.RoleSet, error) {
	key := c.key(userID, orgID)
	if set, ok := c.cache.Get(key); ok {
		return set, nil
	}
	ch := c.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		set, err := c.next.ActiveRoles(loadCtx, userID, orgID)
		if err != nil {
			return domain.RoleSet(0), err
		}
		c.cache.Add(key, set)
		return set, nil
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(domain.RoleSet), nil
	}
}

// Grant stores the assignment through the wrapped repository, when it supports writes,
// and drops the user's cached role sets.
func (c *CachedRepository) Grant(ctx context.Context, a *domain.RoleAssignment) error {
	g, ok := c.next.(Granter)
	if !ok {
		return ErrReadOnly
	}
	if err := g.Grant(ctx, a); err != nil {
		return err
	}
	c.Invalidate(a.UserID)
	return nil
}

// Invalidate drops every cached entry for userID.
func (c *CachedRepository) Invalidate(userID string) {
	prefix := userID + "\x00"
	for _, k := range c.cache.Keys() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			c.cache.Remove(k)
		}
	}
}

func (c *CachedRepository) key(userID, orgID string) string {
	if c.scope != ScopeTenant {
		orgID = ""
	}
	return userID + "\x00" + orgID
}
