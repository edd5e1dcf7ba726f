package jira

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Searcher runs a JQL search.
type Searcher interface {
	Search(ctx context.Context, jql string) (*SearchResult, error)
}

// CachedSearcher memoizes successful searches for a short time. It backs
// query previews, where the same JQL tends to be submitted repeatedly.
type CachedSearcher struct {
	next  Searcher
	cache *gocache.Cache
}

// NewCachedSearcher wraps next. A non-positive ttl defaults to one minute.
func NewCachedSearcher(next Searcher, ttl time.Duration) *CachedSearcher {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedSearcher{next: next, cache: gocache.New(ttl, 2*ttl)}
}

func (c *CachedSearcher) Search(ctx context.Context, jql string) (*SearchResult, error) {
	key := strings.TrimSpace(jql)
	if hit, ok := c.cache.Get(key); ok {
		return hit.(*SearchResult), nil
	}
	result, err := c.next.Search(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, result)
	return result, nil
}

// Flush drops every cached result.
func (c *CachedSearcher) Flush() {
	c.cache.Flush()
}
