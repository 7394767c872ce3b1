package fdc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"nutrition-resolver/internal/nutrition"

	"golang.org/x/sync/singleflight"
)

var multipleSpaces = regexp.MustCompile(`\s+`)

// sharedCallTimeout bounds an upstream call shared by concurrent lookups.
const sharedCallTimeout = 25 * time.Second

// CachedClient wraps a FoodDatabase and stores successful lookups for ttl.
// Entries older than ttl are refetched; failures are never cached.
// Concurrent identical lookups share one upstream call, which is detached
// from any single caller's cancellation.
type CachedClient struct {
	next        nutrition.FoodDatabase
	repo        *CacheRepository
	ttl         time.Duration
	callTimeout time.Duration
	group       singleflight.Group
	now         func() time.Time
}

// NewCachedClient creates a new CachedClient.
func NewCachedClient(next nutrition.FoodDatabase, repo *CacheRepository, ttl time.Duration) *CachedClient {
	return &CachedClient{
		next:        next,
		repo:        repo,
		ttl:         ttl,
		callTimeout: sharedCallTimeout,
		now:         time.Now,
	}
}

// SearchFoods checks the cache first, then the wrapped database.
func (c *CachedClient) SearchFoods(ctx context.Context, query string, pageSize int) ([]nutrition.CandidateFood, error) {
	key := fmt.Sprintf("search:%d:%s", pageSize, normalizeQuery(query))

	var cached []nutrition.CandidateFood
	if c.load(ctx, key, &cached) {
		return cached, nil
	}

	v, err := c.shared(ctx, key, func(callCtx context.Context) (interface{}, error) {
		foods, err := c.next.SearchFoods(callCtx, query, pageSize)
		if err != nil {
			return nil, err
		}
		if len(foods) > 0 {
			c.store(callCtx, key, foods)
		}
		return foods, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]nutrition.CandidateFood), nil
}

// GetFood checks the cache first, then the wrapped database.
func (c *CachedClient) GetFood(ctx context.Context, id string) (*nutrition.FoodDetail, error) {
	key := "food:" + id

	var cached nutrition.FoodDetail
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}

	v, err := c.shared(ctx, key, func(callCtx context.Context) (interface{}, error) {
		detail, err := c.next.GetFood(callCtx, id)
		if err != nil {
			return nil, err
		}
		if detail != nil {
			c.store(callCtx, key, detail)
		}
		return detail, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*nutrition.FoodDetail), nil
}

// Cleanup removes entries older than the TTL.
func (c *CachedClient) Cleanup(ctx context.Context) (int64, error) {
	return c.repo.DeleteOlderThan(ctx, c.now().Add(-c.ttl))
}

// shared runs fn once per key across concurrent callers. Each caller stops
// waiting when its own ctx is done; the call itself keeps running for the
// others until callTimeout.
func (c *CachedClient) shared(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
		defer cancel()
		return fn(callCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *CachedClient) load(ctx context.Context, key string, out interface{}) bool {
	entry, err := c.repo.Get(ctx, key)
	if err != nil {
		log.Printf("Warning: lookup cache read failed: %v", err)
		return false
	}
	if entry == nil || c.now().Sub(entry.FetchedAt) > c.ttl {
		return false
	}
	if err := json.Unmarshal(entry.Payload, out); err != nil {
		log.Printf("Warning: corrupt lookup cache entry %s: %v", key, err)
		return false
	}
	return true
}

func (c *CachedClient) store(ctx context.Context, key string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("Warning: failed to marshal cache entry %s: %v", key, err)
		return
	}
	if err := c.repo.Put(ctx, key, payload, c.now()); err != nil {
		log.Printf("Warning: %v", err)
	}
}

func normalizeQuery(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	return multipleSpaces.ReplaceAllString(q, " ")
}
