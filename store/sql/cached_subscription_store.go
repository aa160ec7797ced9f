package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhooks/core"
)

const subscriptionMatchCacheKeyPrefix = "go-webhooks::subscription_match::v1"

// CachedSubscriptionStore caches Match results per event and scope. Writes go
// to the base store first and then evict every key the old and new versions
// of the subscription could appear under.
type CachedSubscriptionStore struct {
	base  core.SubscriptionStore
	cache repositorycache.CacheService
}

func NewCachedSubscriptionStore(
	base core.SubscriptionStore,
	cacheService repositorycache.CacheService,
) (*CachedSubscriptionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base subscription store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: subscription cache service is required")
	}
	return &CachedSubscriptionStore{base: base, cache: cacheService}, nil
}

// SubscriptionMatchCacheKey returns
// go-webhooks::subscription_match::v1::<scope_id>::<event> with each segment
// URL-path escaped.
func SubscriptionMatchCacheKey(event core.EventName, scopeID string) string {
	return strings.Join([]string{
		subscriptionMatchCacheKeyPrefix,
		url.PathEscape(strings.TrimSpace(scopeID)),
		url.PathEscape(strings.TrimSpace(string(event))),
	}, "::")
}

func (s *CachedSubscriptionStore) Match(ctx context.Context, event core.EventName, scopeID string) ([]core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	scopeID = strings.TrimSpace(scopeID)
	matches, err := repositorycache.GetOrFetch(ctx, s.cache, SubscriptionMatchCacheKey(event, scopeID), func(ctx context.Context) ([]core.Subscription, error) {
		fetched, fetchErr := s.base.Match(ctx, event, scopeID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return cloneSubscriptions(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneSubscriptions(matches), nil
}

func (s *CachedSubscriptionStore) Create(ctx context.Context, sub core.Subscription) (core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	created, err := s.base.Create(ctx, sub)
	if err != nil {
		return core.Subscription{}, err
	}
	if err := s.evict(ctx, created); err != nil {
		return core.Subscription{}, err
	}
	return created, nil
}

func (s *CachedSubscriptionStore) Get(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.base == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	return s.base.Get(ctx, id)
}

func (s *CachedSubscriptionStore) List(ctx context.Context, filter core.SubscriptionFilter) (core.SubscriptionPage, error) {
	if s == nil || s.base == nil {
		return core.SubscriptionPage{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	return s.base.List(ctx, filter)
}

func (s *CachedSubscriptionStore) Update(ctx context.Context, sub core.Subscription) (core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	previous, err := s.base.Get(ctx, sub.ID)
	if err != nil {
		return core.Subscription{}, err
	}
	updated, err := s.base.Update(ctx, sub)
	if err != nil {
		return core.Subscription{}, err
	}
	if err := s.evict(ctx, previous, updated); err != nil {
		return core.Subscription{}, err
	}
	return updated, nil
}

func (s *CachedSubscriptionStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	previous, err := s.base.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.base.Delete(ctx, id); err != nil {
		return err
	}
	return s.evict(ctx, previous)
}

func (s *CachedSubscriptionStore) evict(ctx context.Context, subs ...core.Subscription) error {
	seen := map[string]struct{}{}
	for _, sub := range subs {
		for _, event := range sub.Events {
			key := SubscriptionMatchCacheKey(event, sub.ScopeID)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if err := s.cache.Delete(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

func cloneSubscriptions(in []core.Subscription) []core.Subscription {
	out := make([]core.Subscription, 0, len(in))
	for _, sub := range in {
		out = append(out, sub.Clone())
	}
	return out
}
