// Package memory holds process-local implementations of the subscription
// store and delivery ledger, for tests and single-node setups.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-webhooks/core"
	"github.com/google/uuid"
)

// SubscriptionStore keeps subscriptions in a map keyed by id. Deleted
// entries are dropped; delivery records keep their subscription id.
type SubscriptionStore struct {
	mu    sync.RWMutex
	items map[string]core.Subscription
}

func NewSubscriptionStore(subs ...core.Subscription) *SubscriptionStore {
	store := &SubscriptionStore{items: make(map[string]core.Subscription, len(subs))}
	for _, sub := range subs {
		store.items[sub.ID] = sub.Clone()
	}
	return store
}

func (s *SubscriptionStore) Match(_ context.Context, event core.EventName, scopeID string) ([]core.Subscription, error) {
	if s == nil {
		return nil, fmt.Errorf("memory: subscription store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Subscription, 0)
	for _, sub := range s.items {
		if sub.Matches(event, scopeID) {
			out = append(out, sub.Clone())
		}
	}
	sortSubscriptions(out, true)
	return out, nil
}

func (s *SubscriptionStore) Create(_ context.Context, sub core.Subscription) (core.Subscription, error) {
	if s == nil {
		return core.Subscription{}, fmt.Errorf("memory: subscription store is nil")
	}
	sub.ID = strings.TrimSpace(sub.ID)
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = sub.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[sub.ID]; exists {
		return core.Subscription{}, fmt.Errorf("memory: subscription %q already exists", sub.ID)
	}
	s.items[sub.ID] = sub.Clone()
	return sub.Clone(), nil
}

func (s *SubscriptionStore) Get(_ context.Context, id string) (core.Subscription, error) {
	if s == nil {
		return core.Subscription{}, fmt.Errorf("memory: subscription store is nil")
	}
	id = strings.TrimSpace(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.items[id]
	if !ok {
		return core.Subscription{}, core.NotFoundError("subscription", id)
	}
	return sub.Clone(), nil
}

func (s *SubscriptionStore) List(_ context.Context, filter core.SubscriptionFilter) (core.SubscriptionPage, error) {
	if s == nil {
		return core.SubscriptionPage{}, fmt.Errorf("memory: subscription store is nil")
	}
	s.mu.RLock()
	items := make([]core.Subscription, 0, len(s.items))
	for _, sub := range s.items {
		if filter.ScopeID != nil && !sub.MatchesScope(*filter.ScopeID) {
			continue
		}
		if filter.ActiveOnly && !sub.Active {
			continue
		}
		if filter.Event != "" && !sub.Subscribes(filter.Event) {
			continue
		}
		items = append(items, sub.Clone())
	}
	s.mu.RUnlock()

	sortSubscriptions(items, false)
	page, total := paginate(items, filter.Page)
	return core.SubscriptionPage{
		Items:   page,
		Total:   total,
		Limit:   filter.Page.Limit,
		Offset:  filter.Page.Offset,
		HasNext: filter.Page.Offset+len(page) < total,
	}, nil
}

func (s *SubscriptionStore) Update(_ context.Context, sub core.Subscription) (core.Subscription, error) {
	if s == nil {
		return core.Subscription{}, fmt.Errorf("memory: subscription store is nil")
	}
	id := strings.TrimSpace(sub.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[id]
	if !ok {
		return core.Subscription{}, core.NotFoundError("subscription", id)
	}
	sub.ID = id
	sub.CreatedAt = existing.CreatedAt
	sub.ScopeID = existing.ScopeID
	s.items[id] = sub.Clone()
	return sub.Clone(), nil
}

func (s *SubscriptionStore) Delete(_ context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("memory: subscription store is nil")
	}
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return core.NotFoundError("subscription", id)
	}
	delete(s.items, id)
	return nil
}

// sortSubscriptions orders by creation time, oldest first when ascending.
func sortSubscriptions(items []core.Subscription, ascending bool) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		if ascending {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func paginate[T any](items []T, page core.PageRequest) ([]T, int) {
	total := len(items)
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []T{}, total
	}
	end := total
	if page.Limit > 0 && offset+page.Limit < end {
		end = offset + page.Limit
	}
	return items[offset:end], total
}
