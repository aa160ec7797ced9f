package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

type memorySubscriptionStore struct {
	mu      sync.Mutex
	items   map[string]Subscription
	deleted map[string]bool
	err     error
}

func newMemorySubscriptionStore(subs ...Subscription) *memorySubscriptionStore {
	store := &memorySubscriptionStore{items: map[string]Subscription{}, deleted: map[string]bool{}}
	for _, sub := range subs {
		store.items[sub.ID] = sub.Clone()
	}
	return store
}

func (s *memorySubscriptionStore) Match(_ context.Context, event EventName, scopeID string) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := []Subscription{}
	for id, sub := range s.items {
		if s.deleted[id] || !sub.Matches(event, scopeID) {
			continue
		}
		out = append(out, sub.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memorySubscriptionStore) Create(_ context.Context, sub Subscription) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sub.ID] = sub.Clone()
	return sub.Clone(), nil
}

func (s *memorySubscriptionStore) Get(_ context.Context, id string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.items[id]
	if !ok || s.deleted[id] {
		return Subscription{}, NotFoundError("subscription", id)
	}
	return sub.Clone(), nil
}

func (s *memorySubscriptionStore) List(_ context.Context, filter SubscriptionFilter) (SubscriptionPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := []Subscription{}
	for id, sub := range s.items {
		if s.deleted[id] {
			continue
		}
		if filter.ScopeID != nil && sub.ScopeID != *filter.ScopeID {
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
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return SubscriptionPage{Items: items, Total: len(items), Limit: filter.Page.Limit}, nil
}

func (s *memorySubscriptionStore) Update(_ context.Context, sub Subscription) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[sub.ID]; !ok || s.deleted[sub.ID] {
		return Subscription{}, NotFoundError("subscription", sub.ID)
	}
	s.items[sub.ID] = sub.Clone()
	return sub.Clone(), nil
}

func (s *memorySubscriptionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok || s.deleted[id] {
		return NotFoundError("subscription", id)
	}
	s.deleted[id] = true
	return nil
}

type memoryLedger struct {
	mu      sync.Mutex
	items   map[string]Delivery
	creates int
	updates int
	history map[string][]Delivery
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{items: map[string]Delivery{}, history: map[string][]Delivery{}}
}

func (l *memoryLedger) Create(_ context.Context, delivery Delivery) (Delivery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.items[delivery.ID]; exists {
		return Delivery{}, fmt.Errorf("duplicate delivery %s", delivery.ID)
	}
	l.creates++
	l.items[delivery.ID] = delivery.Clone()
	l.history[delivery.ID] = append(l.history[delivery.ID], delivery.Clone())
	return delivery.Clone(), nil
}

func (l *memoryLedger) Get(_ context.Context, id string) (Delivery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delivery, ok := l.items[id]
	if !ok {
		return Delivery{}, NotFoundError("delivery", id)
	}
	return delivery.Clone(), nil
}

func (l *memoryLedger) Update(_ context.Context, delivery Delivery, expectedAttempts int) (Delivery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, ok := l.items[delivery.ID]
	if !ok {
		return Delivery{}, NotFoundError("delivery", delivery.ID)
	}
	if current.Attempts != expectedAttempts || current.Status == DeliveryStatusSuccess {
		return Delivery{}, DeliveryConflictError(delivery.ID, expectedAttempts)
	}
	l.updates++
	l.items[delivery.ID] = delivery.Clone()
	l.history[delivery.ID] = append(l.history[delivery.ID], delivery.Clone())
	return delivery.Clone(), nil
}

func (l *memoryLedger) List(_ context.Context, filter DeliveryFilter) (DeliveryPage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := []Delivery{}
	for _, delivery := range l.items {
		if filter.SubscriptionID != "" && delivery.SubscriptionID != filter.SubscriptionID {
			continue
		}
		if filter.Status != "" && delivery.Status != filter.Status {
			continue
		}
		if filter.DueBefore != nil && (delivery.NextAttemptAt == nil || delivery.NextAttemptAt.After(*filter.DueBefore)) {
			continue
		}
		items = append(items, delivery.Clone())
	}
	if filter.DueBefore != nil {
		sort.Slice(items, func(i, j int) bool { return items[i].NextAttemptAt.Before(*items[j].NextAttemptAt) })
	} else {
		sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	}
	total := len(items)
	if filter.Page.Limit > 0 && len(items) > filter.Page.Limit {
		items = items[:filter.Page.Limit]
	}
	return DeliveryPage{Items: items, Total: total, Limit: filter.Page.Limit}, nil
}

func (l *memoryLedger) writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creates + l.updates
}

func (l *memoryLedger) only() Delivery {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, delivery := range l.items {
		return delivery.Clone()
	}
	return Delivery{}
}

type transportFunc func(ctx context.Context, req TransportRequest) (TransportResponse, error)

type recordingTransport struct {
	mu       sync.Mutex
	requests []TransportRequest
	handle   transportFunc
}

func newRecordingTransport(handle transportFunc) *recordingTransport {
	return &recordingTransport{handle: handle}
}

func respondWith(status int, body string) transportFunc {
	return func(context.Context, TransportRequest) (TransportResponse, error) {
		return TransportResponse{StatusCode: status, Body: []byte(body)}, nil
	}
}

func (t *recordingTransport) Post(ctx context.Context, req TransportRequest) (TransportResponse, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	handle := t.handle
	t.mu.Unlock()
	return handle(ctx, req)
}

func (t *recordingTransport) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func (t *recordingTransport) last() TransportRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.requests) == 0 {
		return TransportRequest{}
	}
	return t.requests[len(t.requests)-1]
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l.values), nil
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("%s_%d", prefix, next)
	}
}

type testHarness struct {
	service   *Service
	subs      *memorySubscriptionStore
	ledger    *memoryLedger
	transport *recordingTransport
	clock     *fixedClock
}

func newTestHarness(t testing.TB, handle transportFunc, subs []Subscription, opts ...Option) *testHarness {
	t.Helper()
	h := &testHarness{
		subs:      newMemorySubscriptionStore(subs...),
		ledger:    newMemoryLedger(),
		transport: newRecordingTransport(handle),
		clock:     newFixedClock(),
	}
	base := []Option{
		WithSubscriptionStore(h.subs),
		WithDeliveryLedger(h.ledger),
		WithTransport(h.transport),
		WithClock(h.clock.Now),
		WithIDGenerator(sequentialIDs("dlv")),
		WithLogger(stubLogger{}),
	}
	svc, err := NewService(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.service = svc
	return h
}

func testSubscription(id string, url string, scopeID string, events ...EventName) Subscription {
	if len(events) == 0 {
		events = []EventName{EventOrderCreated}
	}
	return Subscription{
		ID:      id,
		URL:     url,
		Events:  events,
		Secret:  "whsec_test_secret_" + id,
		Active:  true,
		ScopeID: scopeID,
	}
}

func withRuntimeConfig(cfg Config) Option {
	return func(b *serviceBuilder) {
		b.runtimeConfig = cfg
	}
}
