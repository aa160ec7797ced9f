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

// Ledger is an in-memory delivery ledger. The map lock only guards record
// lookup and insertion; each record carries its own lock so updates to
// distinct deliveries never wait on each other.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]*ledgerRecord
}

type ledgerRecord struct {
	mu       sync.Mutex
	delivery core.Delivery
}

func NewLedger() *Ledger {
	return &Ledger{records: map[string]*ledgerRecord{}}
}

func (l *Ledger) Create(_ context.Context, delivery core.Delivery) (core.Delivery, error) {
	if l == nil {
		return core.Delivery{}, fmt.Errorf("memory: ledger is nil")
	}
	delivery.ID = strings.TrimSpace(delivery.ID)
	if delivery.ID == "" {
		delivery.ID = uuid.NewString()
	}
	if !delivery.Status.Valid() {
		return core.Delivery{}, fmt.Errorf("memory: invalid delivery status %q", delivery.Status)
	}
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = time.Now().UTC()
	}
	if delivery.UpdatedAt.IsZero() {
		delivery.UpdatedAt = delivery.CreatedAt
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[delivery.ID]; exists {
		return core.Delivery{}, core.DeliveryConflictError(delivery.ID, delivery.Attempts)
	}
	l.records[delivery.ID] = &ledgerRecord{delivery: delivery.Clone()}
	return delivery.Clone(), nil
}

func (l *Ledger) Get(_ context.Context, id string) (core.Delivery, error) {
	record, err := l.record(id)
	if err != nil {
		return core.Delivery{}, err
	}
	record.mu.Lock()
	defer record.mu.Unlock()
	return record.delivery.Clone(), nil
}

// Update applies delivery only while the stored attempt count equals
// expectedAttempts and the stored record has not succeeded.
func (l *Ledger) Update(_ context.Context, delivery core.Delivery, expectedAttempts int) (core.Delivery, error) {
	if !delivery.Status.Valid() {
		return core.Delivery{}, fmt.Errorf("memory: invalid delivery status %q", delivery.Status)
	}
	record, err := l.record(delivery.ID)
	if err != nil {
		return core.Delivery{}, err
	}
	record.mu.Lock()
	defer record.mu.Unlock()

	current := record.delivery
	if current.Attempts != expectedAttempts || current.Status == core.DeliveryStatusSuccess {
		return core.Delivery{}, core.DeliveryConflictError(current.ID, expectedAttempts)
	}
	next := delivery.Clone()
	next.ID = current.ID
	next.SubscriptionID = current.SubscriptionID
	next.Event = current.Event
	next.Payload = current.Payload
	next.CreatedAt = current.CreatedAt
	record.delivery = next
	return next.Clone(), nil
}

func (l *Ledger) List(_ context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error) {
	if l == nil {
		return core.DeliveryPage{}, fmt.Errorf("memory: ledger is nil")
	}
	l.mu.RLock()
	records := make([]*ledgerRecord, 0, len(l.records))
	for _, record := range l.records {
		records = append(records, record)
	}
	l.mu.RUnlock()

	items := make([]core.Delivery, 0, len(records))
	for _, record := range records {
		record.mu.Lock()
		delivery := record.delivery.Clone()
		record.mu.Unlock()
		if !matchesDeliveryFilter(delivery, filter) {
			continue
		}
		items = append(items, delivery)
	}

	if filter.DueBefore != nil {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].NextAttemptAt.Before(*items[j].NextAttemptAt)
		})
	} else {
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].CreatedAt.Equal(items[j].CreatedAt) {
				return items[i].ID > items[j].ID
			}
			return items[i].CreatedAt.After(items[j].CreatedAt)
		})
	}

	page, total := paginate(items, filter.Page)
	return core.DeliveryPage{
		Items:   page,
		Total:   total,
		Limit:   filter.Page.Limit,
		Offset:  filter.Page.Offset,
		HasNext: filter.Page.Offset+len(page) < total,
	}, nil
}

func (l *Ledger) record(id string) (*ledgerRecord, error) {
	if l == nil {
		return nil, fmt.Errorf("memory: ledger is nil")
	}
	id = strings.TrimSpace(id)
	l.mu.RLock()
	defer l.mu.RUnlock()
	record, ok := l.records[id]
	if !ok {
		return nil, core.NotFoundError("delivery", id)
	}
	return record, nil
}

func matchesDeliveryFilter(delivery core.Delivery, filter core.DeliveryFilter) bool {
	if id := strings.TrimSpace(filter.SubscriptionID); id != "" && delivery.SubscriptionID != id {
		return false
	}
	if filter.Status != "" && delivery.Status != filter.Status {
		return false
	}
	if filter.DueBefore != nil {
		if delivery.NextAttemptAt == nil || delivery.NextAttemptAt.After(*filter.DueBefore) {
			return false
		}
	}
	return true
}
