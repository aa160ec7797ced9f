package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhooks/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeliveryStore is the SQL delivery ledger backed by webhook_deliveries.
type DeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, recordHandlers[deliveryRecord]())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *DeliveryStore) Create(ctx context.Context, delivery core.Delivery) (core.Delivery, error) {
	if s == nil || s.db == nil {
		return core.Delivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	delivery.ID = strings.TrimSpace(delivery.ID)
	delivery.SubscriptionID = strings.TrimSpace(delivery.SubscriptionID)
	if delivery.ID == "" {
		delivery.ID = uuid.NewString()
	}
	if delivery.SubscriptionID == "" {
		return core.Delivery{}, fmt.Errorf("sqlstore: delivery subscription id is required")
	}
	if !delivery.Status.Valid() {
		return core.Delivery{}, fmt.Errorf("sqlstore: invalid delivery status %q", delivery.Status)
	}

	record := newDeliveryRecord(delivery)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Delivery{}, core.DeliveryConflictError(delivery.ID, delivery.Attempts)
		}
		return core.Delivery{}, err
	}
	return record.toDomain(), nil
}

func (s *DeliveryStore) Get(ctx context.Context, id string) (core.Delivery, error) {
	if s == nil || s.db == nil {
		return core.Delivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Delivery{}, fmt.Errorf("sqlstore: delivery id is required")
	}
	record := &deliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Delivery{}, core.NotFoundError("delivery", id)
		}
		return core.Delivery{}, err
	}
	return record.toDomain(), nil
}

// Update writes the delivery only while the stored row still carries
// expectedAttempts and has not succeeded. A lost race surfaces as a delivery
// conflict.
func (s *DeliveryStore) Update(ctx context.Context, delivery core.Delivery, expectedAttempts int) (core.Delivery, error) {
	if s == nil || s.db == nil {
		return core.Delivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	id := strings.TrimSpace(delivery.ID)
	if id == "" {
		return core.Delivery{}, fmt.Errorf("sqlstore: delivery id is required")
	}
	if !delivery.Status.Valid() {
		return core.Delivery{}, fmt.Errorf("sqlstore: invalid delivery status %q", delivery.Status)
	}

	record := newDeliveryRecord(delivery)
	record.ID = id
	res, err := s.db.NewUpdate().
		Model(record).
		Column("status", "status_code", "response", "attempts", "next_attempt_at", "delivered_at", "replays", "updated_at").
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.attempts = ?", expectedAttempts).
		Where("?TableAlias.status <> ?", string(core.DeliveryStatusSuccess)).
		Exec(ctx)
	if err != nil {
		return core.Delivery{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.Delivery{}, err
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return core.Delivery{}, getErr
		}
		return core.Delivery{}, core.DeliveryConflictError(id, expectedAttempts)
	}
	return s.Get(ctx, id)
}

// List returns deliveries newest first. DueBefore keeps rows with a
// next_attempt_at at or before the given instant.
func (s *DeliveryStore) List(ctx context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error) {
	if s == nil || s.repo == nil {
		return core.DeliveryPage{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	limit, offset := pageBounds(filter.Page)

	selectors := []repository.SelectCriteria{}
	if subscriptionID := strings.TrimSpace(filter.SubscriptionID); subscriptionID != "" {
		selectors = append(selectors, repository.SelectBy("subscription_id", "=", subscriptionID))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if filter.DueBefore != nil {
		due := filter.DueBefore.UTC()
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.next_attempt_at IS NOT NULL").
				Where("?TableAlias.next_attempt_at <= ?", due)
		}))
	}
	if filter.DueBefore != nil {
		selectors = append(selectors, repository.OrderBy("next_attempt_at ASC"))
	} else {
		selectors = append(selectors, repository.OrderBy("created_at DESC"))
	}
	if limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(limit, offset))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.DeliveryPage{}, err
	}
	items := make([]core.Delivery, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.DeliveryPage{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasNext: offset+len(items) < total,
	}, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
