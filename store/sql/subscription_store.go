package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhooks/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SubscriptionStore persists webhook subscriptions in webhook_subscriptions.
// Deleted subscriptions are soft deleted so delivery history keeps its
// references.
type SubscriptionStore struct {
	db     *bun.DB
	repo   repository.Repository[*subscriptionRecord]
	cipher core.SecretCipher
}

type SubscriptionStoreOption func(*SubscriptionStore)

// WithSecretCipher seals the secret column on write and opens it on read.
func WithSecretCipher(cipher core.SecretCipher) SubscriptionStoreOption {
	return func(s *SubscriptionStore) {
		s.cipher = cipher
	}
}

func NewSubscriptionStore(db *bun.DB, opts ...SubscriptionStoreOption) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriptionRecord](db, recordHandlers[subscriptionRecord]())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	store := &SubscriptionStore{
		db:   db,
		repo: repo,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Match loads active subscriptions bound to scopeID and keeps the ones that
// list event. Event membership is checked in Go since the events column is a
// JSON array on both dialects.
func (s *SubscriptionStore) Match(ctx context.Context, event core.EventName, scopeID string) ([]core.Subscription, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	scopeID = strings.TrimSpace(scopeID)
	records, _, err := s.repo.List(ctx,
		activeOnly(),
		repository.SelectBy("scope_id", "=", scopeID),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Subscription, 0, len(records))
	for _, record := range records {
		if !record.toDomain().Matches(event, scopeID) {
			continue
		}
		sub, err := s.open(ctx, record)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *SubscriptionStore) Create(ctx context.Context, sub core.Subscription) (core.Subscription, error) {
	if s == nil || s.repo == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	sub.ID = strings.TrimSpace(sub.ID)
	sub.URL = strings.TrimSpace(sub.URL)
	sub.ScopeID = strings.TrimSpace(sub.ScopeID)
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.URL == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription url is required")
	}
	if len(sub.Events) == 0 {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription events are required")
	}

	next, err := s.seal(ctx, sub)
	if err != nil {
		return core.Subscription{}, err
	}
	record, err := s.repo.Create(ctx, next)
	if err != nil {
		return core.Subscription{}, err
	}
	return s.open(ctx, record)
}

func (s *SubscriptionStore) Get(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	record, err := s.findByID(ctx, s.db, id)
	if err != nil {
		return core.Subscription{}, err
	}
	return s.open(ctx, record)
}

func (s *SubscriptionStore) List(ctx context.Context, filter core.SubscriptionFilter) (core.SubscriptionPage, error) {
	if s == nil || s.repo == nil {
		return core.SubscriptionPage{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	limit, offset := pageBounds(filter.Page)

	selectors := []repository.SelectCriteria{
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
	}
	if filter.ScopeID != nil {
		selectors = append(selectors, repository.SelectBy("scope_id", "=", strings.TrimSpace(*filter.ScopeID)))
	}
	if filter.ActiveOnly {
		selectors = append(selectors, activeOnly())
	}
	if event := strings.TrimSpace(string(filter.Event)); event != "" {
		pattern := "%\"" + event + "\"%"
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("CAST(?TableAlias.events AS TEXT) LIKE ?", pattern)
		}))
	}
	selectors = append(selectors, repository.OrderBy("created_at DESC"))
	if limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(limit, offset))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.SubscriptionPage{}, err
	}
	items := make([]core.Subscription, 0, len(records))
	for _, record := range records {
		sub, err := s.open(ctx, record)
		if err != nil {
			return core.SubscriptionPage{}, err
		}
		items = append(items, sub)
	}
	return core.SubscriptionPage{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasNext: offset+len(items) < total,
	}, nil
}

// Update replaces the mutable fields of an existing subscription. CreatedAt is
// kept from the stored row.
func (s *SubscriptionStore) Update(ctx context.Context, sub core.Subscription) (core.Subscription, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id := strings.TrimSpace(sub.ID)
	if id == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription id is required")
	}

	var out core.Subscription
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := s.findByID(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := s.seal(ctx, sub)
		if err != nil {
			return err
		}
		next.ID = existing.ID
		next.CreatedAt = existing.CreatedAt
		if _, err := tx.NewUpdate().
			Model(next).
			Column("url", "events", "secret", "active", "description", "updated_at").
			Where("?TableAlias.id = ?", existing.ID).
			Exec(ctx); err != nil {
			return err
		}
		out = next.toDomain()
		out.Secret = sub.Secret
		return nil
	})
	if err != nil {
		return core.Subscription{}, err
	}
	return out, nil
}

func (s *SubscriptionStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: subscription id is required")
	}
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model((*subscriptionRecord)(nil)).
		Set("deleted_at = ?", now).
		Set("active = ?", false).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NotFoundError("subscription", id)
	}
	return nil
}

func (s *SubscriptionStore) findByID(ctx context.Context, db bun.IDB, id string) (*subscriptionRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("sqlstore: subscription id is required")
	}
	record := &subscriptionRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NotFoundError("subscription", id)
		}
		return nil, err
	}
	return record, nil
}

func (s *SubscriptionStore) seal(ctx context.Context, sub core.Subscription) (*subscriptionRecord, error) {
	record := newSubscriptionRecord(sub)
	if s.cipher == nil || record.Secret == "" {
		return record, nil
	}
	sealed, err := s.cipher.Encrypt(ctx, []byte(record.Secret))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: seal subscription secret: %w", err)
	}
	record.Secret = string(sealed)
	return record, nil
}

func (s *SubscriptionStore) open(ctx context.Context, record *subscriptionRecord) (core.Subscription, error) {
	sub := record.toDomain()
	if s.cipher == nil || sub.Secret == "" {
		return sub, nil
	}
	plaintext, err := s.cipher.Decrypt(ctx, []byte(sub.Secret))
	if err != nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: open secret for subscription %s: %w", sub.ID, err)
	}
	sub.Secret = string(plaintext)
	return sub, nil
}

func pageBounds(page core.PageRequest) (int, int) {
	limit := page.Limit
	if limit < 0 {
		limit = 0
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// activeOnly binds the flag as a boolean so both dialects compare it natively.
func activeOnly() repository.SelectCriteria {
	return repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.active = ?", true)
	})
}
