package sqlstore

import (
	"encoding/json"
	"time"

	"github.com/goliatone/go-webhooks/core"
	"github.com/uptrace/bun"
)

type subscriptionRecord struct {
	bun.BaseModel `bun:"table:webhook_subscriptions,alias:ws"`

	ID          string     `bun:"id,pk"`
	URL         string     `bun:"url,notnull"`
	Events      []string   `bun:"events,type:jsonb,notnull"`
	Secret      string     `bun:"secret,notnull"`
	Active      bool       `bun:"active,notnull"`
	ScopeID     string     `bun:"scope_id,notnull"`
	Description string     `bun:"description,notnull"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt   *time.Time `bun:"deleted_at,soft_delete"`
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:webhook_deliveries,alias:wd"`

	ID             string          `bun:"id,pk"`
	SubscriptionID string          `bun:"subscription_id,notnull"`
	Event          string          `bun:"event,notnull"`
	Payload        json.RawMessage `bun:"payload,type:jsonb,notnull"`
	Status         string          `bun:"status,notnull"`
	StatusCode     *int            `bun:"status_code"`
	Response       string          `bun:"response,notnull"`
	Attempts       int             `bun:"attempts,notnull"`
	NextAttemptAt  *time.Time      `bun:"next_attempt_at,nullzero"`
	DeliveredAt    *time.Time      `bun:"delivered_at,nullzero"`
	Replays        int             `bun:"replays,notnull"`
	CreatedAt      time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newSubscriptionRecord(sub core.Subscription) *subscriptionRecord {
	return &subscriptionRecord{
		ID:          sub.ID,
		URL:         sub.URL,
		Events:      core.EventStrings(sub.Events),
		Secret:      sub.Secret,
		Active:      sub.Active,
		ScopeID:     sub.ScopeID,
		Description: sub.Description,
		CreatedAt:   sub.CreatedAt.UTC(),
		UpdatedAt:   sub.UpdatedAt.UTC(),
	}
}

func (r *subscriptionRecord) toDomain() core.Subscription {
	if r == nil {
		return core.Subscription{}
	}
	events := make([]core.EventName, 0, len(r.Events))
	for _, event := range r.Events {
		events = append(events, core.EventName(event))
	}
	return core.Subscription{
		ID:          r.ID,
		URL:         r.URL,
		Events:      events,
		Secret:      r.Secret,
		Active:      r.Active,
		ScopeID:     r.ScopeID,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func newDeliveryRecord(delivery core.Delivery) *deliveryRecord {
	payload := append(json.RawMessage(nil), delivery.Payload...)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return &deliveryRecord{
		ID:             delivery.ID,
		SubscriptionID: delivery.SubscriptionID,
		Event:          string(delivery.Event),
		Payload:        payload,
		Status:         string(delivery.Status),
		StatusCode:     copyIntPtr(delivery.StatusCode),
		Response:       delivery.Response,
		Attempts:       delivery.Attempts,
		NextAttemptAt:  utcTimePtr(delivery.NextAttemptAt),
		DeliveredAt:    utcTimePtr(delivery.DeliveredAt),
		Replays:        delivery.Replays,
		CreatedAt:      delivery.CreatedAt.UTC(),
		UpdatedAt:      delivery.UpdatedAt.UTC(),
	}
}

func (r *deliveryRecord) toDomain() core.Delivery {
	if r == nil {
		return core.Delivery{}
	}
	return core.Delivery{
		ID:             r.ID,
		SubscriptionID: r.SubscriptionID,
		Event:          core.EventName(r.Event),
		Payload:        append(json.RawMessage(nil), r.Payload...),
		Status:         core.DeliveryStatus(r.Status),
		StatusCode:     copyIntPtr(r.StatusCode),
		Response:       r.Response,
		Attempts:       r.Attempts,
		NextAttemptAt:  utcTimePtr(r.NextAttemptAt),
		DeliveredAt:    utcTimePtr(r.DeliveredAt),
		Replays:        r.Replays,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func copyIntPtr(value *int) *int {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}

func utcTimePtr(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	out := value.UTC()
	return &out
}
