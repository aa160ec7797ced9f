package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusSuccess    DeliveryStatus = "success"
	DeliveryStatusFailed     DeliveryStatus = "failed"
	DeliveryStatusDeadLetter DeliveryStatus = "dead_letter"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusSuccess, DeliveryStatusFailed, DeliveryStatusDeadLetter:
		return true
	default:
		return false
	}
}

func ParseDeliveryStatus(raw string) (DeliveryStatus, error) {
	status := DeliveryStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("core: invalid delivery status %q", raw)
	}
	return status, nil
}

// Subscription is a registered destination for a set of events. An empty
// ScopeID means the subscription is platform-wide.
type Subscription struct {
	ID          string
	URL         string
	Events      []EventName
	Secret      string
	Active      bool
	ScopeID     string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Subscribes reports event membership; order of Events is irrelevant.
func (s Subscription) Subscribes(event EventName) bool {
	for _, candidate := range s.Events {
		if candidate == event {
			return true
		}
	}
	return false
}

// MatchesScope applies the publish scope rule: no scope selects platform-wide
// subscriptions only, a scope selects only subscriptions bound to it.
func (s Subscription) MatchesScope(scopeID string) bool {
	return strings.TrimSpace(s.ScopeID) == strings.TrimSpace(scopeID)
}

// Matches combines the active flag, event membership and scope rules.
func (s Subscription) Matches(event EventName, scopeID string) bool {
	return s.Active && s.Subscribes(event) && s.MatchesScope(scopeID)
}

func (s Subscription) Clone() Subscription {
	out := s
	out.Events = append([]EventName(nil), s.Events...)
	return out
}

// Delivery is one logical delivery of an event to a subscription. Retries
// reuse the same record.
type Delivery struct {
	ID             string
	SubscriptionID string
	Event          EventName
	Payload        json.RawMessage
	Status         DeliveryStatus
	StatusCode     *int
	Response       string
	Attempts       int
	NextAttemptAt  *time.Time
	DeliveredAt    *time.Time
	Replays        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (d Delivery) Clone() Delivery {
	out := d
	out.Payload = append(json.RawMessage(nil), d.Payload...)
	out.StatusCode = cloneIntPtr(d.StatusCode)
	out.NextAttemptAt = cloneTimePtr(d.NextAttemptAt)
	out.DeliveredAt = cloneTimePtr(d.DeliveredAt)
	return out
}

func (d Delivery) IsTerminal() bool {
	return d.Status == DeliveryStatusSuccess
}

// RecordSuccess applies a 2xx outcome of an attempt.
func (d *Delivery) RecordSuccess(statusCode int, response string, at time.Time) error {
	if d == nil {
		return fmt.Errorf("core: delivery is required")
	}
	if d.Status == DeliveryStatusSuccess {
		return fmt.Errorf("core: delivery %s already succeeded", d.ID)
	}
	if d.Status == DeliveryStatusDeadLetter {
		return fmt.Errorf("core: delivery %s is dead-lettered", d.ID)
	}
	code := statusCode
	delivered := at.UTC()
	d.Status = DeliveryStatusSuccess
	d.StatusCode = &code
	d.Response = response
	d.Attempts++
	d.DeliveredAt = &delivered
	d.NextAttemptAt = nil
	d.UpdatedAt = delivered
	return nil
}

// RecordFailure applies a failed attempt. statusCode is nil when no HTTP
// response was received. Once attempts reach maxAttempts the delivery is
// dead-lettered and nextAttempt is ignored.
func (d *Delivery) RecordFailure(statusCode *int, response string, at time.Time, maxAttempts int, nextAttempt time.Time) error {
	if d == nil {
		return fmt.Errorf("core: delivery is required")
	}
	if d.Status == DeliveryStatusSuccess {
		return fmt.Errorf("core: delivery %s already succeeded", d.ID)
	}
	if d.Status == DeliveryStatusDeadLetter {
		return fmt.Errorf("core: delivery %s is dead-lettered", d.ID)
	}
	d.StatusCode = cloneIntPtr(statusCode)
	d.Response = response
	d.Attempts++
	d.UpdatedAt = at.UTC()
	if maxAttempts > 0 && d.Attempts >= maxAttempts {
		d.Status = DeliveryStatusDeadLetter
		d.NextAttemptAt = nil
		return nil
	}
	d.Status = DeliveryStatusFailed
	if nextAttempt.IsZero() {
		d.NextAttemptAt = nil
	} else {
		next := nextAttempt.UTC()
		d.NextAttemptAt = &next
	}
	return nil
}

// ResetForReplay moves a dead-lettered delivery back to pending with a fresh
// attempt budget and records the replay.
func (d *Delivery) ResetForReplay(at time.Time) error {
	if d == nil {
		return fmt.Errorf("core: delivery is required")
	}
	if d.Status != DeliveryStatusDeadLetter {
		return fmt.Errorf("core: delivery %s is %s, not dead_letter", d.ID, d.Status)
	}
	d.Status = DeliveryStatusPending
	d.Attempts = 0
	d.Replays++
	d.NextAttemptAt = nil
	d.UpdatedAt = at.UTC()
	return nil
}

// Lease marks a pending delivery as claimed by an in-flight attempt until
// the given instant. A pending row whose lease expired was abandoned and is
// picked up by the retry sweep.
func (d *Delivery) Lease(until time.Time) {
	if d == nil || d.Status != DeliveryStatusPending {
		return
	}
	leased := until.UTC()
	d.NextAttemptAt = &leased
}

// Defer moves the next scheduled attempt without recording one.
func (d *Delivery) Defer(until time.Time, at time.Time) error {
	if d == nil {
		return fmt.Errorf("core: delivery is required")
	}
	if d.Status != DeliveryStatusPending && d.Status != DeliveryStatusFailed {
		return fmt.Errorf("core: delivery %s is %s and cannot be rescheduled", d.ID, d.Status)
	}
	next := until.UTC()
	d.NextAttemptAt = &next
	d.UpdatedAt = at.UTC()
	return nil
}

// Park takes a delivery off the retry schedule. A pending delivery becomes
// failed so it shows up in history; an explicit Retry can still resume it.
func (d *Delivery) Park(reason string, at time.Time) error {
	if d == nil {
		return fmt.Errorf("core: delivery is required")
	}
	if d.Status != DeliveryStatusPending && d.Status != DeliveryStatusFailed {
		return fmt.Errorf("core: delivery %s is %s and cannot be parked", d.ID, d.Status)
	}
	if d.Status == DeliveryStatusPending || d.Response == "" {
		d.Response = reason
	}
	d.Status = DeliveryStatusFailed
	d.NextAttemptAt = nil
	d.UpdatedAt = at.UTC()
	return nil
}

// Exhaust dead-letters a delivery that already used its attempt budget,
// e.g. after the ceiling was lowered.
func (d *Delivery) Exhaust(maxAttempts int, at time.Time) error {
	if d == nil {
		return fmt.Errorf("core: delivery is required")
	}
	if d.Status != DeliveryStatusPending && d.Status != DeliveryStatusFailed {
		return fmt.Errorf("core: delivery %s is %s and cannot be dead-lettered", d.ID, d.Status)
	}
	if maxAttempts <= 0 || d.Attempts < maxAttempts {
		return fmt.Errorf("core: delivery %s has %d of %d attempts left", d.ID, maxAttempts-d.Attempts, maxAttempts)
	}
	d.Status = DeliveryStatusDeadLetter
	d.NextAttemptAt = nil
	d.UpdatedAt = at.UTC()
	return nil
}

type PageRequest struct {
	Limit  int
	Offset int
}

type SubscriptionFilter struct {
	ScopeID    *string
	Event      EventName
	ActiveOnly bool
	Page       PageRequest
}

type SubscriptionPage struct {
	Items   []Subscription
	Total   int
	Limit   int
	Offset  int
	HasNext bool
}

type DeliveryFilter struct {
	SubscriptionID string
	Status         DeliveryStatus
	DueBefore      *time.Time
	Page           PageRequest
}

type DeliveryPage struct {
	Items   []Delivery
	Total   int
	Limit   int
	Offset  int
	HasNext bool
}

type CreateSubscriptionRequest struct {
	URL         string
	Events      []EventName
	Secret      string
	ScopeID     string
	Description string
	Active      *bool
}

// UpdateSubscriptionRequest carries a partial update; nil fields are left
// unchanged.
type UpdateSubscriptionRequest struct {
	ID          string
	URL         *string
	Events      []EventName
	Active      *bool
	Description *string
}

type PublishResult struct {
	Delivered int
	Failed    int
	Total     int
}

// RetryResult reports the outcome of one retry attempt. Error carries the
// delivery failure when the attempt ran but did not succeed.
type RetryResult struct {
	Success  bool
	Error    error
	Delivery Delivery
}

type SweepStats struct {
	Scanned   int
	Delivered int
	Failed    int
	Skipped   int
}

func cloneIntPtr(value *int) *int {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}

func cloneTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}
