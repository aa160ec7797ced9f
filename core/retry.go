package core

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Retry performs one more attempt for a delivery that has not succeeded and
// still has attempt budget left.
func (s *Service) Retry(ctx context.Context, deliveryID string) (result RetryResult, err error) {
	startedAt := s.now()
	deliveryID = strings.TrimSpace(deliveryID)
	fields := map[string]any{"delivery_id": deliveryID}
	defer func() {
		fields["status"] = string(result.Delivery.Status)
		fields["success"] = result.Success
		s.observeOperation(ctx, startedAt, "retry", err, fields)
	}()

	delivery, err := s.loadDelivery(ctx, deliveryID)
	if err != nil {
		return RetryResult{}, s.mapError(err)
	}
	fields["event"] = string(delivery.Event)
	fields["subscription_id"] = delivery.SubscriptionID

	switch {
	case delivery.Status == DeliveryStatusSuccess:
		return RetryResult{Delivery: delivery}, s.mapError(InvalidStateError(
			delivery.ID, delivery.Status, fmt.Sprintf("core: delivery %s already succeeded", delivery.ID),
		))
	case delivery.Attempts >= s.config.Delivery.MaxAttempts:
		return RetryResult{Delivery: delivery}, s.mapError(AttemptsExhaustedError(
			delivery.ID, delivery.Attempts, s.config.Delivery.MaxAttempts,
		))
	case delivery.Status == DeliveryStatusDeadLetter:
		return RetryResult{Delivery: delivery}, s.mapError(InvalidStateError(
			delivery.ID, delivery.Status, fmt.Sprintf("core: delivery %s is dead-lettered", delivery.ID),
		))
	}

	sub, err := s.activeSubscription(ctx, delivery.SubscriptionID)
	if err != nil {
		return RetryResult{Delivery: delivery}, s.mapError(err)
	}
	outcome, err := s.attempt(ctx, sub, delivery)
	if err != nil {
		return RetryResult{Delivery: delivery}, s.mapError(err)
	}
	return RetryResult{
		Success:  outcome.Err == nil,
		Error:    outcome.Err,
		Delivery: outcome.Delivery,
	}, nil
}

// RetryDeadLettered resets a dead-lettered delivery to pending with a fresh
// attempt budget and dispatches it once.
func (s *Service) RetryDeadLettered(ctx context.Context, deliveryID string) (result RetryResult, err error) {
	startedAt := s.now()
	deliveryID = strings.TrimSpace(deliveryID)
	fields := map[string]any{"delivery_id": deliveryID}
	defer func() {
		fields["status"] = string(result.Delivery.Status)
		fields["success"] = result.Success
		s.observeOperation(ctx, startedAt, "retry_dead_letter", err, fields)
	}()

	delivery, err := s.loadDelivery(ctx, deliveryID)
	if err != nil {
		return RetryResult{}, s.mapError(err)
	}
	fields["event"] = string(delivery.Event)
	fields["subscription_id"] = delivery.SubscriptionID
	if delivery.Status != DeliveryStatusDeadLetter {
		return RetryResult{Delivery: delivery}, s.mapError(InvalidStateError(
			delivery.ID, delivery.Status, fmt.Sprintf("core: delivery %s is %s, not dead_letter", delivery.ID, delivery.Status),
		))
	}
	sub, err := s.activeSubscription(ctx, delivery.SubscriptionID)
	if err != nil {
		return RetryResult{Delivery: delivery}, s.mapError(err)
	}

	reset := delivery.Clone()
	resetAt := s.now()
	if err := reset.ResetForReplay(resetAt); err != nil {
		return RetryResult{Delivery: delivery}, s.mapError(err)
	}
	reset.Lease(s.leaseUntil(resetAt))
	saved, err := s.deliveryLedger.Update(ctx, reset, delivery.Attempts)
	if err != nil {
		return RetryResult{Delivery: delivery}, s.mapError(err)
	}
	fields["replays"] = saved.Replays

	outcome, err := s.attempt(ctx, sub, saved)
	if err != nil {
		return RetryResult{Delivery: saved}, s.mapError(err)
	}
	return RetryResult{
		Success:  outcome.Err == nil,
		Error:    outcome.Err,
		Delivery: outcome.Delivery,
	}, nil
}

// ListDeadLettered returns dead-lettered deliveries, newest first.
func (s *Service) ListDeadLettered(ctx context.Context, page PageRequest) (DeliveryPage, error) {
	return s.ListDeliveries(ctx, DeliveryFilter{
		Status: DeliveryStatusDeadLetter,
		Page:   page,
	})
}

// RetryDue attempts failed deliveries whose scheduled retry time has passed
// and pending deliveries whose attempt lease expired. Each delivery gets at
// most one attempt per sweep. Deliveries that cannot be attempted are moved
// off the due schedule so they never hold the batch:
//   - deleted subscription: parked as failed without a schedule
//   - inactive subscription: deferred by the maximum backoff
//   - no attempt budget left: dead-lettered
func (s *Service) RetryDue(ctx context.Context, limit int) (stats SweepStats, err error) {
	startedAt := s.now()
	fields := map[string]any{}
	defer func() {
		fields["scanned"] = stats.Scanned
		fields["delivered"] = stats.Delivered
		fields["failed"] = stats.Failed
		fields["skipped"] = stats.Skipped
		s.observeOperation(ctx, startedAt, "retry_sweep", err, fields)
	}()

	if s == nil || s.deliveryLedger == nil || s.subscriptionStore == nil {
		return SweepStats{}, s.mapError(fmt.Errorf("core: delivery ledger and subscription store are required for retry sweeps"))
	}
	if limit <= 0 {
		limit = s.config.Retry.BatchSize
	}
	due, err := s.dueDeliveries(ctx, startedAt, limit)
	if err != nil {
		return SweepStats{}, s.mapError(err)
	}

	var delivered, failed, skipped atomic.Int64
	group := new(errgroup.Group)
	if concurrency := s.config.Delivery.MaxConcurrency; concurrency > 0 {
		group.SetLimit(concurrency)
	}
	for _, delivery := range due {
		delivery := delivery.Clone()
		group.Go(func() error {
			defer func() {
				if recovered := recover(); recovered != nil {
					failed.Add(1)
					s.logError(ctx, "scheduled retry panicked", map[string]any{
						"delivery_id": delivery.ID,
						"panic":       fmt.Sprint(recovered),
					})
				}
			}()
			if delivery.Attempts >= s.config.Delivery.MaxAttempts {
				skipped.Add(1)
				s.unschedule(ctx, delivery, func(d *Delivery, at time.Time) error {
					return d.Exhaust(s.config.Delivery.MaxAttempts, at)
				})
				return nil
			}
			sub, loadErr := s.activeSubscription(ctx, delivery.SubscriptionID)
			if loadErr != nil {
				skipped.Add(1)
				s.logWarn(ctx, "scheduled retry skipped", map[string]any{
					"delivery_id":     delivery.ID,
					"subscription_id": delivery.SubscriptionID,
					"error":           loadErr.Error(),
				})
				s.unschedule(ctx, delivery, func(d *Delivery, at time.Time) error {
					if IsNotFound(loadErr) {
						return d.Park("subscription no longer exists", at)
					}
					return d.Defer(at.Add(s.config.Retry.MaxBackoff), at)
				})
				return nil
			}
			outcome, attemptErr := s.attempt(ctx, sub, delivery)
			switch {
			case IsDeliveryConflict(attemptErr):
				skipped.Add(1)
			case attemptErr != nil:
				failed.Add(1)
				s.logError(ctx, "scheduled retry could not be recorded", map[string]any{
					"delivery_id": delivery.ID,
					"error":       attemptErr.Error(),
				})
			case outcome.Err != nil:
				failed.Add(1)
			default:
				delivered.Add(1)
			}
			return nil
		})
	}
	_ = group.Wait()

	return SweepStats{
		Scanned:   len(due),
		Delivered: int(delivered.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}, nil
}

// dueDeliveries returns up to limit rows: abandoned pending rows first, then
// failed rows in schedule order.
func (s *Service) dueDeliveries(ctx context.Context, now time.Time, limit int) ([]Delivery, error) {
	due := now
	out := []Delivery{}
	for _, status := range []DeliveryStatus{DeliveryStatusPending, DeliveryStatusFailed} {
		remaining := limit - len(out)
		if remaining <= 0 {
			break
		}
		page, err := s.deliveryLedger.List(ctx, DeliveryFilter{
			Status:    status,
			DueBefore: &due,
			Page:      PageRequest{Limit: remaining},
		})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
	}
	return out, nil
}

// unschedule applies change and writes it with the usual attempt guard. A
// lost race means another worker already moved the row.
func (s *Service) unschedule(ctx context.Context, delivery Delivery, change func(*Delivery, time.Time) error) {
	updated := delivery.Clone()
	if err := change(&updated, s.now()); err != nil {
		s.logWarn(ctx, "scheduled retry could not be rescheduled", map[string]any{
			"delivery_id": delivery.ID,
			"error":       err.Error(),
		})
		return
	}
	if _, err := s.deliveryLedger.Update(context.WithoutCancel(ctx), updated, delivery.Attempts); err != nil && !IsDeliveryConflict(err) {
		s.logError(ctx, "scheduled retry could not be rescheduled", map[string]any{
			"delivery_id": delivery.ID,
			"error":       err.Error(),
		})
	}
}

func (s *Service) loadDelivery(ctx context.Context, deliveryID string) (Delivery, error) {
	if s == nil || s.deliveryLedger == nil || s.subscriptionStore == nil {
		return Delivery{}, fmt.Errorf("core: delivery ledger and subscription store are required for retries")
	}
	if deliveryID == "" {
		return Delivery{}, ValidationError("delivery_id", "delivery id is required")
	}
	return s.deliveryLedger.Get(ctx, deliveryID)
}

func (s *Service) activeSubscription(ctx context.Context, subscriptionID string) (Subscription, error) {
	sub, err := s.subscriptionStore.Get(ctx, subscriptionID)
	if err != nil {
		return Subscription{}, err
	}
	if !sub.Active {
		return Subscription{}, SubscriptionInactiveError(sub.ID)
	}
	return sub, nil
}
