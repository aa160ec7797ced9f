package core

import (
	"context"
	"fmt"
	"strings"
)

func (s *Service) GetDelivery(ctx context.Context, id string) (Delivery, error) {
	if s == nil || s.deliveryLedger == nil {
		return Delivery{}, s.mapError(fmt.Errorf("core: delivery ledger is not configured"))
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Delivery{}, s.mapError(ValidationError("id", "delivery id is required"))
	}
	delivery, err := s.deliveryLedger.Get(ctx, id)
	if err != nil {
		return Delivery{}, s.mapError(err)
	}
	return delivery, nil
}

// ListDeliveries returns deliveries newest first.
func (s *Service) ListDeliveries(ctx context.Context, filter DeliveryFilter) (DeliveryPage, error) {
	if s == nil || s.deliveryLedger == nil {
		return DeliveryPage{}, s.mapError(fmt.Errorf("core: delivery ledger is not configured"))
	}
	filter.SubscriptionID = strings.TrimSpace(filter.SubscriptionID)
	if filter.Status != "" && !filter.Status.Valid() {
		return DeliveryPage{}, s.mapError(ValidationError("status", fmt.Sprintf("invalid status %q", filter.Status)))
	}
	filter.Page = s.normalizePage(filter.Page)
	page, err := s.deliveryLedger.List(ctx, filter)
	if err != nil {
		return DeliveryPage{}, s.mapError(err)
	}
	return page, nil
}
