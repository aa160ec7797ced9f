package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
)

var subscriptionValidator = validator.New()

type subscriptionInput struct {
	URL         string   `validate:"required,url,max=2048"`
	Events      []string `validate:"required,min=1,dive,required"`
	Secret      string   `validate:"omitempty,min=16,max=256"`
	ScopeID     string   `validate:"omitempty,max=128"`
	Description string   `validate:"max=512"`
}

func validateSubscriptionInput(input subscriptionInput) error {
	if err := subscriptionValidator.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return ValidationError("subscription", err.Error())
		}
		fields := make([]goerrors.FieldError, 0, len(fieldErrs))
		for _, fieldErr := range fieldErrs {
			fields = append(fields, goerrors.FieldError{
				Field:   strings.ToLower(fieldErr.Field()),
				Message: fmt.Sprintf("failed %q validation", fieldErr.Tag()),
			})
		}
		return goerrors.NewValidation("core: validation failed", fields...).
			WithCode(http.StatusBadRequest).
			WithTextCode(WebhookErrorValidation)
	}
	if _, err := validateEndpoint(input.URL); err != nil {
		return err
	}
	return nil
}

func (s *Service) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (sub Subscription, err error) {
	startedAt := s.now()
	fields := map[string]any{"scope_id": strings.TrimSpace(req.ScopeID)}
	defer func() {
		fields["subscription_id"] = sub.ID
		s.observeOperation(ctx, startedAt, "create_subscription", err, fields)
	}()

	if s == nil || s.subscriptionStore == nil {
		return Subscription{}, s.mapError(fmt.Errorf("core: subscription store is not configured"))
	}
	input := subscriptionInput{
		URL:         strings.TrimSpace(req.URL),
		Events:      EventStrings(req.Events),
		Secret:      strings.TrimSpace(req.Secret),
		ScopeID:     strings.TrimSpace(req.ScopeID),
		Description: strings.TrimSpace(req.Description),
	}
	if err = validateSubscriptionInput(input); err != nil {
		return Subscription{}, s.mapError(err)
	}
	events, err := normalizeEvents(req.Events)
	if err != nil {
		return Subscription{}, s.mapError(ValidationError("events", err.Error()))
	}
	secret := input.Secret
	if secret == "" {
		if secret, err = s.secrets.Generate(); err != nil {
			return Subscription{}, s.mapError(err)
		}
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.now()
	sub, err = s.subscriptionStore.Create(ctx, Subscription{
		ID:          s.newID(),
		URL:         input.URL,
		Events:      events,
		Secret:      secret,
		Active:      active,
		ScopeID:     input.ScopeID,
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Subscription{}, s.mapError(err)
	}
	return sub, nil
}

func (s *Service) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	if s == nil || s.subscriptionStore == nil {
		return Subscription{}, s.mapError(fmt.Errorf("core: subscription store is not configured"))
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Subscription{}, s.mapError(ValidationError("id", "subscription id is required"))
	}
	sub, err := s.subscriptionStore.Get(ctx, id)
	if err != nil {
		return Subscription{}, s.mapError(err)
	}
	return sub, nil
}

func (s *Service) ListSubscriptions(ctx context.Context, filter SubscriptionFilter) (SubscriptionPage, error) {
	if s == nil || s.subscriptionStore == nil {
		return SubscriptionPage{}, s.mapError(fmt.Errorf("core: subscription store is not configured"))
	}
	if filter.Event != "" && !filter.Event.Valid() {
		return SubscriptionPage{}, s.mapError(ValidationError("event", fmt.Sprintf("unknown event %q", filter.Event)))
	}
	filter.Page = s.normalizePage(filter.Page)
	page, err := s.subscriptionStore.List(ctx, filter)
	if err != nil {
		return SubscriptionPage{}, s.mapError(err)
	}
	return page, nil
}

func (s *Service) UpdateSubscription(ctx context.Context, req UpdateSubscriptionRequest) (sub Subscription, err error) {
	startedAt := s.now()
	fields := map[string]any{"subscription_id": strings.TrimSpace(req.ID)}
	defer func() {
		s.observeOperation(ctx, startedAt, "update_subscription", err, fields)
	}()

	current, err := s.GetSubscription(ctx, req.ID)
	if err != nil {
		return Subscription{}, err
	}
	next := current.Clone()
	if req.URL != nil {
		next.URL = strings.TrimSpace(*req.URL)
	}
	if req.Events != nil {
		next.Events = req.Events
	}
	if req.Active != nil {
		next.Active = *req.Active
	}
	if req.Description != nil {
		next.Description = strings.TrimSpace(*req.Description)
	}
	if err = validateSubscriptionInput(subscriptionInput{
		URL:         next.URL,
		Events:      EventStrings(next.Events),
		ScopeID:     next.ScopeID,
		Description: next.Description,
	}); err != nil {
		return Subscription{}, s.mapError(err)
	}
	if next.Events, err = normalizeEvents(next.Events); err != nil {
		return Subscription{}, s.mapError(ValidationError("events", err.Error()))
	}
	next.UpdatedAt = s.now()

	sub, err = s.subscriptionStore.Update(ctx, next)
	if err != nil {
		return Subscription{}, s.mapError(err)
	}
	fields["scope_id"] = sub.ScopeID
	return sub, nil
}

// RotateSecret replaces the signing secret. Deliveries already in flight keep
// the secret they were signed with.
func (s *Service) RotateSecret(ctx context.Context, id string) (sub Subscription, err error) {
	startedAt := s.now()
	fields := map[string]any{"subscription_id": strings.TrimSpace(id)}
	defer func() {
		s.observeOperation(ctx, startedAt, "rotate_secret", err, fields)
	}()

	current, err := s.GetSubscription(ctx, id)
	if err != nil {
		return Subscription{}, err
	}
	secret, err := s.secrets.Generate()
	if err != nil {
		return Subscription{}, s.mapError(err)
	}
	next := current.Clone()
	next.Secret = secret
	next.UpdatedAt = s.now()
	sub, err = s.subscriptionStore.Update(ctx, next)
	if err != nil {
		return Subscription{}, s.mapError(err)
	}
	return sub, nil
}

// DeleteSubscription stops future deliveries; delivery history is kept.
func (s *Service) DeleteSubscription(ctx context.Context, id string) (err error) {
	startedAt := s.now()
	id = strings.TrimSpace(id)
	fields := map[string]any{"subscription_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "delete_subscription", err, fields)
	}()

	if s == nil || s.subscriptionStore == nil {
		return s.mapError(fmt.Errorf("core: subscription store is not configured"))
	}
	if id == "" {
		return s.mapError(ValidationError("id", "subscription id is required"))
	}
	if err = s.subscriptionStore.Delete(ctx, id); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) normalizePage(page PageRequest) PageRequest {
	page.Limit = s.config.pageLimit(page.Limit)
	if page.Offset < 0 {
		page.Offset = 0
	}
	return page
}
