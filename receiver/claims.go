package receiver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	ClaimStatusPending    = "pending"
	ClaimStatusProcessed  = "processed"
	ClaimStatusRetryReady = "retry_ready"
	ClaimStatusDead       = "dead"
)

// Claim is the receiver's record of one delivery id. ClaimID changes every
// time the delivery is claimed again so a stale worker cannot settle a claim
// it no longer owns.
type Claim struct {
	ClaimID    string
	DeliveryID string
	Status     string
	Attempts   int
	LastError  string
	LeaseUntil time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ClaimLedger de-duplicates deliveries. Claim reports false when the
// delivery is already processed, dead, or held by an unexpired lease.
type ClaimLedger interface {
	Claim(ctx context.Context, deliveryID string, lease time.Duration) (Claim, bool, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, maxAttempts int) (Claim, error)
}

type MemoryClaimLedger struct {
	mu      sync.Mutex
	claims  map[string]*Claim
	byClaim map[string]string
	Now     func() time.Time
}

func NewMemoryClaimLedger() *MemoryClaimLedger {
	return &MemoryClaimLedger{
		claims:  map[string]*Claim{},
		byClaim: map[string]string{},
	}
}

func (l *MemoryClaimLedger) Claim(_ context.Context, deliveryID string, lease time.Duration) (Claim, bool, error) {
	if l == nil {
		return Claim{}, false, internal(nil, "receiver: claim ledger is nil")
	}
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return Claim{}, false, badRequest("receiver: delivery id is required", nil)
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.claims[deliveryID]
	if !ok {
		claim := &Claim{
			ClaimID:    uuid.NewString(),
			DeliveryID: deliveryID,
			Status:     ClaimStatusPending,
			Attempts:   1,
			LeaseUntil: now.Add(lease),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		l.claims[deliveryID] = claim
		l.byClaim[claim.ClaimID] = deliveryID
		return *claim, true, nil
	}

	switch existing.Status {
	case ClaimStatusProcessed, ClaimStatusDead:
		return *existing, false, nil
	case ClaimStatusPending:
		if now.Before(existing.LeaseUntil) {
			return *existing, false, nil
		}
	}

	delete(l.byClaim, existing.ClaimID)
	existing.ClaimID = uuid.NewString()
	existing.Status = ClaimStatusPending
	existing.Attempts++
	existing.LeaseUntil = now.Add(lease)
	existing.UpdatedAt = now
	l.byClaim[existing.ClaimID] = deliveryID
	return *existing, true, nil
}

func (l *MemoryClaimLedger) Complete(_ context.Context, claimID string) error {
	if l == nil {
		return internal(nil, "receiver: claim ledger is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	claim, err := l.owned(claimID)
	if err != nil {
		return err
	}
	claim.Status = ClaimStatusProcessed
	claim.LastError = ""
	claim.UpdatedAt = l.now()
	return nil
}

func (l *MemoryClaimLedger) Fail(_ context.Context, claimID string, cause error, maxAttempts int) (Claim, error) {
	if l == nil {
		return Claim{}, internal(nil, "receiver: claim ledger is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	claim, err := l.owned(claimID)
	if err != nil {
		return Claim{}, err
	}
	claim.Status = ClaimStatusRetryReady
	if maxAttempts > 0 && claim.Attempts >= maxAttempts {
		claim.Status = ClaimStatusDead
	}
	if cause != nil {
		claim.LastError = cause.Error()
	}
	claim.UpdatedAt = l.now()
	return *claim, nil
}

// Get returns the claim recorded for a delivery id.
func (l *MemoryClaimLedger) Get(_ context.Context, deliveryID string) (Claim, bool) {
	if l == nil {
		return Claim{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	claim, ok := l.claims[strings.TrimSpace(deliveryID)]
	if !ok {
		return Claim{}, false
	}
	return *claim, true
}

func (l *MemoryClaimLedger) owned(claimID string) (*Claim, error) {
	deliveryID, ok := l.byClaim[strings.TrimSpace(claimID)]
	if !ok {
		return nil, receiverError(
			fmt.Sprintf("receiver: claim %s is no longer held", claimID),
			goerrors.CategoryConflict,
			http.StatusConflict,
			ErrorRetryable,
			map[string]any{"claim_id": claimID},
		)
	}
	return l.claims[deliveryID], nil
}

func (l *MemoryClaimLedger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}
