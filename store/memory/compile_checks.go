package memory

import "github.com/goliatone/go-webhooks/core"

var (
	_ core.SubscriptionStore = (*SubscriptionStore)(nil)
	_ core.DeliveryLedger    = (*Ledger)(nil)
)
