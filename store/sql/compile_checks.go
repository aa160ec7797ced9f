package sqlstore

import "github.com/goliatone/go-webhooks/core"

var (
	_ core.SubscriptionStore      = (*SubscriptionStore)(nil)
	_ core.SubscriptionStore      = (*CachedSubscriptionStore)(nil)
	_ core.DeliveryLedger         = (*DeliveryStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
