// Package core contains the outbound webhook delivery runtime: the event
// catalog, subscription and delivery contracts, the signer, the dispatcher,
// the fan-out publisher and the retry coordinator.
//
// Storage, HTTP transport, metrics and job queues are injected through the
// interfaces in contracts.go so the runtime can be composed with the bun
// stores, the in-memory stores or test doubles.
package core
