// Package receiver is the consumer side of the webhook protocol. It verifies
// X-Webhook-Signature over the raw body, decodes the event envelope and uses
// a claim ledger keyed by X-Webhook-Delivery-Id so a handler sees each
// delivery once even though the sender retries.
package receiver
