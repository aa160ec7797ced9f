package receiver

import "net/http"

var (
	_ Verifier     = SignatureVerifier{}
	_ ClaimLedger  = (*MemoryClaimLedger)(nil)
	_ EventHandler = EventHandlerFunc(nil)
	_ EventHandler = (*EventRouter)(nil)
	_ http.Handler = (*Handler)(nil)
)
