package receiver

import (
	"context"
	"strings"

	"github.com/goliatone/go-webhooks/core"
)

type Verifier interface {
	Verify(ctx context.Context, req Request) error
}

// SignatureVerifier checks X-Webhook-Signature against each configured
// secret. Listing the previous secret next to the current one lets a
// consumer keep accepting in-flight deliveries across a secret rotation.
type SignatureVerifier struct {
	Secrets []string
	Header  string
}

func NewSignatureVerifier(secrets ...string) SignatureVerifier {
	return SignatureVerifier{Secrets: append([]string(nil), secrets...), Header: core.HeaderSignature}
}

func (v SignatureVerifier) Verify(_ context.Context, req Request) error {
	header := strings.TrimSpace(v.Header)
	if header == "" {
		header = core.HeaderSignature
	}
	signature := req.Header(header)
	if signature == "" {
		return unauthorized("receiver: " + header + " header is required")
	}

	configured := false
	for _, secret := range v.Secrets {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			continue
		}
		configured = true
		if core.Verify(req.Body, secret, signature) {
			return nil
		}
	}
	if !configured {
		return internal(nil, "receiver: signature secret is required")
	}
	return unauthorized("receiver: signature verification failed")
}
