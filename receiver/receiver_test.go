package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-webhooks/core"
	"github.com/goliatone/go-webhooks/store/memory"
	"github.com/goliatone/go-webhooks/transport"
)

const testSecret = "whsec_receiver_secret"

func signedRequest(t *testing.T, deliveryID string, event core.EventName, data string, secret string) Request {
	t.Helper()
	body, err := core.EncodeEnvelope(event, json.RawMessage(data), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return Request{
		Headers: map[string]string{
			core.HeaderEvent:      string(event),
			core.HeaderDeliveryID: deliveryID,
			core.HeaderSignature:  core.Sign(body, secret),
		},
		Body: body,
	}
}

type recordingHandler struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestSignatureVerifier_AcceptsCurrentAndPreviousSecret(t *testing.T) {
	verifier := NewSignatureVerifier("whsec_new_secret", testSecret)
	req := signedRequest(t, "del_1", core.EventOrderCreated, `{"id":1}`, testSecret)
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("expected previous secret to verify, got %v", err)
	}

	req.Body = append(req.Body, ' ')
	err := verifier.Verify(context.Background(), req)
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized for tampered body, got %v", err)
	}
}

func TestSignatureVerifier_RequiresHeaderAndSecret(t *testing.T) {
	req := signedRequest(t, "del_1", core.EventOrderCreated, `{}`, testSecret)
	delete(req.Headers, core.HeaderSignature)
	if err := NewSignatureVerifier(testSecret).Verify(context.Background(), req); !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized without signature header, got %v", err)
	}

	req = signedRequest(t, "del_1", core.EventOrderCreated, `{}`, testSecret)
	err := NewSignatureVerifier(" ").Verify(context.Background(), req)
	if err == nil || StatusCode(err) != http.StatusInternalServerError {
		t.Fatalf("expected internal error without secret, got %v", err)
	}
}

func TestProcessor_DeduplicatesByDeliveryID(t *testing.T) {
	handler := &recordingHandler{}
	processor := NewProcessor(NewSignatureVerifier(testSecret), NewMemoryClaimLedger(), handler)
	req := signedRequest(t, "del_dup", core.EventPaymentCompleted, `{"payment_id":"p_1"}`, testSecret)

	first, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("first process: %v", err)
	}
	if !first.Accepted || first.StatusCode != http.StatusOK {
		t.Fatalf("expected accepted first delivery, got %+v", first)
	}

	second, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if second.Metadata["deduped"] != true {
		t.Fatalf("expected second delivery to be deduped, got %+v", second.Metadata)
	}
	if handler.count() != 1 {
		t.Fatalf("expected handler to run once, got %d", handler.count())
	}

	event := handler.events[0]
	if event.Name != core.EventPaymentCompleted || event.DeliveryID != "del_dup" || event.Attempt != 1 {
		t.Fatalf("unexpected decoded event: %+v", event)
	}
	if string(event.Data) != `{"payment_id":"p_1"}` {
		t.Fatalf("expected data to be passed through, got %s", event.Data)
	}
	if !event.Timestamp.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected envelope timestamp, got %s", event.Timestamp)
	}
}

func TestProcessor_FailedHandlerAllowsRetryThenDeadLetters(t *testing.T) {
	handler := &recordingHandler{err: errors.New("downstream unavailable")}
	ledger := NewMemoryClaimLedger()
	processor := NewProcessor(nil, ledger, handler)
	processor.MaxAttempts = 2
	req := signedRequest(t, "del_retry", core.EventOrderShipped, `{}`, testSecret)

	result, err := processor.Process(context.Background(), req)
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if result.StatusCode != http.StatusInternalServerError || result.Metadata["status"] != ClaimStatusRetryReady {
		t.Fatalf("expected 500 with retry_ready status, got %+v", result)
	}

	result, err = processor.Process(context.Background(), req)
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error on second attempt, got %v", err)
	}
	if result.Metadata["status"] != ClaimStatusDead {
		t.Fatalf("expected dead status after max attempts, got %+v", result.Metadata)
	}

	result, err = processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("expected dead claim to be acknowledged, got %v", err)
	}
	if result.Metadata["deduped"] != true || handler.count() != 2 {
		t.Fatalf("expected dead claim to stop handler calls, got %+v with %d calls", result.Metadata, handler.count())
	}
	claim, ok := ledger.Get(context.Background(), "del_retry")
	if !ok || claim.LastError != "downstream unavailable" || claim.Attempts != 2 {
		t.Fatalf("expected dead claim with last error, got %+v", claim)
	}
}

func TestProcessor_RejectsBadRequests(t *testing.T) {
	processor := NewProcessor(nil, NewMemoryClaimLedger(), &recordingHandler{})

	missingID := signedRequest(t, "del_1", core.EventOrderCreated, `{}`, testSecret)
	delete(missingID.Headers, core.HeaderDeliveryID)
	if _, err := processor.Process(context.Background(), missingID); !IsBadRequest(err) {
		t.Fatalf("expected bad request without delivery id, got %v", err)
	}

	mismatch := signedRequest(t, "del_2", core.EventOrderCreated, `{}`, testSecret)
	mismatch.Headers[core.HeaderEvent] = string(core.EventOrderCancelled)
	if _, err := processor.Process(context.Background(), mismatch); !IsBadRequest(err) {
		t.Fatalf("expected bad request for event mismatch, got %v", err)
	}

	garbage := Request{Headers: map[string]string{core.HeaderDeliveryID: "del_3"}, Body: []byte("not json")}
	if _, err := processor.Process(context.Background(), garbage); !IsBadRequest(err) {
		t.Fatalf("expected bad request for invalid envelope, got %v", err)
	}
}

func TestMemoryClaimLedger_ExpiredLeaseCanBeReclaimed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := NewMemoryClaimLedger()
	ledger.Now = func() time.Time { return now }

	first, claimed, err := ledger.Claim(context.Background(), "del_lease", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("expected first claim, got claimed=%t err=%v", claimed, err)
	}
	if _, claimed, _ := ledger.Claim(context.Background(), "del_lease", time.Minute); claimed {
		t.Fatalf("expected held lease to block a second claim")
	}

	now = now.Add(2 * time.Minute)
	second, claimed, err := ledger.Claim(context.Background(), "del_lease", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("expected expired lease to be reclaimed, got claimed=%t err=%v", claimed, err)
	}
	if second.ClaimID == first.ClaimID || second.Attempts != 2 {
		t.Fatalf("expected new claim id and attempt 2, got %+v", second)
	}
	if err := ledger.Complete(context.Background(), first.ClaimID); !IsRetryable(err) {
		t.Fatalf("expected stale claim completion to be rejected, got %v", err)
	}
	if err := ledger.Complete(context.Background(), second.ClaimID); err != nil {
		t.Fatalf("complete current claim: %v", err)
	}
}

func TestHandler_EndToEndWithSender(t *testing.T) {
	handler := &recordingHandler{}
	processor := NewProcessor(NewSignatureVerifier(testSecret), NewMemoryClaimLedger(), handler)
	server := httptest.NewServer(NewHandler(processor))
	defer server.Close()

	sub := core.Subscription{
		ID:        "sub_1",
		URL:       server.URL,
		Events:    []core.EventName{core.EventOrderCreated},
		Secret:    testSecret,
		Active:    true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	ledger := memory.NewLedger()
	svc, err := core.NewService(core.DefaultConfig(),
		core.WithSubscriptionStore(memory.NewSubscriptionStore(sub)),
		core.WithDeliveryLedger(ledger),
		core.WithTransport(transport.NewHTTPTransport(server.Client())),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := svc.Publish(context.Background(), core.EventOrderCreated, map[string]any{"order_id": "o_9"}, "")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.Delivered != 1 {
		t.Fatalf("expected one delivered, got %+v", result)
	}
	if handler.count() != 1 {
		t.Fatalf("expected receiver handler to run once, got %d", handler.count())
	}

	page, err := ledger.List(context.Background(), core.DeliveryFilter{})
	if err != nil || len(page.Items) != 1 {
		t.Fatalf("expected one delivery, got %d (err=%v)", len(page.Items), err)
	}
	if handler.events[0].DeliveryID != page.Items[0].ID {
		t.Fatalf("expected receiver to see sender delivery id %q, got %q", page.Items[0].ID, handler.events[0].DeliveryID)
	}
	if !strings.Contains(page.Items[0].Response, `"accepted":true`) {
		t.Fatalf("expected receiver response to be recorded, got %q", page.Items[0].Response)
	}
}

func TestHandler_RejectsWrongMethodAndOversizedBody(t *testing.T) {
	h := NewHandler(NewProcessor(nil, NewMemoryClaimLedger(), &recordingHandler{}))
	h.MaxBodyBytes = 8

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 9))))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestHandler_BadSignatureIsUnauthorized(t *testing.T) {
	h := NewHandler(NewProcessor(NewSignatureVerifier(testSecret), NewMemoryClaimLedger(), &recordingHandler{}))
	req := signedRequest(t, "del_1", core.EventOrderCreated, `{}`, "whsec_wrong_secret")

	httpReq := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(req.Body)))
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httpReq)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
