// Package transport delivers signed webhook envelopes over HTTP.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhooks/core"
)

const (
	DefaultClientTimeout           = 30 * time.Second
	DefaultResponseBodyLimit int64 = 64 << 10
)

// ErrBlockedDestination is returned when a subscriber URL resolves to an
// address the transport refuses to reach.
var ErrBlockedDestination = errors.New("transport: destination address is not allowed")

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*HTTPTransport)

// WithTimeout sets the timeout of the default client.
func WithTimeout(timeout time.Duration) Option {
	return func(t *HTTPTransport) {
		if timeout > 0 {
			t.clientTimeout = timeout
		}
	}
}

// WithFollowRedirects lets the default client follow redirects. Without it a
// 3xx answer is returned as the response and recorded as a failed attempt.
func WithFollowRedirects() Option {
	return func(t *HTTPTransport) {
		t.followRedirects = true
	}
}

// WithBlockPrivateNetworks makes the default client refuse loopback, private
// and link-local addresses after DNS resolution.
func WithBlockPrivateNetworks() Option {
	return func(t *HTTPTransport) {
		t.blockPrivate = true
	}
}

func WithHeader(key, value string) Option {
	return func(t *HTTPTransport) {
		if key = strings.TrimSpace(key); key != "" {
			t.Headers[key] = strings.TrimSpace(value)
		}
	}
}

func WithResponseBodyLimit(limit int64) Option {
	return func(t *HTTPTransport) {
		if limit > 0 {
			t.MaxResponseBodyBytes = limit
		}
	}
}

// HTTPTransport posts webhook envelopes. A non-2xx answer is a response, not
// an error. Response bodies are read up to a limit and the rest is drained.
type HTTPTransport struct {
	Client               HTTPDoer
	Headers              map[string]string
	MaxResponseBodyBytes int64

	clientTimeout   time.Duration
	followRedirects bool
	blockPrivate    bool
}

// NewHTTPTransport uses client when given. Otherwise it builds a client from
// the timeout, redirect and network options.
func NewHTTPTransport(client HTTPDoer, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		Headers:              map[string]string{},
		MaxResponseBodyBytes: DefaultResponseBodyLimit,
		clientTimeout:        DefaultClientTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if client == nil {
		client = t.defaultClient()
	}
	t.Client = client
	return t
}

func (t *HTTPTransport) defaultClient() *http.Client {
	client := &http.Client{Timeout: t.clientTimeout}
	if !t.followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	if t.blockPrivate {
		dialer := &net.Dialer{Timeout: t.clientTimeout, Control: denyPrivateAddress}
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.DialContext = dialer.DialContext
		client.Transport = base
	}
	return client
}

func (t *HTTPTransport) Post(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if t == nil || t.Client == nil {
		return core.TransportResponse{}, failure(nil, goerrors.CategoryInternal,
			"transport: http client is not configured", http.StatusInternalServerError, "")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target := strings.TrimSpace(req.URL)
	endpoint, err := url.Parse(target)
	if err != nil || endpoint.Host == "" {
		return core.TransportResponse{}, failure(err, goerrors.CategoryBadInput,
			"transport: invalid subscriber url", http.StatusBadRequest, target)
	}
	target = endpoint.String()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(req.Body))
	if err != nil {
		return core.TransportResponse{}, failure(err, goerrors.CategoryBadInput,
			"transport: build request", http.StatusBadRequest, target)
	}
	applyHeaders(httpReq.Header, t.Headers)
	applyHeaders(httpReq.Header, req.Headers)

	httpRes, err := t.Client.Do(httpReq)
	if err != nil {
		message := "transport: post webhook"
		if errors.Is(err, ErrBlockedDestination) {
			message = "transport: blocked subscriber address"
		}
		return core.TransportResponse{}, failure(err, goerrors.CategoryExternal,
			message, http.StatusBadGateway, target)
	}
	defer httpRes.Body.Close()

	limit := req.ResponseLimit
	if limit <= 0 {
		limit = t.MaxResponseBodyBytes
	}
	if limit <= 0 {
		limit = DefaultResponseBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, limit))
	if err != nil {
		return core.TransportResponse{}, failure(err, goerrors.CategoryExternal,
			"transport: read response body", http.StatusBadGateway, target)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(httpRes.Body, limit))

	headers := make(map[string][]string, len(httpRes.Header))
	for key, values := range httpRes.Header {
		headers[key] = append([]string(nil), values...)
	}
	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    headers,
		Body:       body,
	}, nil
}

func applyHeaders(dst http.Header, src map[string]string) {
	for key, value := range src {
		if key = strings.TrimSpace(key); key != "" {
			dst.Set(key, strings.TrimSpace(value))
		}
	}
}

func denyPrivateAddress(_ string, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: %s", ErrBlockedDestination, host)
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return fmt.Errorf("%w: %s", ErrBlockedDestination, ip)
	}
	return nil
}

// failure builds the go-errors envelope for a transport problem. Bad input
// maps to the validation text code and external failures to the transport
// text code.
func failure(source error, category goerrors.Category, message string, code int, target string) error {
	textCode := core.WebhookErrorInternal
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		textCode = core.WebhookErrorValidation
	case goerrors.CategoryExternal:
		textCode = core.WebhookErrorTransport
	}
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}
	err = err.WithCode(code).WithTextCode(textCode)
	if target != "" {
		err = err.WithMetadata(map[string]any{"url": target})
	}
	return err
}

var _ core.Transport = (*HTTPTransport)(nil)
