package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	SessionStatusPending = "pending"
	SessionStatusPaid    = "paid"
	SessionStatusExpired = "expired"

	// MetadataFulfilledKey is the shared flag both fulfillment paths
	// coordinate on. It lives processor-side, next to the session.
	MetadataFulfilledKey = "fulfilled"
	// MetadataUserIDKey carries the payee. Set once at session creation,
	// it is the only account id fulfillment ever trusts.
	MetadataUserIDKey = "user_id"
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	// ErrTransient marks failures the caller may retry: timeouts, 5xx.
	ErrTransient = errors.New("transient payment processor failure")
)

// Session mirrors the processor's checkout session object: an opaque id, a
// payment status and the arbitrary key/value metadata stored alongside it.
type Session struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	URL        string            `json:"url"`
	CustomerID string            `json:"customer"`
	Metadata   map[string]string `json:"metadata"`
}

func (s *Session) Paid() bool {
	return s.Status == SessionStatusPaid
}

// Processor is the surface this service needs from the payment provider:
// customer creation, checkout sessions and a read/update API on session
// metadata. The metadata update offers no compare-and-swap.
type Processor interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error)
	UpdateSessionMetadata(ctx context.Context, sessionID, key, value string) error
}

type CheckoutParams struct {
	CustomerID  string
	PriceCents  int64
	ProductName string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

// Client talks to a Stripe-compatible REST API with a bearer key and
// form-encoded bodies. Transient failures are retried with fibonacci backoff.
type Client struct {
	apiBase    string
	apiKey     string
	httpClient *http.Client
	maxRetries uint64
}

func NewClient(apiBase, apiKey string) *Client {
	return &Client{
		apiBase:    strings.TrimRight(apiBase, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetries: 3,
	}
}

func (c *Client) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("name", name)

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/customers", form, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("customer", p.CustomerID)
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", p.PriceCents))
	form.Set("line_items[0][price_data][product_data][name]", p.ProductName)
	for k, v := range p.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var sess Session
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	if err := c.do(ctx, http.MethodGet, "/checkout/sessions/"+url.PathEscape(sessionID), nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *Client) UpdateSessionMetadata(ctx context.Context, sessionID, key, value string) error {
	form := url.Values{}
	form.Set(fmt.Sprintf("metadata[%s]", key), value)
	return c.do(ctx, http.MethodPost, "/checkout/sessions/"+url.PathEscape(sessionID), form, nil)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(200*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.doOnce(ctx, method, path, form, out)
		if errors.Is(err, ErrTransient) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusNotFound:
		return ErrSessionNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	default:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("payment processor rejected %s %s: status %d: %s", method, path, resp.StatusCode, data)
	}
}
