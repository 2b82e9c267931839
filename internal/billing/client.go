package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/greenquote/payhook/internal/observability"
)

// Client fetches billing objects from the provider API when a webhook payload
// is too thin to project on its own.
type Client struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewClient builds an API client. A nil httpClient falls back to
// http.DefaultClient, which the observability setup instruments.
func NewClient(apiKey, baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		timeout: timeout,
		http:    httpClient,
	}
}

// Enabled reports whether the client has credentials to call upstream.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// GetSubscription fetches one subscription by id.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (Subscription, error) {
	var subscription Subscription
	err := c.get(ctx, "/v1/subscriptions/"+url.PathEscape(subscriptionID), &subscription)
	return subscription, err
}

// GetCustomer fetches one customer by id.
func (c *Client) GetCustomer(ctx context.Context, customerID string) (Customer, error) {
	var customer Customer
	err := c.get(ctx, "/v1/customers/"+url.PathEscape(customerID), &customer)
	return customer, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		observability.CountAPICall(ctx)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(out)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return retry.RetryableError(fmt.Errorf("billing api %s: status %d", path, resp.StatusCode))
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("billing api %s: status %d: %s", path, resp.StatusCode, body)
		}
	})
}
