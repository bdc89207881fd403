package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the HTTP implementation of Ledger.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger error: status=%d body=%s", e.StatusCode, e.Body)
}

type listResponse struct {
	Items []Record `json:"items"`
}

func (c *Client) List(ctx context.Context, actor string, offset, limit int) ([]Record, error) {
	endpoint := fmt.Sprintf("v0/actors/%s/transactions?offset=%d&limit=%d", url.PathEscape(actor), offset, limit)
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) Get(ctx context.Context, actor, txID string) (Record, error) {
	endpoint := fmt.Sprintf("v0/actors/%s/transactions/%s", url.PathEscape(actor), url.PathEscape(txID))
	var resp Record
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Release(ctx context.Context, txID string) error {
	return c.mutate(ctx, txID, "release", map[string]any{"id": txID})
}

func (c *Client) Cancel(ctx context.Context, sender, txID string) error {
	return c.mutate(ctx, txID, "cancel", map[string]any{"sender": sender, "id": txID})
}

func (c *Client) Refund(ctx context.Context, sender, txID string) error {
	return c.mutate(ctx, txID, "refund", map[string]any{"sender": sender, "id": txID})
}

func (c *Client) Approve(ctx context.Context, sender, txID, recipient string) error {
	return c.mutate(ctx, txID, "approve", map[string]any{"sender": sender, "id": txID, "recipient": recipient})
}

func (c *Client) Decline(ctx context.Context, sender string, txIndex int64, recipient string) error {
	// Decline addresses the record by ledger index, not id.
	endpoint := fmt.Sprintf("v0/transactions/index/%d/decline", txIndex)
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{"sender": sender, "recipient": recipient}, nil)
}

func (c *Client) mutate(ctx context.Context, txID, action string, body map[string]any) error {
	endpoint := fmt.Sprintf("v0/transactions/%s/%s", url.PathEscape(txID), action)
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
