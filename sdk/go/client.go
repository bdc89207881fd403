package escrowsdk

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

// Client is a minimal Escrowline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// Actor is sent as the X-Actor header when authenticating by API key.
	Actor      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Transaction mirrors the API transaction model (partial).
type Transaction struct {
	ID        string `json:"id"`
	Index     int64  `json:"index,string"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	From      string `json:"from"`
	Amount    int64  `json:"amount,string"`
	CreatedAt int64  `json:"created_at,string"`
}

// Controls reports what the acting identity may do with a transaction.
type Controls struct {
	IsSender   bool `json:"is_sender"`
	HasActed   bool `json:"has_acted"`
	CanApprove bool `json:"can_approve"`
	CanDecline bool `json:"can_decline"`
	CanRelease bool `json:"can_release"`
	CanRefund  bool `json:"can_refund"`
	CanEdit    bool `json:"can_edit"`
	CanCancel  bool `json:"can_cancel"`
}

// TransactionView is a transaction with its derived lifecycle state.
type TransactionView struct {
	Transaction    Transaction `json:"transaction"`
	Step           int         `json:"step"`
	CanCancel      bool        `json:"can_cancel"`
	Controls       Controls    `json:"controls"`
	TotalAllocated float64     `json:"total_allocated"`
	RecipientCount int         `json:"recipient_count"`
}

// ActionResult reports the reconciled state after a lifecycle action.
// Confirmed is false when the server fell back to an optimistic local state.
type ActionResult struct {
	Transaction Transaction `json:"transaction"`
	Confirmed   bool        `json:"confirmed"`
	Error       string      `json:"error,omitempty"`
}

// AuditEvent is one entry from the server's action audit log.
type AuditEvent struct {
	ID            string `json:"id"`
	TS            string `json:"ts"`
	Action        string `json:"action"`
	TransactionID string `json:"transaction_id"`
	Actor         string `json:"actor"`
	Outcome       string `json:"outcome"`
	Error         string `json:"error,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Transactions lists transactions with derived view state. Set sync to pull
// a fresh page from the ledger first.
func (c *Client) Transactions(ctx context.Context, sync bool) ([]TransactionView, error) {
	endpoint := "v0/transactions"
	if sync {
		endpoint += "?sync=true"
	}
	var resp struct {
		Items []TransactionView `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Transaction fetches one transaction by id.
func (c *Client) Transaction(ctx context.Context, id string) (TransactionView, error) {
	var resp TransactionView
	endpoint := "v0/transactions/" + url.PathEscape(id)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Release releases escrowed funds.
func (c *Client) Release(ctx context.Context, id string) (ActionResult, error) {
	return c.action(ctx, id, "release")
}

// Cancel cancels a pending escrow.
func (c *Client) Cancel(ctx context.Context, id string) (ActionResult, error) {
	return c.action(ctx, id, "cancel")
}

// Refund refunds escrowed funds to the sender.
func (c *Client) Refund(ctx context.Context, id string) (ActionResult, error) {
	return c.action(ctx, id, "refund")
}

// Approve approves an escrow as a recipient.
func (c *Client) Approve(ctx context.Context, id string) (ActionResult, error) {
	return c.action(ctx, id, "approve")
}

// Decline declines an escrow as a recipient.
func (c *Client) Decline(ctx context.Context, id string) (ActionResult, error) {
	return c.action(ctx, id, "decline")
}

// AuditLog tails the server's action audit log.
func (c *Client) AuditLog(ctx context.Context, limit int, transactionID string) ([]AuditEvent, error) {
	endpoint := "v0/audit"
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if transactionID != "" {
		params.Set("transaction_id", transactionID)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp struct {
		Items []AuditEvent `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) action(ctx context.Context, id, name string) (ActionResult, error) {
	var resp ActionResult
	endpoint := fmt.Sprintf("v0/transactions/%s/%s", url.PathEscape(id), name)
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
		if c.Actor != "" {
			req.Header.Set("X-Actor", c.Actor)
		}
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

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
