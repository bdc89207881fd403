package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Notification is one counterparty message for a completed (or attempted)
// escrow action. Delivery is best effort: the orchestrator logs failures
// and never lets them fail the action.
type Notification struct {
	Recipient     string `json:"recipient"`
	Action        string `json:"action"`
	TransactionID string `json:"transaction_id"`
	Title         string `json:"title,omitempty"`
	Actor         string `json:"actor,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// HTTP posts notifications to a delivery endpoint.
type HTTP struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewHTTP(baseURL, apiKey string) *HTTP {
	return &HTTP{BaseURL: baseURL, APIKey: apiKey, Timeout: 5 * time.Second}
}

func (h *HTTP) Notify(ctx context.Context, n Notification) error {
	if h.HTTPClient == nil {
		h.HTTPClient = &http.Client{Timeout: h.Timeout}
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(n); err != nil {
		return err
	}
	u := strings.TrimRight(h.BaseURL, "/") + "/v0/notifications"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		req.Header.Set("X-Api-Key", h.APIKey)
	}
	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notify: status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// Nop swallows notifications; used when no delivery endpoint is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
