package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientListAndGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "secret" {
			t.Errorf("api key header = %q", got)
		}
		switch r.URL.Path {
		case "/v0/actors/alice/transactions":
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{"id": "tx-1"}, {"id": "tx-2"}},
			})
		case "/v0/actors/alice/transactions/tx-1":
			json.NewEncoder(w).Encode(map[string]any{"id": "tx-1", "amount": "5"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	items, err := c.List(context.Background(), "alice", 0, 50)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 || items[0]["id"] != "tx-1" {
		t.Fatalf("items: %v", items)
	}

	rec, err := c.Get(context.Background(), "alice", "tx-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec["amount"] != "5" {
		t.Fatalf("record: %v", rec)
	}
}

func TestClientMutationPaths(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	ctx := context.Background()
	if err := c.Release(ctx, "tx-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := c.Approve(ctx, "sender", "tx-1", "alice"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := c.Decline(ctx, "sender", 7, "alice"); err != nil {
		t.Fatalf("Decline: %v", err)
	}

	want := []string{
		"/v0/transactions/tx-1/release",
		"/v0/transactions/tx-1/approve",
		"/v0/transactions/index/7/decline",
	}
	if len(paths) != len(want) {
		t.Fatalf("paths: %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("path %d = %s, want %s", i, paths[i], want[i])
		}
	}
}

func TestClientWrapsErrorResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.Get(context.Background(), "alice", "tx-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", apiErr.StatusCode)
	}
}
