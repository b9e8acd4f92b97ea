package hubclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPendingActionNonces_ParsesNonceList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/carbon/bridge/v1/pending_action_nonce" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"pending_action_nonces":["1","2","42"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "test-chain", nil, 200000, "100000000000", "swth")
	nonces, err := c.PendingActionNonces(context.Background())
	if err != nil {
		t.Fatalf("PendingActionNonces failed: %v", err)
	}
	want := []int64{1, 2, 42}
	if len(nonces) != len(want) {
		t.Fatalf("got %v, want %v", nonces, want)
	}
	for i, n := range want {
		if nonces[i] != n {
			t.Errorf("nonces[%d] = %d, want %d", i, nonces[i], n)
		}
	}
}

func TestPendingActionStillPending_TrueWhenPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pending_action":{"nonce":"7","relay_details":{"expiry_block_time":"2999-01-01T00:00:00Z"}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "test-chain", nil, 200000, "100000000000", "swth")
	pending, err := c.PendingActionStillPending(context.Background(), 7)
	if err != nil {
		t.Fatalf("PendingActionStillPending failed: %v", err)
	}
	if !pending {
		t.Error("expected pending=true when the response carries a pending_action")
	}
}

func TestPendingActionStillPending_FalseWhenAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pending_action":null}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "test-chain", nil, 200000, "100000000000", "swth")
	pending, err := c.PendingActionStillPending(context.Background(), 7)
	if err != nil {
		t.Fatalf("PendingActionStillPending failed: %v", err)
	}
	if pending {
		t.Error("expected pending=false when pending_action is null")
	}
}

func TestPendingActionStillPending_FalseWhenAlreadySent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pending_action":{"nonce":"7","relay_details":{"expiry_block_time":"2999-01-01T00:00:00Z","sent_at":"2026-01-01T00:00:00Z"}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "test-chain", nil, 200000, "100000000000", "swth")
	pending, err := c.PendingActionStillPending(context.Background(), 7)
	if err != nil {
		t.Fatalf("PendingActionStillPending failed: %v", err)
	}
	if pending {
		t.Error("expected pending=false when relay_details.sent_at is already set")
	}
}

func TestPendingActionStillPending_FalseWhenExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pending_action":{"nonce":"7","relay_details":{"expiry_block_time":"2000-01-01T00:00:00Z"}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "test-chain", nil, 200000, "100000000000", "swth")
	pending, err := c.PendingActionStillPending(context.Background(), 7)
	if err != nil {
		t.Fatalf("PendingActionStillPending failed: %v", err)
	}
	if pending {
		t.Error("expected pending=false when relay_details.expiry_block_time has passed")
	}
}

func TestTxSearch_DecodesTxs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") == "" {
			t.Error("expected a non-empty query parameter")
		}
		w.Write([]byte(`{"result":{"txs":[{"hash":"ABC123","height":"10","tx_result":{"events":[]}}],"total_count":"1"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "test-chain", nil, 200000, "100000000000", "swth")
	txs, err := c.TxSearch(context.Background(), "tx.height=10")
	if err != nil {
		t.Fatalf("TxSearch failed: %v", err)
	}
	if len(txs) != 1 || txs[0].TxHash != "ABC123" {
		t.Errorf("unexpected tx_search result: %+v", txs)
	}
}

func TestGetJSON_ReturnsErrorOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "test-chain", nil, 200000, "100000000000", "swth")
	if _, err := c.PendingActionNonces(context.Background()); err == nil {
		t.Error("expected an error on a 500 response")
	}
}
