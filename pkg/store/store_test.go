package store

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/config"
)

// testClient connects against RELAYER_TEST_DB and applies migrations, or
// skips the test if no test database is configured, matching the teacher's
// own database-test idiom (see
// pkg/database/proof_artifact_repository_test.go's TestMain).
func testClient(t *testing.T) *Client {
	t.Helper()
	pgURL := os.Getenv("RELAYER_TEST_DB")
	if pgURL == "" {
		t.Skip("RELAYER_TEST_DB not configured, skipping event store integration test")
	}

	client, err := NewClient(&config.Database{PgURL: pgURL, MaxConns: 5, MinConns: 1})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	if err := client.MigrateUp(ctx); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	cleanTables(t, client.db)
	t.Cleanup(func() { cleanTables(t, client.db) })

	return client
}

func cleanTables(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, table := range []string{"pending_action_events", "axelar_call_contract_events", "contract_call_approved_events"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("failed to clean table %s: %v", table, err)
		}
	}
}

func samplePendingAction(nonce int64) PendingAction {
	now := time.Now().UTC().Truncate(time.Second)
	return PendingAction{
		ConnectionID:      "axelar/ethereum-1/0xGateway",
		BridgeID:          "axelar",
		ChainID:           "ethereum-1",
		Nonce:             nonce,
		PendingActionType: PendingActionWithdraw,
		RetryCount:        0,
		RelayDetails: RelayDetails{
			FeeReceiverAddress: "swth1receiver",
			FeeSenderAddress:   "swth1sender",
			FeeAmount:          "100",
			FeeDenom:           "usdc",
			CreatedAt:          now,
			ExpiryBlockTime:    now.Add(10 * time.Minute),
		},
	}
}

func TestInsertPendingAction_IdempotentOnNonce(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	action := samplePendingAction(42)
	if err := client.InsertPendingAction(ctx, action); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := client.InsertPendingAction(ctx, action); err != nil {
		t.Fatalf("second (conflicting) insert should be a silent no-op, got: %v", err)
	}

	got, err := client.LookupPendingActionByNonce(ctx, 42)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.Nonce != 42 || got.RetryCount != 0 {
		t.Errorf("unexpected row after idempotent insert: %+v", got)
	}
}

func TestLookupPendingActionByNonce_NotFound(t *testing.T) {
	client := testClient(t)
	if _, err := client.LookupPendingActionByNonce(context.Background(), 999); err != ErrPendingActionNotFound {
		t.Errorf("expected ErrPendingActionNotFound, got %v", err)
	}
}

func TestBumpRetry(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	action := samplePendingAction(7)
	if err := client.InsertPendingAction(ctx, action); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := client.BumpRetry(ctx, 7); err != nil {
		t.Fatalf("bump retry failed: %v", err)
	}
	if err := client.BumpRetry(ctx, 7); err != nil {
		t.Fatalf("second bump retry failed: %v", err)
	}

	got, err := client.LookupPendingActionByNonce(ctx, 7)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.RetryCount != 2 {
		t.Errorf("retry_count = %d, want 2", got.RetryCount)
	}
}

func TestListRetriable(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	retriable := samplePendingAction(1)
	retriable.RetryCount = 1
	maxedOut := samplePendingAction(2)
	maxedOut.RetryCount = 5
	expired := samplePendingAction(3)
	expired.RelayDetails.ExpiryBlockTime = now.Add(-time.Minute)

	for _, a := range []PendingAction{retriable, maxedOut, expired} {
		if err := client.InsertPendingAction(ctx, a); err != nil {
			t.Fatalf("insert nonce=%d failed: %v", a.Nonce, err)
		}
	}
	if err := client.BumpRetry(ctx, 1); err != nil {
		t.Fatalf("bump retry failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := client.BumpRetry(ctx, 2); err != nil {
			t.Fatalf("bump retry failed: %v", err)
		}
	}

	rows, err := client.ListRetriable(ctx, 5, now)
	if err != nil {
		t.Fatalf("list_retriable failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Nonce != 1 {
		t.Errorf("list_retriable = %+v, want only nonce=1", rows)
	}
}

func TestListExpired(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stillLive := samplePendingAction(10)
	atExpiry := samplePendingAction(11)
	atExpiry.RelayDetails.ExpiryBlockTime = now
	pastExpiry := samplePendingAction(12)
	pastExpiry.RelayDetails.ExpiryBlockTime = now.Add(-time.Hour)

	for _, a := range []PendingAction{stillLive, atExpiry, pastExpiry} {
		if err := client.InsertPendingAction(ctx, a); err != nil {
			t.Fatalf("insert nonce=%d failed: %v", a.Nonce, err)
		}
	}

	rows, err := client.ListExpired(ctx, now)
	if err != nil {
		t.Fatalf("list_expired failed: %v", err)
	}
	got := map[int64]bool{}
	for _, r := range rows {
		got[r.Nonce] = true
	}
	if !got[11] || !got[12] || got[10] {
		t.Errorf("list_expired nonces = %v, want {11,12} only", got)
	}
}

func TestDeletePendingActions(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	for _, nonce := range []int64{20, 21, 22} {
		if err := client.InsertPendingAction(ctx, samplePendingAction(nonce)); err != nil {
			t.Fatalf("insert nonce=%d failed: %v", nonce, err)
		}
	}

	if err := client.DeletePendingActions(ctx, []int64{20, 22}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := client.LookupPendingActionByNonce(ctx, 20); err != ErrPendingActionNotFound {
		t.Errorf("nonce=20 should be deleted, got err=%v", err)
	}
	if _, err := client.LookupPendingActionByNonce(ctx, 22); err != ErrPendingActionNotFound {
		t.Errorf("nonce=22 should be deleted, got err=%v", err)
	}
	if _, err := client.LookupPendingActionByNonce(ctx, 21); err != nil {
		t.Errorf("nonce=21 should survive, got err=%v", err)
	}
}

func TestAxelarCallContract_InsertAndLookup(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	action := samplePendingAction(30)
	if err := client.InsertPendingAction(ctx, action); err != nil {
		t.Fatalf("insert pending action failed: %v", err)
	}

	call := AxelarCallContract{Nonce: 30, PayloadHash: "0xdeadbeef", Payload: "deadbeef", PayloadEncoding: "proto3"}
	if err := client.InsertAxelarCall(ctx, call); err != nil {
		t.Fatalf("insert axelar call failed: %v", err)
	}
	// Idempotent on payload_hash.
	if err := client.InsertAxelarCall(ctx, call); err != nil {
		t.Fatalf("conflicting insert should be a silent no-op, got: %v", err)
	}

	got, err := client.LookupAxelarCallByHash(ctx, "0xdeadbeef")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.Nonce != 30 {
		t.Errorf("nonce = %d, want 30", got.Nonce)
	}

	if _, err := client.LookupAxelarCallByHash(ctx, "0xmissing"); err != ErrAxelarCallNotFound {
		t.Errorf("expected ErrAxelarCallNotFound, got %v", err)
	}
}

func sampleApprovedCall(commandID string) ApprovedCall {
	return ApprovedCall{
		Blockchain:       "1",
		CommandID:        commandID,
		SourceChain:      "ethereum-1",
		SourceAddress:    "0xSource",
		ContractAddress:  "0xDestination",
		PayloadHash:      "0xhash" + commandID,
		SourceTxHash:     "0xtxhash",
		SourceEventIndex: "0",
		Payload:          "deadbeef",
	}
}

func TestApprovedCall_InsertListAndTransition(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	row := sampleApprovedCall("0xcmd1")
	if err := client.InsertApprovedCall(ctx, row); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	// Idempotent on (blockchain, command_id).
	if err := client.InsertApprovedCall(ctx, row); err != nil {
		t.Fatalf("conflicting insert should be a silent no-op, got: %v", err)
	}

	pending, err := client.ListApprovedPending(ctx)
	if err != nil {
		t.Fatalf("list_approved_pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected exactly one pending_broadcast row, got %d", len(pending))
	}
	id := pending[0].ID

	ok, err := client.SetApprovedStatus(ctx, id, BroadcastPending, BroadcastBroadcasting)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if !ok {
		t.Fatal("expected transition to succeed")
	}

	// A stale compare-and-swap against the old status must fail (Testable
	// Property #11): the row has already moved to broadcasting.
	ok, err = client.SetApprovedStatus(ctx, id, BroadcastPending, BroadcastExecuted)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if ok {
		t.Error("expected stale compare-and-swap to fail")
	}

	ok, err = client.SetApprovedStatus(ctx, id, BroadcastBroadcasting, BroadcastExecuted)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if !ok {
		t.Error("expected transition from broadcasting to executed to succeed")
	}

	pending, err = client.ListApprovedPending(ctx)
	if err != nil {
		t.Fatalf("list_approved_pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending_broadcast rows left, got %d", len(pending))
	}
}
