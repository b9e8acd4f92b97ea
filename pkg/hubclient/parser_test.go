package hubclient

import (
	"testing"

	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/store"
)

func quotedEvent(typ string, attrs map[string]string) Event {
	e := Event{Type: typ}
	for k, v := range attrs {
		e.Attributes = append(e.Attributes, Attribute{Key: k, Value: `"` + v + `"`})
	}
	return e
}

func TestParseConnectionID(t *testing.T) {
	bridgeID, chainID, contract, err := ParseConnectionID("bridge-1/1/0xdeadbeef")
	if err != nil {
		t.Fatalf("ParseConnectionID failed: %v", err)
	}
	if bridgeID != "bridge-1" || chainID != "1" || contract != "0xdeadbeef" {
		t.Errorf("got (%q,%q,%q), want (bridge-1,1,0xdeadbeef)", bridgeID, chainID, contract)
	}
}

func TestParseConnectionID_TooFewSegments(t *testing.T) {
	if _, _, _, err := ParseConnectionID("bridge-1/1"); err == nil {
		t.Error("expected an error for a connection_id with fewer than 3 segments")
	}
}

func TestParsePendingActionEvent(t *testing.T) {
	event := quotedEvent("PendingActionEvent", map[string]string{
		"connection_id":        "bridge-1/1/0xdeadbeef",
		"nonce":                "42",
		"pending_action_type":  "4",
		"fee_amount":           "100",
		"fee_denom":            "swth",
		"fee_receiver_address": "receiver",
		"fee_sender_address":   "sender",
		"expiry_block_time":    "2026-01-01T00:00:00Z",
	})

	action, err := ParsePendingActionEvent(event)
	if err != nil {
		t.Fatalf("ParsePendingActionEvent failed: %v", err)
	}
	if action.Nonce != 42 {
		t.Errorf("nonce = %d, want 42", action.Nonce)
	}
	if action.BridgeID != "bridge-1" || action.ChainID != "1" {
		t.Errorf("got bridge_id=%q chain_id=%q, want bridge-1/1", action.BridgeID, action.ChainID)
	}
	if action.PendingActionType != store.PendingActionWithdraw {
		t.Errorf("pending_action_type = %v, want PendingActionWithdraw", action.PendingActionType)
	}
	if action.RelayDetails.FeeAmount != "100" {
		t.Errorf("fee_amount = %q, want 100", action.RelayDetails.FeeAmount)
	}
}

func TestParseExpiredOrRevertedNonce(t *testing.T) {
	event := quotedEvent("ExpiredPendingActionEvent", map[string]string{"nonce": "7"})
	nonce, err := ParseExpiredOrRevertedNonce(event)
	if err != nil {
		t.Fatalf("ParseExpiredOrRevertedNonce failed: %v", err)
	}
	if nonce != 7 {
		t.Errorf("nonce = %d, want 7", nonce)
	}
}

func TestParseAxelarCallContractEvent(t *testing.T) {
	// base64("hello") = "aGVsbG8="
	event := quotedEvent("AxelarCallContractEvent", map[string]string{
		"nonce":   "3",
		"payload": "aGVsbG8=",
	})

	call, err := ParseAxelarCallContractEvent(event)
	if err != nil {
		t.Fatalf("ParseAxelarCallContractEvent failed: %v", err)
	}
	if call.Nonce != 3 {
		t.Errorf("nonce = %d, want 3", call.Nonce)
	}
	if call.Payload != "68656c6c6f" {
		t.Errorf("payload = %q, want 68656c6c6f", call.Payload)
	}
	if call.PayloadEncoding != "proto3" {
		t.Errorf("payload_encoding = %q, want default proto3", call.PayloadEncoding)
	}
	wantHash := "0x1c8aff950685c2ed4bc3174f3472287b56d9517b9c948127319a09a7a36deac8"
	if call.PayloadHash != wantHash {
		t.Errorf("payload_hash = %s, want %s", call.PayloadHash, wantHash)
	}
}

func TestEvent_Get_StripsQuotes(t *testing.T) {
	event := Event{Attributes: []Attribute{{Key: "nonce", Value: `"123"`}}}
	v, ok := event.Get("nonce")
	if !ok || v != "123" {
		t.Errorf("Get(nonce) = (%q,%v), want (123,true)", v, ok)
	}
}

func TestEvent_Get_MissingKey(t *testing.T) {
	event := Event{}
	if _, ok := event.Get("nonce"); ok {
		t.Error("Get should report false for a missing attribute")
	}
}
