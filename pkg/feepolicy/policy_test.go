package feepolicy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/config"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/store"
)

func action(feeAmount, feeDenom, sender string, kind store.PendingActionType) store.PendingAction {
	return store.PendingAction{
		ConnectionID: "bridge-1/1/0xdead",
		Nonce:        1,
		PendingActionType: kind,
		RelayDetails: store.RelayDetails{
			FeeAmount:        feeAmount,
			FeeDenom:         feeDenom,
			FeeSenderAddress: sender,
		},
	}
}

func TestAccept_StrategyAll(t *testing.T) {
	p, err := New(config.Fee{RelayStrategy: "all"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ok, err := p.Accept(context.Background(), action("0", "swth", "sender", store.PendingActionWithdraw))
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if !ok {
		t.Error("strategy all should accept a zero fee")
	}
}

func TestAccept_StrategyGreaterThanZero(t *testing.T) {
	p, err := New(config.Fee{RelayStrategy: "greater_than_0"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	cases := []struct {
		amount string
		want   bool
	}{
		{"0", false},
		{"1", true},
		{"100000", true},
	}
	for _, tc := range cases {
		ok, err := p.Accept(context.Background(), action(tc.amount, "swth", "sender", store.PendingActionWithdraw))
		if err != nil {
			t.Fatalf("Accept(%s) failed: %v", tc.amount, err)
		}
		if ok != tc.want {
			t.Errorf("Accept(%s) = %v, want %v", tc.amount, ok, tc.want)
		}
	}
}

func TestAccept_WhitelistOverridesStrategy(t *testing.T) {
	p, err := New(config.Fee{RelayStrategy: "greater_than_0", WhitelistAddresses: []string{"vip-sender"}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ok, err := p.Accept(context.Background(), action("0", "swth", "vip-sender", store.PendingActionWithdraw))
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if !ok {
		t.Error("whitelisted sender should be accepted regardless of fee amount")
	}
}

func TestAccept_CallbackDenomOverridesRegisterToken(t *testing.T) {
	p, err := New(config.Fee{RelayStrategy: "greater_than_0", CallbackDenom: "callback"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ok, err := p.Accept(context.Background(), action("0", "callback", "sender", store.PendingActionRegisterToken))
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if !ok {
		t.Error("register_token with matching callback denom should be accepted regardless of fee amount")
	}
}

func TestAccept_StrategyHydrogen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"withdraw":"1000","quoted_at":"2026-01-01T00:00:00Z"}`))
	}))
	defer server.Close()

	p, err := New(config.Fee{RelayStrategy: "hydrogen", HydrogenURL: server.URL, FeeTolerancePercentage: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// 1% tolerance: min_acceptable = 1000 * 9900 / 10000 = 990
	cases := []struct {
		amount string
		want   bool
	}{
		{"989", false},
		{"990", true},
		{"1000", true},
	}
	for _, tc := range cases {
		ok, err := p.Accept(context.Background(), action(tc.amount, "swth", "sender", store.PendingActionWithdraw))
		if err != nil {
			t.Fatalf("Accept(%s) failed: %v", tc.amount, err)
		}
		if ok != tc.want {
			t.Errorf("Accept(%s) = %v, want %v", tc.amount, ok, tc.want)
		}
	}
}

func TestAccept_StrategyHydrogenQuoteFailureRejects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p, err := New(config.Fee{RelayStrategy: "hydrogen", HydrogenURL: server.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ok, err := p.Accept(context.Background(), action("1000", "swth", "sender", store.PendingActionWithdraw))
	if err != nil {
		t.Fatalf("Accept should not error on quote failure, got: %v", err)
	}
	if ok {
		t.Error("a failed quote request should reject, not accept")
	}
}

func TestNew_RejectsUnknownStrategy(t *testing.T) {
	if _, err := New(config.Fee{RelayStrategy: "bogus"}); err == nil {
		t.Error("expected an error for an unknown relay strategy")
	}
}
