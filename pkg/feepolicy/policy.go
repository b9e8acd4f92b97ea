// Package feepolicy is the Fee Policy (C5): decides whether a pending
// action's attached fee is acceptable under one of three strategies (spec
// §4.5).
package feepolicy

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/config"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/store"
)

// Strategy is one of the three selectable fee-acceptance strategies.
type Strategy string

const (
	StrategyAll            Strategy = "all"
	StrategyGreaterThanZero Strategy = "greater_than_0"
	StrategyHydrogen       Strategy = "hydrogen"
)

// hydrogenQuote is the subset of the hydrogen_fees response this policy
// inspects, keyed by pending action type name.
type hydrogenQuote struct {
	Withdraw            string `json:"withdraw"`
	RegisterToken        string `json:"register_token"`
	DeregisterToken      string `json:"deregister_token"`
	DeployNativeToken    string `json:"deploy_native_token"`
	WithdrawAndExecute   string `json:"withdraw_and_execute"`
	QuotedAt             string `json:"quoted_at"`
}

// Policy evaluates pending actions against the configured strategy and
// override rules. A single Policy is safe for concurrent use: it holds no
// mutable state beyond an HTTP client.
type Policy struct {
	strategy      Strategy
	hydrogenURL   string
	toleranceBps  *big.Int
	whitelist     map[string]bool
	callbackDenom string

	httpClient *http.Client
}

// New builds a Policy from the fee configuration section.
func New(cfg config.Fee) (*Policy, error) {
	strategy := Strategy(cfg.RelayStrategy)
	switch strategy {
	case StrategyAll, StrategyGreaterThanZero, StrategyHydrogen:
	default:
		return nil, fmt.Errorf("unknown fee relay strategy %q", cfg.RelayStrategy)
	}

	whitelist := make(map[string]bool, len(cfg.WhitelistAddresses))
	for _, addr := range cfg.WhitelistAddresses {
		whitelist[addr] = true
	}

	toleranceBps := big.NewInt(int64(cfg.FeeTolerancePercentage * 100))

	return &Policy{
		strategy:      strategy,
		hydrogenURL:   cfg.HydrogenURL,
		toleranceBps:  toleranceBps,
		whitelist:     whitelist,
		callbackDenom: cfg.CallbackDenom,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Accept decides whether action's attached fee is acceptable, evaluating
// the two override rules before the selected strategy (spec §4.5).
func (p *Policy) Accept(ctx context.Context, action store.PendingAction) (bool, error) {
	if p.whitelist[action.RelayDetails.FeeSenderAddress] {
		return true, nil
	}
	if action.PendingActionType == store.PendingActionRegisterToken && action.RelayDetails.FeeDenom == p.callbackDenom && p.callbackDenom != "" {
		return true, nil
	}

	switch p.strategy {
	case StrategyAll:
		return true, nil
	case StrategyGreaterThanZero:
		amount, ok := new(big.Int).SetString(action.RelayDetails.FeeAmount, 10)
		if !ok {
			return false, fmt.Errorf("fee amount %q is not a valid integer", action.RelayDetails.FeeAmount)
		}
		return amount.Sign() > 0, nil
	case StrategyHydrogen:
		return p.acceptHydrogen(ctx, action)
	default:
		return false, fmt.Errorf("unknown fee relay strategy %q", p.strategy)
	}
}

func (p *Policy) acceptHydrogen(ctx context.Context, action store.PendingAction) (bool, error) {
	quote, err := p.fetchHydrogenQuote(ctx, action.ConnectionID, action.RelayDetails.FeeDenom)
	if err != nil {
		// Conservative: a quote failure rejects the action (spec §4.5).
		return false, nil
	}

	quoteAmountStr := quoteForType(quote, action.PendingActionType)
	if quoteAmountStr == "" {
		return false, nil
	}

	quoteAmount, ok := new(big.Int).SetString(quoteAmountStr, 10)
	if !ok {
		return false, fmt.Errorf("hydrogen quote amount %q is not a valid integer", quoteAmountStr)
	}
	attachedAmount, ok := new(big.Int).SetString(action.RelayDetails.FeeAmount, 10)
	if !ok {
		return false, fmt.Errorf("fee amount %q is not a valid integer", action.RelayDetails.FeeAmount)
	}

	// min_acceptable = quote * (10000 - tolerance_bp) / 10000
	const basisPointsDenominator = 10000
	numerator := new(big.Int).Sub(big.NewInt(basisPointsDenominator), p.toleranceBps)
	minAcceptable := new(big.Int).Mul(quoteAmount, numerator)
	minAcceptable.Div(minAcceptable, big.NewInt(basisPointsDenominator))

	return attachedAmount.Cmp(minAcceptable) >= 0, nil
}

func quoteForType(q hydrogenQuote, t store.PendingActionType) string {
	switch t {
	case store.PendingActionWithdraw:
		return q.Withdraw
	case store.PendingActionRegisterToken:
		return q.RegisterToken
	case store.PendingActionDeregisterToken:
		return q.DeregisterToken
	case store.PendingActionDeployNativeToken:
		return q.DeployNativeToken
	case store.PendingActionWithdrawAndExecute:
		return q.WithdrawAndExecute
	default:
		return ""
	}
}

func (p *Policy) fetchHydrogenQuote(ctx context.Context, connectionID, feeDenom string) (hydrogenQuote, error) {
	u, err := url.Parse(p.hydrogenURL + "/bridge_fees")
	if err != nil {
		return hydrogenQuote{}, err
	}
	q := u.Query()
	q.Set("connection_id", connectionID)
	q.Set("fee_denom", feeDenom)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return hydrogenQuote{}, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return hydrogenQuote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return hydrogenQuote{}, fmt.Errorf("hydrogen quote request failed with status %d", resp.StatusCode)
	}

	var quote hydrogenQuote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return hydrogenQuote{}, fmt.Errorf("failed to decode hydrogen quote: %w", err)
	}
	return quote, nil
}
