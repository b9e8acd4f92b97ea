package hubclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Client is the read+write access point to the Hub chain: REST reads and
// Cosmos SDK transaction signing/submission (spec §4.2).
type Client struct {
	restURL string
	rpcURL  string
	chainID string
	key     *SigningKey

	baseGas  uint64
	feeAmount string
	feeDenom  string

	httpClient *http.Client
	logger     *log.Logger
}

// NewClient builds a Hub client bound to one signing key.
func NewClient(restURL, rpcURL, chainID string, key *SigningKey, baseGas uint64, feeAmount, feeDenom string) *Client {
	return &Client{
		restURL:    restURL,
		rpcURL:     rpcURL,
		chainID:    chainID,
		key:        key,
		baseGas:    baseGas,
		feeAmount:  feeAmount,
		feeDenom:   feeDenom,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     log.New(log.Writer(), "[HubClient] ", log.LstdFlags),
	}
}

// PendingActionNonces returns the Hub's authoritative pending-action nonce
// set (spec §4.2 REST read surface).
func (c *Client) PendingActionNonces(ctx context.Context) ([]int64, error) {
	var payload struct {
		Nonces []string `json:"pending_action_nonces"`
	}
	if err := c.getJSON(ctx, c.restURL+"/carbon/bridge/v1/pending_action_nonce", &payload); err != nil {
		return nil, fmt.Errorf("failed to query pending action nonces: %w", err)
	}
	out := make([]int64, 0, len(payload.Nonces))
	for _, n := range payload.Nonces {
		var v int64
		if _, err := fmt.Sscanf(n, "%d", &v); err == nil {
			out = append(out, v)
		}
	}
	return out, nil
}

// PendingActionStillPending reports whether nonce is still eligible for a
// start-relay attempt: present on the Hub, not expired, and not already
// sent (spec §4.6 step 1: "if the action is gone, expired, or already
// sent_at, skip with no mutation").
func (c *Client) PendingActionStillPending(ctx context.Context, nonce int64) (bool, error) {
	var payload struct {
		PendingAction *struct {
			Nonce        string `json:"nonce"`
			RelayDetails struct {
				ExpiryBlockTime string `json:"expiry_block_time"`
				SentAt          string `json:"sent_at"`
			} `json:"relay_details"`
		} `json:"pending_action"`
	}
	url := fmt.Sprintf("%s/carbon/bridge/v1/pending_action/%d", c.restURL, nonce)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return false, fmt.Errorf("failed to query pending action %d: %w", nonce, err)
	}
	if payload.PendingAction == nil {
		return false, nil
	}
	if payload.PendingAction.RelayDetails.SentAt != "" {
		return false, nil
	}
	if expiryStr := payload.PendingAction.RelayDetails.ExpiryBlockTime; expiryStr != "" {
		expiry, err := parseTimestamp(expiryStr)
		if err != nil {
			return false, fmt.Errorf("invalid expiry_block_time %q for pending action %d: %w", expiryStr, nonce, err)
		}
		if !time.Now().UTC().Before(expiry) {
			return false, nil
		}
	}
	return true, nil
}

// TxSearch runs a Tendermint tx_search query against the Hub's JSON-RPC
// endpoint, grounded in original_source/src/tx_sync.rs's abci_query: build
// a height-bounded query string, URL-encode it, and decode the tx_search
// envelope (spec §4.8, §6 wire protocols).
func (c *Client) TxSearch(ctx context.Context, query string) ([]TxResultEnvelope, error) {
	u := fmt.Sprintf(`%s/tx_search?query=%s`, c.rpcURL, url.QueryEscape(`"`+query+`"`))

	var payload struct {
		Result struct {
			Txs        []TxResultEnvelope `json:"txs"`
			TotalCount string             `json:"total_count"`
		} `json:"result"`
	}
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, fmt.Errorf("tx_search failed for query %q: %w", query, err)
	}
	return payload.Result.Txs, nil
}

type accountInfo struct {
	AccountNumber uint64
	Sequence      uint64
}

func (c *Client) queryAccount(ctx context.Context, address string) (accountInfo, error) {
	var payload struct {
		Account struct {
			AccountNumber string `json:"account_number"`
			Sequence      string `json:"sequence"`
		} `json:"account"`
	}
	url := fmt.Sprintf("%s/cosmos/auth/v1beta1/accounts/%s", c.restURL, address)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return accountInfo{}, fmt.Errorf("failed to query account %s: %w", address, err)
	}
	var info accountInfo
	fmt.Sscanf(payload.Account.AccountNumber, "%d", &info.AccountNumber)
	fmt.Sscanf(payload.Account.Sequence, "%d", &info.Sequence)
	return info, nil
}

func (c *Client) latestBlockHeight(ctx context.Context) (uint64, error) {
	var payload struct {
		Block struct {
			Header struct {
				Height string `json:"height"`
			} `json:"header"`
		} `json:"block"`
	}
	if err := c.getJSON(ctx, c.rpcURL+"/block", &payload); err != nil {
		return 0, fmt.Errorf("failed to query latest block: %w", err)
	}
	var height uint64
	fmt.Sscanf(payload.Block.Header.Height, "%d", &height)
	return height, nil
}

// broadcastTxResponse is the subset of the REST broadcast response this
// client inspects.
type broadcastTxResponse struct {
	TxResponse struct {
		Code   int    `json:"code"`
		RawLog string `json:"raw_log"`
		TxHash string `json:"txhash"`
	} `json:"tx_response"`
}

// SubmitMsg signs and broadcasts a single Any-wrapped message, following
// spec §4.2's six-step protocol: query account, build body + fee,
// SIGN_DIRECT sign-doc, BROADCAST_MODE_SYNC.
func (c *Client) SubmitMsg(ctx context.Context, msgAny []byte) error {
	account, err := c.queryAccount(ctx, c.key.Address())
	if err != nil {
		return err
	}

	latest, err := c.latestBlockHeight(ctx)
	if err != nil {
		return err
	}
	timeoutHeight := latest + 100

	body := txBody(msgAny, timeoutHeight)

	gasLimit := uint64(float64(c.baseGas) * 1.2)
	authInfoBytes := authInfo(
		signerInfo(c.key.PubKeyAny(), account.Sequence),
		fee(c.feeAmount, c.feeDenom, gasLimit),
	)

	doc := signDoc(body, authInfoBytes, c.chainID, account.AccountNumber)
	signature := c.key.Sign(doc)

	raw := txRaw(body, authInfoBytes, signature)

	return c.broadcastSync(ctx, raw)
}

func (c *Client) broadcastSync(ctx context.Context, txBytes []byte) error {
	reqBody := struct {
		TxBytes string `json:"tx_bytes"`
		Mode    string `json:"mode"`
	}{
		TxBytes: base64.StdEncoding.EncodeToString(txBytes),
		Mode:    "BROADCAST_MODE_SYNC",
	}

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to encode broadcast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.restURL+"/cosmos/tx/v1beta1/txs", bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("broadcast request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed broadcastTxResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode broadcast response: %w", err)
	}
	if parsed.TxResponse.Code != 0 {
		return fmt.Errorf("broadcast rejected (code=%d): %s", parsed.TxResponse.Code, parsed.TxResponse.RawLog)
	}
	c.logger.Printf("broadcast accepted, txhash=%s", parsed.TxResponse.TxHash)
	return nil
}

// StartRelay builds and submits MsgStartRelay for nonce.
func (c *Client) StartRelay(ctx context.Context, nonce int64) error {
	msg := msgStartRelay(c.key.Address(), uint64(nonce))
	return c.SubmitMsg(ctx, anyMsg("/Switcheo.carbon.bridge.MsgStartRelay", msg))
}

// PruneExpiredPendingActions builds and submits
// MsgPruneExpiredPendingActions for the given nonces.
func (c *Client) PruneExpiredPendingActions(ctx context.Context, nonces []int64) error {
	msg := msgPruneExpiredPendingActions(c.key.Address(), nonces)
	return c.SubmitMsg(ctx, anyMsg("/Switcheo.carbon.bridge.MsgPruneExpiredPendingActions", msg))
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
