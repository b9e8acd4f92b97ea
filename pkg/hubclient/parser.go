package hubclient

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/store"
)

// ParseConnectionID splits "bridge_id/chain_id/contract_address" into its
// three segments (spec Testable Property #6).
func ParseConnectionID(connectionID string) (bridgeID, chainID, contract string, err error) {
	parts := strings.SplitN(connectionID, "/", 3)
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("connection_id %q has fewer than 3 segments", connectionID)
	}
	return parts[0], parts[1], parts[2], nil
}

// ParsePendingActionEvent converts a PendingActionEvent's attributes into a
// store.PendingAction. Fields are the event's raw (already-unquoted)
// attribute values.
func ParsePendingActionEvent(event Event) (store.PendingAction, error) {
	connectionID, ok := event.Get("connection_id")
	if !ok {
		return store.PendingAction{}, fmt.Errorf("pending action event missing connection_id")
	}
	bridgeID, chainID, _, err := ParseConnectionID(connectionID)
	if err != nil {
		return store.PendingAction{}, err
	}

	nonceStr, _ := event.Get("nonce")
	nonce, err := strconv.ParseInt(nonceStr, 10, 64)
	if err != nil {
		return store.PendingAction{}, fmt.Errorf("invalid nonce %q: %w", nonceStr, err)
	}

	typeStr, _ := event.Get("pending_action_type")
	typeCode, err := strconv.Atoi(typeStr)
	if err != nil {
		return store.PendingAction{}, fmt.Errorf("invalid pending_action_type %q: %w", typeStr, err)
	}

	feeAmount, _ := event.Get("fee_amount")
	feeDenom, _ := event.Get("fee_denom")
	feeReceiver, _ := event.Get("fee_receiver_address")
	feeSender, _ := event.Get("fee_sender_address")
	expiryStr, _ := event.Get("expiry_block_time")

	expiry, err := parseTimestamp(expiryStr)
	if err != nil {
		return store.PendingAction{}, fmt.Errorf("invalid expiry_block_time %q: %w", expiryStr, err)
	}

	return store.PendingAction{
		ConnectionID:      connectionID,
		BridgeID:          bridgeID,
		ChainID:           chainID,
		Nonce:             nonce,
		PendingActionType: store.PendingActionType(typeCode),
		RelayDetails: store.RelayDetails{
			FeeReceiverAddress: feeReceiver,
			FeeSenderAddress:   feeSender,
			FeeAmount:          feeAmount,
			FeeDenom:           feeDenom,
			CreatedAt:          time.Now().UTC(),
			ExpiryBlockTime:    expiry,
		},
	}, nil
}

// ParseExpiredOrRevertedNonce extracts the single nonce from an
// ExpiredPendingActionEvent or a BridgeRevertedEvent.
func ParseExpiredOrRevertedNonce(event Event) (int64, error) {
	nonceStr, ok := event.Get("nonce")
	if !ok {
		return 0, fmt.Errorf("event missing nonce attribute")
	}
	return strconv.ParseInt(nonceStr, 10, 64)
}

// ParseAxelarCallContractEvent decodes an AxelarCallContractEvent, computing
// payload_hash = keccak256(payload) (spec Testable Property #2).
func ParseAxelarCallContractEvent(event Event) (store.AxelarCallContract, error) {
	nonceStr, _ := event.Get("nonce")
	nonce, err := strconv.ParseInt(nonceStr, 10, 64)
	if err != nil {
		return store.AxelarCallContract{}, fmt.Errorf("invalid nonce %q: %w", nonceStr, err)
	}

	payloadB64, ok := event.Get("payload")
	if !ok {
		return store.AxelarCallContract{}, fmt.Errorf("axelar call contract event missing payload")
	}
	payloadBytes, err := base64.StdEncoding.DecodeString(payloadB64)
	if err != nil {
		return store.AxelarCallContract{}, fmt.Errorf("failed to base64-decode payload: %w", err)
	}

	payloadHex := hex.EncodeToString(payloadBytes)
	payloadHash := crypto.Keccak256Hash(payloadBytes).Hex()

	encoding, _ := event.Get("payload_encoding")
	if encoding == "" {
		encoding = "proto3"
	}

	return store.AxelarCallContract{
		Nonce:           nonce,
		PayloadHash:     payloadHash,
		Payload:         payloadHex,
		PayloadEncoding: encoding,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if unixSeconds, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unixSeconds, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp format %q", s)
}
