package store

import "time"

// PendingActionType enumerates the wire-value codes the Hub assigns to a
// pending action. The integer codes are preserved verbatim since they are
// values the Hub itself emits.
type PendingActionType int

const (
	PendingActionRegisterToken PendingActionType = iota
	PendingActionDeregisterToken
	PendingActionDeployNativeToken
	PendingActionWithdrawAndExecute
	PendingActionWithdraw
	PendingActionExecute
)

// BroadcastStatus is the strictly-forward state machine for an ApprovedCall
// row (spec Testable Property #3).
type BroadcastStatus string

const (
	BroadcastPending     BroadcastStatus = "pending_broadcast"
	BroadcastBroadcasting BroadcastStatus = "broadcasting"
	BroadcastExecuted    BroadcastStatus = "executed"
	BroadcastFailed      BroadcastStatus = "failed"
)

// RelayDetails is the fee and timing envelope attached to a PendingAction.
type RelayDetails struct {
	FeeReceiverAddress string
	FeeSenderAddress   string
	FeeAmount          string
	FeeDenom           string
	CreatedAt          time.Time
	ExpiryBlockTime    time.Time
	SentAt             *time.Time
}

// HasExpired reports whether now is at or past ExpiryBlockTime. Equality is
// treated as expired (strict '>' in acceptance, spec Testable Property #9).
func (r RelayDetails) HasExpired(now time.Time) bool {
	return !now.Before(r.ExpiryBlockTime)
}

// PendingAction is a Hub-originated request waiting for a relay to be
// started (spec §3).
type PendingAction struct {
	ID                 int64
	ConnectionID       string
	BridgeID           string
	ChainID            string
	Nonce              int64
	PendingActionType  PendingActionType
	RetryCount         int
	RelayDetails       RelayDetails
}

// AxelarCallContract pairs a Hub nonce to a payload blob and its hash,
// binding a PendingAction to the eventual ApprovedCall.
type AxelarCallContract struct {
	ID              int64
	Nonce           int64
	PayloadHash     string
	Payload         string
	PayloadEncoding string
}

// ApprovedCall is an EVM-side "contract call approved" log.
type ApprovedCall struct {
	ID               int64
	Blockchain       string
	BroadcastStatus  BroadcastStatus
	CommandID        string
	SourceChain      string
	SourceAddress    string
	ContractAddress  string
	PayloadHash      string
	SourceTxHash     string
	SourceEventIndex string
	Payload          string
}
