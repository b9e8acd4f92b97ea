package evmpipeline

import (
	"context"
	"encoding/hex"
	"log"

	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/evmclient"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/metrics"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/store"
)

// Ingestor converts decoded ContractCallApproved logs into ApprovedCall
// rows, shared by the live listener and the backfiller (spec §4.7: "Live
// listener + backfiller both persist ApprovedCall rows"). Idempotency
// across both sources relies entirely on the store's
// ON CONFLICT (blockchain, command_id) DO NOTHING insert.
type Ingestor struct {
	blockchain string
	store      *store.Client
	logger     *log.Logger
}

// NewIngestor builds an Ingestor for one blockchain identifier.
func NewIngestor(blockchain string, s *store.Client) *Ingestor {
	return &Ingestor{
		blockchain: blockchain,
		store:      s,
		logger:     log.New(log.Writer(), "[EVMIngestor:"+blockchain+"] ", log.LstdFlags),
	}
}

// Handle persists one decoded log as a pending_broadcast ApprovedCall row.
// The log itself only carries payload_hash, not the payload bytes
// (ContractCallApprovedLog has no payload field): the payload is looked up
// from the AxelarCallContract row the Hub pipeline already persisted for
// the same payload_hash, grounded in original_source/src/db/evm_events.rs's
// save_contract_call_approved_event, which joins against
// get_axelar_call_contract_event(payload_hash) for the payload column and
// skips ingestion entirely when no such row exists yet (the Hub-side event
// hasn't arrived). Persisting a row with an empty payload would later make
// the broadcast worker call execute(...) with nothing to execute.
func (ing *Ingestor) Handle(decoded evmclient.ContractCallApprovedLog) {
	ctx := context.Background()
	payloadHash := normalizePayloadHash(decoded.PayloadHash)

	axelarCall, err := ing.store.LookupAxelarCallByHash(ctx, payloadHash)
	if err != nil {
		ing.logger.Printf("no axelar call contract event for payload_hash=%s yet, skipping", payloadHash)
		return
	}

	row := store.ApprovedCall{
		Blockchain:       ing.blockchain,
		CommandID:        hex.EncodeToString(decoded.CommandID[:]),
		SourceChain:      decoded.SourceChain,
		SourceAddress:    decoded.SourceAddress,
		ContractAddress:  decoded.ContractAddress,
		PayloadHash:      payloadHash,
		SourceTxHash:     hex.EncodeToString(decoded.SourceTxHash[:]),
		SourceEventIndex: decoded.SourceEventIndex,
		Payload:          axelarCall.Payload,
	}

	if err := ing.store.InsertApprovedCall(ctx, row); err != nil {
		ing.logger.Printf("failed to insert approved call (command_id=%s): %v", row.CommandID, err)
		return
	}
	metrics.EventsIngested.WithLabelValues("ContractCallApproved").Inc()
}
