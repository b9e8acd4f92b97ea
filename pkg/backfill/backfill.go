// Package backfill is Backfill / Resync (C8): a Hub block-range tx_search
// scan joined to a per-chain EVM log scan keyed by payload_hash, seeding the
// store on cold start or on operator command (spec §4.8).
//
// Grounded in original_source/src/tx_sync.rs's sync_block_range: find
// PendingActionEvent and AxelarCallContractEvent rows in the height range,
// persist through the same paths live ingestion uses (including the
// "does a PendingAction already exist for this nonce" guard on
// AxelarCallContractEvent), then for every newly-seen payload_hash, look up
// which chain its nonce belongs to and scan that chain's logs.
package backfill

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/evmclient"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/evmpipeline"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/hubclient"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/store"
)

// ChainBackfiller pairs one EVM chain's backfiller with the ingestor that
// turns its decoded logs into ApprovedCall rows.
type ChainBackfiller struct {
	ChainID    string
	Backfiller *evmclient.Backfiller
	Ingestor   *evmpipeline.Ingestor
}

// Resyncer runs Hub-range and EVM payload-hash backfills against the event
// store.
type Resyncer struct {
	store  *store.Client
	hub    *hubclient.Client
	chains map[string]ChainBackfiller
	logger *log.Logger
}

// New builds a Resyncer over the given per-chain backfillers, keyed by the
// chain_id that a PendingAction's connection_id names (spec §4.8's
// nonce -> chain_id join).
func New(s *store.Client, hub *hubclient.Client, chains map[string]ChainBackfiller) *Resyncer {
	return &Resyncer{
		store:  s,
		hub:    hub,
		chains: chains,
		logger: log.New(log.Writer(), "[Resync] ", log.LstdFlags),
	}
}

// SyncBlockRange implements the `sync-from START END` command: tx_search the
// Hub in [startHeight, endHeight] for PendingActionEvent and
// AxelarCallContractEvent, persist through the same paths live ingestion
// uses, then resync the EVM side for every payload_hash that
// syncAxelarCallContracts returns.
func (r *Resyncer) SyncBlockRange(ctx context.Context, bridgeID string, startHeight, endHeight uint64) error {
	if err := r.syncPendingActions(ctx, bridgeID, startHeight, endHeight); err != nil {
		return err
	}

	newHashes, err := r.syncAxelarCallContracts(ctx, startHeight, endHeight)
	if err != nil {
		return err
	}

	for _, payloadHash := range newHashes {
		if err := r.resyncEvmForPayloadHash(ctx, payloadHash); err != nil {
			r.logger.Printf("evm resync failed for payload_hash=%s: %v", payloadHash, err)
		}
	}
	return nil
}

func (r *Resyncer) syncPendingActions(ctx context.Context, bridgeID string, startHeight, endHeight uint64) error {
	query := fmt.Sprintf("PendingActionEvent.connection_id CONTAINS '%s/' AND tx.height>=%d AND tx.height<=%d", bridgeID, startHeight, endHeight)
	txs, err := r.hub.TxSearch(ctx, query)
	if err != nil {
		return fmt.Errorf("pending action tx_search failed: %w", err)
	}

	found := 0
	for _, tx := range txs {
		for _, event := range tx.Result.Events {
			if event.Type != "PendingActionEvent" {
				continue
			}
			action, err := hubclient.ParsePendingActionEvent(event)
			if err != nil {
				r.logger.Printf("failed to parse backfilled PendingActionEvent: %v", err)
				continue
			}
			if action.RelayDetails.HasExpired(time.Now().UTC()) {
				continue
			}
			if err := r.store.InsertPendingAction(ctx, action); err != nil {
				r.logger.Printf("failed to insert backfilled pending action (nonce=%d): %v", action.Nonce, err)
				continue
			}
			found++
		}
	}
	r.logger.Printf("synced %d pending actions from blocks [%d,%d]", found, startHeight, endHeight)
	return nil
}

// syncAxelarCallContracts returns the payload hashes of every event whose
// nonce has a matching PendingAction and whose insert did not fail, so the
// caller knows which EVM chains need a follow-up scan. A payload_hash that
// was already stored is returned too, since that insert is a silent no-op.
func (r *Resyncer) syncAxelarCallContracts(ctx context.Context, startHeight, endHeight uint64) ([]string, error) {
	query := fmt.Sprintf("AxelarCallContractEvent.nonce EXISTS AND tx.height>=%d AND tx.height<=%d", startHeight, endHeight)
	txs, err := r.hub.TxSearch(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("axelar call contract tx_search failed: %w", err)
	}

	var newHashes []string
	for _, tx := range txs {
		for _, event := range tx.Result.Events {
			if event.Type != "AxelarCallContractEvent" {
				continue
			}
			call, err := hubclient.ParseAxelarCallContractEvent(event)
			if err != nil {
				r.logger.Printf("failed to parse backfilled AxelarCallContractEvent: %v", err)
				continue
			}
			if _, err := r.store.LookupPendingActionByNonce(ctx, call.Nonce); err != nil {
				continue
			}
			if err := r.store.InsertAxelarCall(ctx, call); err != nil {
				r.logger.Printf("failed to insert backfilled axelar call (nonce=%d): %v", call.Nonce, err)
				continue
			}
			newHashes = append(newHashes, call.PayloadHash)
		}
	}
	r.logger.Printf("synced %d axelar call contract events from blocks [%d,%d]", len(newHashes), startHeight, endHeight)
	return newHashes, nil
}

func (r *Resyncer) resyncEvmForPayloadHash(ctx context.Context, payloadHash string) error {
	action, err := r.lookupActionForPayloadHash(ctx, payloadHash)
	if err != nil {
		return err
	}

	chain, ok := r.chains[action.ChainID]
	if !ok {
		return fmt.Errorf("no evm chain configured for chain_id=%s", action.ChainID)
	}

	var hashBytes [32]byte
	decoded := common.HexToHash(payloadHash)
	copy(hashBytes[:], decoded[:])

	return chain.Backfiller.ScanForPayloadHash(ctx, hashBytes, chain.Ingestor.Handle)
}

func (r *Resyncer) lookupActionForPayloadHash(ctx context.Context, payloadHash string) (store.PendingAction, error) {
	call, err := r.store.LookupAxelarCallByHash(ctx, payloadHash)
	if err != nil {
		return store.PendingAction{}, fmt.Errorf("no axelar call contract row for payload_hash=%s: %w", payloadHash, err)
	}
	return r.store.LookupPendingActionByNonce(ctx, call.Nonce)
}

// ColdStart runs every configured chain's latest-window EVM backfill once,
// one chain after another, and is intended to run once at process start,
// independent of the `sync-from` operator command, so a missed
// live-subscription window since the last shutdown is reconciled alongside
// the already-running live listeners (spec §4.3: "the backfiller
// is the safety net for any event missed by the live subscription").
func (r *Resyncer) ColdStart(ctx context.Context) {
	for chainID, chain := range r.chains {
		if err := chain.Backfiller.ScanLatest(ctx, chain.Ingestor.Handle); err != nil {
			r.logger.Printf("cold-start evm backfill failed for chain_id=%s: %v", chainID, err)
		}
	}
}
