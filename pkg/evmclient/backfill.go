package evmclient

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Backfiller periodically scans a bounded range of historical blocks for
// ContractCallApproved logs, for chains with no WS endpoint and as a
// reconciliation pass for chains that do (spec §4.3 backfill, §4.8 C8).
type Backfiller struct {
	client         *Client
	gateway        common.Address
	destination    common.Address
	maxQueryBlocks uint64
	logger         *log.Logger
}

// NewBackfiller builds a Backfiller whose log queries each span the
// inclusive range [from, from+maxQueryBlocks] (maxQueryBlocks+1 blocks) at
// most, so a single pass never requests an unbounded log range from the
// RPC provider.
func NewBackfiller(client *Client, gateway, destination common.Address, maxQueryBlocks uint64) *Backfiller {
	return &Backfiller{
		client:         client,
		gateway:        gateway,
		destination:    destination,
		maxQueryBlocks: maxQueryBlocks,
		logger:         log.New(log.Writer(), "[EVMBackfiller] ", log.LstdFlags),
	}
}

// ScanLatest scans from (latest - maxQueryBlocks) to latest, calling
// handler for each decoded log in block order.
func (b *Backfiller) ScanLatest(ctx context.Context, handler LogHandler) error {
	latest, err := b.client.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch latest block number: %w", err)
	}

	from := uint64(0)
	if latest > b.maxQueryBlocks {
		from = latest - b.maxQueryBlocks
	}
	return b.ScanRange(ctx, from, latest, handler)
}

// ScanRange scans the inclusive [fromBlock, toBlock] range, splitting it
// into inclusive chunks of at most maxQueryBlocks+1 blocks so a wide resync
// range never exceeds a single provider's per-request log limit.
func (b *Backfiller) ScanRange(ctx context.Context, fromBlock, toBlock uint64, handler LogHandler) error {
	if b.maxQueryBlocks == 0 {
		return fmt.Errorf("maxQueryBlocks must be positive")
	}

	for chunkStart := fromBlock; chunkStart <= toBlock; chunkStart += b.maxQueryBlocks + 1 {
		chunkEnd := chunkStart + b.maxQueryBlocks
		if chunkEnd > toBlock {
			chunkEnd = toBlock
		}

		query := ethereum.FilterQuery{
			FromBlock: bigFromUint64(chunkStart),
			ToBlock:   bigFromUint64(chunkEnd),
			Addresses: []common.Address{b.gateway},
			Topics:    [][]common.Hash{{contractCallApprovedTopic()}, nil, {b.destination.Hash()}},
		}

		logs, err := b.client.rpc.FilterLogs(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to filter logs [%d,%d]: %w", chunkStart, chunkEnd, err)
		}

		for _, vLog := range logs {
			decoded, err := decodeContractCallApprovedLog(b.client.gatewayABI, vLog)
			if err != nil {
				b.logger.Printf("failed to decode backfilled log at block %d: %v", vLog.BlockNumber, err)
				continue
			}
			handler(decoded)
		}

		b.logger.Printf("scanned blocks [%d,%d], found %d ContractCallApproved logs", chunkStart, chunkEnd, len(logs))
	}
	return nil
}

// ScanForPayloadHash scans [latest-maxQueryBlocks, latest] filtering topic3
// on payloadHash in addition to the gateway address and topic0, grounded in
// original_source/src/tx_sync.rs's save_contract_call_approved_events (spec
// §4.8's EVM-side resync: "query logs on that chain ... filtered by
// payload_hash as topic3").
func (b *Backfiller) ScanForPayloadHash(ctx context.Context, payloadHash [32]byte, handler LogHandler) error {
	latest, err := b.client.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch latest block number: %w", err)
	}
	from := uint64(0)
	if latest > b.maxQueryBlocks {
		from = latest - b.maxQueryBlocks
	}

	query := ethereum.FilterQuery{
		FromBlock: bigFromUint64(from),
		ToBlock:   bigFromUint64(latest),
		Addresses: []common.Address{b.gateway},
		Topics:    [][]common.Hash{{contractCallApprovedTopic()}, nil, {b.destination.Hash()}, {common.BytesToHash(payloadHash[:])}},
	}

	logs, err := b.client.rpc.FilterLogs(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to filter logs for payload_hash %x: %w", payloadHash, err)
	}

	for _, vLog := range logs {
		decoded, err := decodeContractCallApprovedLog(b.client.gatewayABI, vLog)
		if err != nil {
			b.logger.Printf("failed to decode log at block %d: %v", vLog.BlockNumber, err)
			continue
		}
		handler(decoded)
	}
	b.logger.Printf("found %d ContractCallApproved logs for payload_hash %x", len(logs), payloadHash)
	return nil
}
