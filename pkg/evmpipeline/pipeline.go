// Package evmpipeline is the EVM Pipeline (C7): cross-references approved
// GMP calls against the event store and dispatches execute calls, one
// single-writer worker per chain (spec §4.7).
package evmpipeline

import (
	"context"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/evmclient"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/metrics"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/store"
)

const pollInterval = 5 * time.Second

// ChainWorker owns one EVM chain's outbound channel and single broadcast
// worker (spec §4.7: "one worker per chain suffices because the bottleneck
// is sequence-number on a single signer key per chain").
type ChainWorker struct {
	blockchain  string
	client      *evmclient.Client
	gateway     common.Address
	destination common.Address
	store       *store.Client
	mailbox     chan store.ApprovedCall
	logger      *log.Logger
}

// NewChainWorker builds a ChainWorker with a bounded mailbox (spec default
// 100).
func NewChainWorker(blockchain string, client *evmclient.Client, gateway, destination common.Address, s *store.Client, capacity int) *ChainWorker {
	return &ChainWorker{
		blockchain:  blockchain,
		client:      client,
		gateway:     gateway,
		destination: destination,
		store:       s,
		mailbox:     make(chan store.ApprovedCall, capacity),
		logger:      log.New(log.Writer(), "[EVMWorker:"+blockchain+"] ", log.LstdFlags),
	}
}

// Dispatch enqueues row for broadcast, dropping (not blocking) if the
// mailbox is full; the row stays pending_broadcast so the next poll tick
// retries it (spec §5 back-pressure policy).
func (w *ChainWorker) Dispatch(row store.ApprovedCall) bool {
	select {
	case w.mailbox <- row:
		return true
	default:
		w.logger.Printf("dropped command_id=%s, mailbox full", row.CommandID)
		return false
	}
}

// Run drains the mailbox on a single goroutine until ctx is cancelled.
func (w *ChainWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.mailbox:
			w.process(ctx, row)
		}
	}
}

// process implements the per-chain worker's 5-step procedure of spec §4.7.
func (w *ChainWorker) process(ctx context.Context, row store.ApprovedCall) {
	commandID, payloadHash, err := decodeHexIDs(row.CommandID, row.PayloadHash)
	if err != nil {
		w.logger.Printf("failed to decode ids for command_id=%s: %v", row.CommandID, err)
		return
	}

	approved, err := w.client.IsContractCallApproved(ctx, w.gateway, commandID, row.SourceChain, row.SourceAddress, w.destination, payloadHash)
	if err != nil {
		w.logger.Printf("isContractCallApproved check failed for command_id=%s: %v", row.CommandID, err)
		return
	}
	if !approved {
		w.transition(ctx, row, store.BroadcastPending, store.BroadcastExecuted)
		return
	}

	ok, err := w.store.SetApprovedStatus(ctx, row.ID, store.BroadcastPending, store.BroadcastBroadcasting)
	if err != nil {
		w.logger.Printf("failed to transition command_id=%s to broadcasting: %v", row.CommandID, err)
		return
	}
	if !ok {
		// Another worker already moved this row past pending_broadcast
		// (Testable Property #11); skip.
		return
	}

	payload, err := hexDecode(row.Payload)
	if err != nil {
		w.logger.Printf("failed to decode payload for command_id=%s: %v", row.CommandID, err)
		w.transition(ctx, row, store.BroadcastBroadcasting, store.BroadcastFailed)
		return
	}

	_, err = w.client.Execute(ctx, w.destination, commandID, row.SourceChain, row.SourceAddress, payload)
	if err != nil {
		w.logger.Printf("execute failed for command_id=%s: %v", row.CommandID, err)
		w.transition(ctx, row, store.BroadcastBroadcasting, store.BroadcastFailed)
		return
	}

	w.transition(ctx, row, store.BroadcastBroadcasting, store.BroadcastExecuted)
}

func (w *ChainWorker) transition(ctx context.Context, row store.ApprovedCall, expected, next store.BroadcastStatus) {
	ok, err := w.store.SetApprovedStatus(ctx, row.ID, expected, next)
	if err != nil {
		w.logger.Printf("failed to transition command_id=%s to %s: %v", row.CommandID, next, err)
		return
	}
	if !ok {
		w.logger.Printf("command_id=%s already moved past %s, skipping transition to %s", row.CommandID, expected, next)
		return
	}
	if next == store.BroadcastExecuted || next == store.BroadcastFailed {
		metrics.ApprovedCallsExecuted.WithLabelValues(w.blockchain, string(next)).Inc()
	}
}

// Pipeline polls the store for pending_broadcast rows and fans them out to
// the right chain's worker.
type Pipeline struct {
	store   *store.Client
	workers map[string]*ChainWorker
	logger  *log.Logger
}

// New builds a Pipeline over the given chain workers, keyed by blockchain
// identifier.
func New(s *store.Client, workers map[string]*ChainWorker) *Pipeline {
	return &Pipeline{
		store:   s,
		workers: workers,
		logger:  log.New(log.Writer(), "[EVMPipeline] ", log.LstdFlags),
	}
}

// RunPollLoop ticks every 5s until ctx is cancelled, dispatching every
// pending_broadcast row to its chain's worker (spec §4.7).
func (p *Pipeline) RunPollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Pipeline) pollOnce(ctx context.Context) {
	rows, err := p.store.ListApprovedPending(ctx)
	if err != nil {
		p.logger.Printf("list_approved_pending failed: %v", err)
		return
	}

	for _, row := range rows {
		worker, ok := p.workers[row.Blockchain]
		if !ok {
			p.logger.Printf("no worker configured for blockchain=%s, command_id=%s", row.Blockchain, row.CommandID)
			continue
		}
		worker.Dispatch(row)
	}
}
