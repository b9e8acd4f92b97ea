// Package hubpipeline is the Hub Pipeline (C6): live ingestion of the four
// Hub subscriptions plus a 60s retry/expire control loop (spec §4.6).
package hubpipeline

import (
	"context"
	"log"
	"time"

	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/broadcaster"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/feepolicy"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/hubclient"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/metrics"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/store"
)

const retryExpireTick = 60 * time.Second

// Pipeline wires the Hub subscriptions, the event store, the fee policy,
// and the Hub broadcaster together.
type Pipeline struct {
	store       *store.Client
	hub         *hubclient.Client
	broadcaster *broadcaster.Broadcaster
	fees        *feepolicy.Policy
	maxRetries  int
	logger      *log.Logger
}

// New builds a Pipeline. maxRetries bounds list_retriable (spec §4.1,
// carbon.maximum_start_relay_retry_count).
func New(s *store.Client, hub *hubclient.Client, b *broadcaster.Broadcaster, fees *feepolicy.Policy, maxRetries int) *Pipeline {
	return &Pipeline{
		store:       s,
		hub:         hub,
		broadcaster: b,
		fees:        fees,
		maxRetries:  maxRetries,
		logger:      log.New(log.Writer(), "[HubPipeline] ", log.LstdFlags),
	}
}

// RegisterSubscriptions wires the pipeline's event handlers into sub, one
// per spec §4.2's four startup subscriptions. Call before sub.Run.
func (p *Pipeline) RegisterSubscriptions(sub *hubclient.Subscriber, bridgeID string) {
	sub.AddSubscription("1", "PendingActionEvent.connection_id CONTAINS '"+bridgeID+"/'", p.handlePendingActionEvents)
	sub.AddSubscription("2", "ExpiredPendingActionEvent.nonce EXISTS", p.handleExpiredOrRevertedEvents)
	sub.AddSubscription("3", "BridgeRevertedEvent.nonce EXISTS", p.handleExpiredOrRevertedEvents)
	sub.AddSubscription("4", "AxelarCallContractEvent.nonce EXISTS", p.handleAxelarCallContractEvents)
}

func (p *Pipeline) handlePendingActionEvents(events []hubclient.Event) {
	ctx := context.Background()
	for _, event := range events {
		if event.Type != "PendingActionEvent" {
			continue
		}
		action, err := hubclient.ParsePendingActionEvent(event)
		if err != nil {
			p.logger.Printf("failed to parse PendingActionEvent: %v", err)
			continue
		}
		p.ingestPendingAction(ctx, action)
	}
}

// ingestPendingAction implements the live-ingestion rule of spec §4.6: drop
// silently if already expired, otherwise persist and consult the fee
// policy before dispatching a start-relay.
func (p *Pipeline) ingestPendingAction(ctx context.Context, action store.PendingAction) {
	if action.RelayDetails.HasExpired(time.Now().UTC()) {
		return
	}
	if err := p.store.InsertPendingAction(ctx, action); err != nil {
		p.logger.Printf("failed to insert pending action (nonce=%d): %v", action.Nonce, err)
		return
	}
	metrics.EventsIngested.WithLabelValues("PendingActionEvent").Inc()

	accepted, err := p.fees.Accept(ctx, action)
	if err != nil {
		p.logger.Printf("fee policy error (nonce=%d): %v", action.Nonce, err)
		return
	}
	if !accepted {
		return
	}

	p.dispatchStartRelay(ctx, action.Nonce)
}

func (p *Pipeline) handleExpiredOrRevertedEvents(events []hubclient.Event) {
	ctx := context.Background()
	for _, event := range events {
		if event.Type != "ExpiredPendingActionEvent" && event.Type != "BridgeRevertedEvent" {
			continue
		}
		nonce, err := hubclient.ParseExpiredOrRevertedNonce(event)
		if err != nil {
			p.logger.Printf("failed to parse %s: %v", event.Type, err)
			continue
		}
		if err := p.store.DeletePendingActions(ctx, []int64{nonce}); err != nil {
			p.logger.Printf("failed to delete pending action (nonce=%d): %v", nonce, err)
		}
	}
}

func (p *Pipeline) handleAxelarCallContractEvents(events []hubclient.Event) {
	ctx := context.Background()
	for _, event := range events {
		if event.Type != "AxelarCallContractEvent" {
			continue
		}
		call, err := hubclient.ParseAxelarCallContractEvent(event)
		if err != nil {
			p.logger.Printf("failed to parse AxelarCallContractEvent: %v", err)
			continue
		}

		if _, err := p.store.LookupPendingActionByNonce(ctx, call.Nonce); err != nil {
			// No matching PendingAction: the persistence guard in spec §4.6.
			continue
		}
		if err := p.store.InsertAxelarCall(ctx, call); err != nil {
			p.logger.Printf("failed to insert axelar call contract event (nonce=%d): %v", call.Nonce, err)
			continue
		}
		metrics.EventsIngested.WithLabelValues("AxelarCallContractEvent").Inc()
	}
}

// dispatchStartRelay implements the three-step start_relay(nonce) procedure
// of spec §4.6: pre-check against the Hub's authoritative view, submit
// through C4, then bump retry_count regardless of the submit outcome (the
// bump is the sole record that an attempt was made; restart-safe).
func (p *Pipeline) dispatchStartRelay(ctx context.Context, nonce int64) {
	stillPending, err := p.hub.PendingActionStillPending(ctx, nonce)
	if err != nil {
		p.logger.Printf("start_relay(%d) pre-check failed: %v", nonce, err)
		return
	}
	if !stillPending {
		return
	}

	enqueued, err := p.broadcaster.StartRelay(ctx, nonce)
	if !enqueued {
		p.logger.Printf("start_relay(%d) dropped, broadcaster mailbox full", nonce)
		return
	}
	outcome := "ok"
	if err != nil {
		p.logger.Printf("start_relay(%d) broadcast error: %v", nonce, err)
		outcome = "error"
	}
	metrics.RelaysBroadcast.WithLabelValues("start_relay", outcome).Inc()

	if err := p.store.BumpRetry(ctx, nonce); err != nil {
		p.logger.Printf("failed to bump retry count (nonce=%d): %v", nonce, err)
		return
	}
	metrics.StartRelayRetries.Inc()
}

// RunRetryExpireLoop ticks every 60s until ctx is cancelled, implementing
// spec §4.6's retry and expire branches.
func (p *Pipeline) RunRetryExpireLoop(ctx context.Context) {
	ticker := time.NewTicker(retryExpireTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.retryTick(ctx)
			p.expireTick(ctx)
		}
	}
}

func (p *Pipeline) retryTick(ctx context.Context) {
	now := time.Now().UTC()
	rows, err := p.store.ListRetriable(ctx, p.maxRetries, now)
	if err != nil {
		p.logger.Printf("list_retriable failed: %v", err)
		return
	}

	for _, action := range rows {
		accepted, err := p.fees.Accept(ctx, action)
		if err != nil {
			p.logger.Printf("fee policy error on retry (nonce=%d): %v", action.Nonce, err)
			continue
		}
		if !accepted {
			continue
		}
		p.dispatchStartRelay(ctx, action.Nonce)
	}
}

// expireTick implements spec §4.6's expire branch and Testable Scenario S5:
// partition list_expired() against the Hub's authoritative pending set,
// deleting what the Hub has already dropped and pruning the rest in one
// batched MsgPruneExpiredPendingActions.
func (p *Pipeline) expireTick(ctx context.Context) {
	now := time.Now().UTC()
	rows, err := p.store.ListExpired(ctx, now)
	if err != nil {
		p.logger.Printf("list_expired failed: %v", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	hubPending, err := p.hub.PendingActionNonces(ctx)
	if err != nil {
		p.logger.Printf("failed to query hub pending action nonces: %v", err)
		return
	}
	stillPending := make(map[int64]bool, len(hubPending))
	for _, n := range hubPending {
		stillPending[n] = true
	}

	var toDelete, toProcess []int64
	for _, row := range rows {
		if stillPending[row.Nonce] {
			toProcess = append(toProcess, row.Nonce)
		} else {
			toDelete = append(toDelete, row.Nonce)
		}
	}

	if len(toDelete) > 0 {
		if err := p.store.DeletePendingActions(ctx, toDelete); err != nil {
			p.logger.Printf("failed to delete expired-and-gone pending actions: %v", err)
		}
	}

	if len(toProcess) > 0 {
		enqueued, err := p.broadcaster.PruneExpired(ctx, toProcess)
		if !enqueued {
			p.logger.Printf("prune_expired dropped for %d nonces, broadcaster mailbox full", len(toProcess))
			return
		}
		outcome := "ok"
		if err != nil {
			p.logger.Printf("prune_expired broadcast error: %v", err)
			outcome = "error"
		}
		metrics.RelaysBroadcast.WithLabelValues("prune_expired", outcome).Inc()
	}
}
