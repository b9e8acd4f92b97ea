// Package broadcaster is the Hub Broadcaster (C4): a single-writer actor
// that serialises outbound Hub transactions from a bounded mailbox, so that
// a single Cosmos account's monotonic sequence number is never raced by
// concurrent signers (spec §4.4).
package broadcaster

import (
	"context"
	"fmt"
	"log"

	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/hubclient"
)

// Kind distinguishes the two message types the Hub broadcaster can submit.
type Kind int

const (
	KindStartRelay Kind = iota
	KindPruneExpired
)

// Request is one unit of broadcast work. Reply fires exactly once on
// Result, capacity 1, so a slow or abandoned receiver never blocks the
// worker.
type Request struct {
	Kind   Kind
	Nonce  int64
	Nonces []int64
	Result chan error
}

// Broadcaster owns the mailbox and the single worker goroutine.
type Broadcaster struct {
	client  *hubclient.Client
	mailbox chan Request
	logger  *log.Logger
}

// New creates a Broadcaster with a mailbox of the given capacity (spec
// default ~100).
func New(client *hubclient.Client, capacity int) *Broadcaster {
	return &Broadcaster{
		client:  client,
		mailbox: make(chan Request, capacity),
		logger:  log.New(log.Writer(), "[HubBroadcaster] ", log.LstdFlags),
	}
}

// Run drains the mailbox on a single goroutine until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-b.mailbox:
			b.handle(ctx, req)
		}
	}
}

func (b *Broadcaster) handle(ctx context.Context, req Request) {
	var err error
	switch req.Kind {
	case KindStartRelay:
		err = b.client.StartRelay(ctx, req.Nonce)
	case KindPruneExpired:
		err = b.client.PruneExpiredPendingActions(ctx, req.Nonces)
	default:
		err = fmt.Errorf("unknown broadcast request kind %d", req.Kind)
	}
	if err != nil {
		b.logger.Printf("broadcast failed: %v", err)
	}

	select {
	case req.Result <- err:
	default:
		// Reply channel has no receiver left; the broadcast itself still
		// happened, only the caller's await was abandoned.
		b.logger.Printf("reply channel dropped for request kind=%d", req.Kind)
	}
}

// StartRelay enqueues a start-relay request and blocks until the worker
// replies or ctx is cancelled. Returns false, nil if the mailbox was full
// (the spec's producer-drops-and-retries back-pressure policy).
func (b *Broadcaster) StartRelay(ctx context.Context, nonce int64) (enqueued bool, err error) {
	req := Request{Kind: KindStartRelay, Nonce: nonce, Result: make(chan error, 1)}
	select {
	case b.mailbox <- req:
	default:
		return false, nil
	}

	select {
	case err := <-req.Result:
		return true, err
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// PruneExpired enqueues a prune-expired request, same back-pressure policy
// as StartRelay.
func (b *Broadcaster) PruneExpired(ctx context.Context, nonces []int64) (enqueued bool, err error) {
	req := Request{Kind: KindPruneExpired, Nonces: nonces, Result: make(chan error, 1)}
	select {
	case b.mailbox <- req:
	default:
		return false, nil
	}

	select {
	case err := <-req.Result:
		return true, err
	case <-ctx.Done():
		return true, ctx.Err()
	}
}
