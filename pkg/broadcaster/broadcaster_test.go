package broadcaster

import (
	"context"
	"testing"
	"time"
)

func TestStartRelay_DropsWhenMailboxFull(t *testing.T) {
	b := New(nil, 1)

	// Fill the mailbox without a worker draining it.
	b.mailbox <- Request{Kind: KindStartRelay, Nonce: 1, Result: make(chan error, 1)}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	enqueued, err := b.StartRelay(ctx, 2)
	if enqueued {
		t.Error("expected StartRelay to report not-enqueued when the mailbox is full")
	}
	if err != nil {
		t.Errorf("expected no error on a dropped enqueue, got %v", err)
	}
}

func TestPruneExpired_DropsWhenMailboxFull(t *testing.T) {
	b := New(nil, 1)
	b.mailbox <- Request{Kind: KindPruneExpired, Nonces: []int64{1}, Result: make(chan error, 1)}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	enqueued, err := b.PruneExpired(ctx, []int64{2, 3})
	if enqueued {
		t.Error("expected PruneExpired to report not-enqueued when the mailbox is full")
	}
	if err != nil {
		t.Errorf("expected no error on a dropped enqueue, got %v", err)
	}
}

func TestHandle_UnknownKindReturnsError(t *testing.T) {
	b := New(nil, 1)
	req := Request{Kind: Kind(99), Result: make(chan error, 1)}
	b.handle(context.Background(), req)

	select {
	case err := <-req.Result:
		if err == nil {
			t.Error("expected an error for an unknown broadcast request kind")
		}
	default:
		t.Error("expected a reply on the result channel")
	}
}
