package evmclient

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogHandler receives one decoded ContractCallApproved log at a time.
type LogHandler func(ContractCallApprovedLog)

// Listener subscribes to a single chain's ContractCallApproved events over
// the WS connection, reconnecting with exponential backoff (spec §4.3 live
// ingestion, mirrors hubclient.Subscriber's reconnect loop).
type Listener struct {
	client      *Client
	gateway     common.Address
	destination common.Address
	handler     LogHandler
	logger      *log.Logger
}

// NewListener builds a Listener filtering on logs emitted by the gateway
// contract where topic2 (the indexed contractAddress field) equals our
// destination executable, per spec §4.3's "filtered by topic2 = destination
// executable address".
func NewListener(client *Client, gateway, destination common.Address, handler LogHandler) *Listener {
	return &Listener{
		client:      client,
		gateway:     gateway,
		destination: destination,
		handler:     handler,
		logger:      log.New(log.Writer(), "[EVMListener] ", log.LstdFlags),
	}
}

// Run subscribes and redials on failure until ctx is cancelled. Backoff
// starts at 1s and doubles up to a 30s ceiling.
func (l *Listener) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !l.client.HasWs() {
			l.logger.Printf("no websocket endpoint configured, listener idle")
			return
		}

		if err := l.subscribeOnce(ctx); err != nil {
			l.logger.Printf("subscription error: %v, retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = time.Duration(math.Min(float64(backoff*2), float64(maxBackoff)))
			continue
		}
		backoff = time.Second
	}
}

func (l *Listener) subscribeOnce(ctx context.Context) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{l.gateway},
		Topics:    [][]common.Hash{{contractCallApprovedTopic()}, nil, {l.destination.Hash()}},
	}

	logsCh := make(chan types.Log, 64)
	sub, err := l.client.ws.SubscribeFilterLogs(ctx, query, logsCh)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return err
		case vLog := <-logsCh:
			decoded, err := decodeContractCallApprovedLog(l.client.gatewayABI, vLog)
			if err != nil {
				l.logger.Printf("failed to decode ContractCallApproved log: %v", err)
				continue
			}
			l.handler(decoded)
		}
	}
}
