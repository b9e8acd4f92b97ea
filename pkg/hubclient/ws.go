package hubclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventHandler processes the events extracted from one matching subscription
// frame.
type EventHandler func(events []Event)

type subscription struct {
	id      string
	query   string
	handler EventHandler
}

// Subscriber is a reconnecting JSON-RPC WebSocket client keyed by locally
// assigned subscription ids, grounded in the original implementation's
// generic subscription-id-keyed dispatch model (one handler per id, frames
// routed by the top-level "id" field).
type Subscriber struct {
	url  string
	logger *log.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

// NewSubscriber creates a Subscriber against the given Tendermint WS URL.
func NewSubscriber(url string) *Subscriber {
	return &Subscriber{
		url:    url,
		logger: log.New(log.Writer(), "[HubWS] ", log.LstdFlags),
		subs:   map[string]subscription{},
	}
}

// AddSubscription registers a query and its handler under id. Must be
// called before Run.
func (s *Subscriber) AddSubscription(id, query string, handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[id] = subscription{id: id, query: query, handler: handler}
}

// Run connects and reconnects forever (5s backoff between attempts),
// re-issuing every registered subscription after each reconnect. It returns
// only when ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connectOnce(ctx); err != nil {
			s.logger.Printf("connection error: %v; reconnecting in 5s", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *Subscriber) connectOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	s.mu.Lock()
	subs := make([]subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		msg := wsSubscribeMessage{
			JSONRPC: "2.0",
			ID:      sub.id,
			Method:  "subscribe",
			Params:  wsSubscribeParams{Query: sub.query},
		}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s failed: %w", sub.id, err)
		}
	}
	s.logger.Printf("subscribed to %d queries on %s", len(subs), s.url)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		s.dispatch(data)
	}
}

func (s *Subscriber) dispatch(data []byte) {
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.Printf("skipping malformed frame: %v", err)
		return
	}
	if frame.ID == "" {
		return
	}

	s.mu.Lock()
	sub, ok := s.subs[frame.ID]
	s.mu.Unlock()
	if !ok {
		return
	}

	events := frame.Result.Data.Value.Result.Events
	if len(events) == 0 {
		return
	}
	sub.handler(events)
}
