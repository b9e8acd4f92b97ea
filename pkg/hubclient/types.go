// Package hubclient is the Hub Client (C2): WebSocket event subscription,
// REST reads, and Cosmos SDK transaction signing/submission against the
// Hub chain.
package hubclient

// TxResultEnvelope mirrors the Tendermint-style tx-result WS/tx_search
// envelope closely enough to decode the fields this relayer needs, without
// pulling in a full cosmos-sdk/cometbft client dependency for a handful of
// JSON fields (spec.md scopes the Cosmos signing primitives as an opaque
// external collaborator, not a mandated client library).
type TxResultEnvelope struct {
	Height string    `json:"height"`
	TxHash string    `json:"hash"`
	Result TxResult  `json:"tx_result"`
}

// TxResult is the nested tx_result object carrying the event list.
type TxResult struct {
	Events []Event `json:"events"`
}

// Event is a single Cosmos SDK event with its attributes.
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// Attribute is one key/value pair of an Event. Values for string-typed
// attributes arrive JSON-encoded (surrounded by literal quote characters)
// and must be stripped by the caller.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Get returns the first attribute's value matching key, with surrounding
// quotes stripped, and whether it was found.
func (e Event) Get(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return stripQuotes(a.Value), true
		}
	}
	return "", false
}

func stripQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// wsSubscribeMessage is the JSON-RPC request body for a Tendermint
// "subscribe" call.
type wsSubscribeMessage struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Method  string         `json:"method"`
	Params  wsSubscribeParams `json:"params"`
}

type wsSubscribeParams struct {
	Query string `json:"query"`
}

// wsFrame is the top-level envelope of every inbound WS message; it is
// dispatched by ID to the subscription that registered it.
type wsFrame struct {
	ID     string `json:"id"`
	Result struct {
		Data struct {
			Value TxResultEnvelope `json:"value"`
		} `json:"data"`
	} `json:"result"`
}

// PendingActionNonce is one element of the pending_action_nonces REST
// response.
type PendingActionNonce struct {
	Nonce int64 `json:"nonce,string"`
}
