package hubclient

// Minimal protobuf wire-format encoding for the handful of fixed message
// shapes the Cosmos SDK tx envelope requires (TxBody, AuthInfo, SignDoc,
// TxRaw, and the two bridge Msg types). Full reflective protobuf support
// (and the Hub's own .proto-generated Go types) is out of this relayer's
// scope per spec.md — these wire shapes are given, not designed here — and
// hand-rolling the small, fixed set of fields actually used avoids pulling
// the entire cosmos-sdk module in just to marshal a handful of messages.
import "encoding/binary"

const (
	wireVarint     = 0
	wireLenDelim   = 2
)

type protoWriter struct {
	buf []byte
}

func (w *protoWriter) tag(field int, wireType int) {
	w.varint(uint64(field)<<3 | uint64(wireType))
}

func (w *protoWriter) varint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

func (w *protoWriter) uint64Field(field int, v uint64) {
	if v == 0 {
		return
	}
	w.tag(field, wireVarint)
	w.varint(v)
}

func (w *protoWriter) stringField(field int, v string) {
	if v == "" {
		return
	}
	w.bytesField(field, []byte(v))
}

func (w *protoWriter) bytesField(field int, v []byte) {
	if len(v) == 0 {
		return
	}
	w.tag(field, wireLenDelim)
	w.varint(uint64(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *protoWriter) bytes() []byte { return w.buf }

// anyMsg marshals a google.protobuf.Any wrapping typeURL/value.
func anyMsg(typeURL string, value []byte) []byte {
	w := &protoWriter{}
	w.stringField(1, typeURL)
	w.bytesField(2, value)
	return w.bytes()
}

// coin marshals a cosmos.base.v1beta1.Coin.
func coin(denom, amount string) []byte {
	w := &protoWriter{}
	w.stringField(1, denom)
	w.stringField(2, amount)
	return w.bytes()
}

// txBody marshals a cosmos.tx.v1beta1.TxBody with one message and a
// timeout height, no memo (spec §4.2 step 3).
func txBody(msgAny []byte, timeoutHeight uint64) []byte {
	w := &protoWriter{}
	w.bytesField(1, msgAny)
	w.uint64Field(3, timeoutHeight)
	return w.bytes()
}

// modeInfoDirect marshals a ModeInfo selecting SIGN_MODE_DIRECT (1).
func modeInfoDirect() []byte {
	single := &protoWriter{}
	single.uint64Field(1, 1) // SIGN_MODE_DIRECT
	w := &protoWriter{}
	w.bytesField(1, single.bytes())
	return w.bytes()
}

// signerInfo marshals a SignerInfo for a single secp256k1 signer.
func signerInfo(pubKeyAny []byte, sequence uint64) []byte {
	w := &protoWriter{}
	w.bytesField(1, pubKeyAny)
	w.bytesField(2, modeInfoDirect())
	w.uint64Field(3, sequence)
	return w.bytes()
}

// fee marshals a Fee with one coin and a gas limit.
func fee(amount, denom string, gasLimit uint64) []byte {
	w := &protoWriter{}
	w.bytesField(1, coin(denom, amount))
	w.uint64Field(2, gasLimit)
	return w.bytes()
}

// authInfo marshals an AuthInfo with one signer and one fee.
func authInfo(signerInfoBytes, feeBytes []byte) []byte {
	w := &protoWriter{}
	w.bytesField(1, signerInfoBytes)
	w.bytesField(2, feeBytes)
	return w.bytes()
}

// signDoc marshals a SignDoc (the bytes that are actually signed).
func signDoc(bodyBytes, authInfoBytes []byte, chainID string, accountNumber uint64) []byte {
	w := &protoWriter{}
	w.bytesField(1, bodyBytes)
	w.bytesField(2, authInfoBytes)
	w.stringField(3, chainID)
	w.uint64Field(4, accountNumber)
	return w.bytes()
}

// txRaw marshals the final TxRaw ready for broadcast.
func txRaw(bodyBytes, authInfoBytes, signature []byte) []byte {
	w := &protoWriter{}
	w.bytesField(1, bodyBytes)
	w.bytesField(2, authInfoBytes)

	sigsWriter := &protoWriter{}
	sigsWriter.tag(3, wireLenDelim)
	sigsWriter.varint(uint64(len(signature)))
	sigsWriter.buf = append(sigsWriter.buf, signature...)

	w.buf = append(w.buf, sigsWriter.buf...)
	return w.bytes()
}

// msgStartRelay marshals Switcheo.carbon.bridge.MsgStartRelay { relayer(1), nonce(2) }.
func msgStartRelay(relayer string, nonce uint64) []byte {
	w := &protoWriter{}
	w.stringField(1, relayer)
	w.uint64Field(2, nonce)
	return w.bytes()
}

// msgPruneExpiredPendingActions marshals
// Switcheo.carbon.bridge.MsgPruneExpiredPendingActions { creator(1), nonces(2) repeated, packed }.
func msgPruneExpiredPendingActions(creator string, nonces []int64) []byte {
	w := &protoWriter{}
	w.stringField(1, creator)

	packed := &protoWriter{}
	for _, n := range nonces {
		packed.varint(uint64(n))
	}
	w.bytesField(2, packed.bytes())
	return w.bytes()
}
