package evmpipeline

import (
	"encoding/hex"
	"fmt"
	"strings"
)

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

// normalizePayloadHash formats a decoded payload hash the same way
// pkg/hubclient/parser.go's ParseAxelarCallContractEvent does via
// crypto.Keccak256Hash(...).Hex() ("0x"-prefixed lowercase hex), so the
// payload_hash join key matches exactly between the Hub and EVM sides.
func normalizePayloadHash(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

func decodeHexIDs(commandIDHex, payloadHashHex string) (commandID, payloadHash [32]byte, err error) {
	cidBytes, err := hexDecode(commandIDHex)
	if err != nil {
		return commandID, payloadHash, fmt.Errorf("invalid command_id %q: %w", commandIDHex, err)
	}
	if len(cidBytes) != 32 {
		return commandID, payloadHash, fmt.Errorf("command_id %q is not 32 bytes", commandIDHex)
	}
	copy(commandID[:], cidBytes)

	phBytes, err := hexDecode(payloadHashHex)
	if err != nil {
		return commandID, payloadHash, fmt.Errorf("invalid payload_hash %q: %w", payloadHashHex, err)
	}
	if len(phBytes) != 32 {
		return commandID, payloadHash, fmt.Errorf("payload_hash %q is not 32 bytes", payloadHashHex)
	}
	copy(payloadHash[:], phBytes)

	return commandID, payloadHash, nil
}
