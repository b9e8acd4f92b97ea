package evmclient

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// gatewayABI covers the gateway's read surface (the idempotency check) and
// the ContractCallApproved event the live listener and backfiller both
// decode (spec §6 ABI surfaces).
const gatewayABI = `[
	{
		"name": "isContractCallApproved",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "commandId", "type": "bytes32"},
			{"name": "sourceChain", "type": "string"},
			{"name": "sourceAddress", "type": "string"},
			{"name": "contractAddress", "type": "address"},
			{"name": "payloadHash", "type": "bytes32"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"name": "ContractCallApproved",
		"type": "event",
		"anonymous": false,
		"inputs": [
			{"name": "commandId", "type": "bytes32", "indexed": true},
			{"name": "sourceChain", "type": "string", "indexed": false},
			{"name": "sourceAddress", "type": "string", "indexed": false},
			{"name": "contractAddress", "type": "address", "indexed": true},
			{"name": "payloadHash", "type": "bytes32", "indexed": true},
			{"name": "sourceTxHash", "type": "bytes32", "indexed": false},
			{"name": "sourceEventIndex", "type": "uint256", "indexed": false}
		]
	}
]`

// executableABI covers the destination executable's execute entrypoint.
const executableABI = `[
	{
		"name": "execute",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "commandId", "type": "bytes32"},
			{"name": "sourceChain", "type": "string"},
			{"name": "sourceAddress", "type": "string"},
			{"name": "payload", "type": "bytes"}
		],
		"outputs": []
	}
]`

// contractCallApprovedEventName is the event name used to derive topic0 via
// the parsed ABI, for both the live subscription filter and the
// backfiller's log query.
const contractCallApprovedEventName = "ContractCallApproved"

// ContractCallApprovedLog is the decoded shape of one ContractCallApproved
// event (spec §6).
type ContractCallApprovedLog struct {
	CommandID        [32]byte
	SourceChain      string
	SourceAddress    string
	ContractAddress  string
	PayloadHash      [32]byte
	SourceTxHash     [32]byte
	SourceEventIndex string
	BlockNumber      uint64
	TxHash           string
	LogIndex         uint
}

var gatewayABIParsed abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(gatewayABI))
	if err != nil {
		panic(fmt.Sprintf("evmclient: invalid gateway ABI: %v", err))
	}
	gatewayABIParsed = parsed
}

// contractCallApprovedTopic returns topic0 for the ContractCallApproved
// event, computed from the parsed ABI rather than a hand-maintained
// signature string.
func contractCallApprovedTopic() common.Hash {
	return gatewayABIParsed.Events[contractCallApprovedEventName].ID
}

// decodeContractCallApprovedLog unpacks a raw log into its typed shape. The
// event has 3 indexed topics (commandId, contractAddress, payloadHash)
// beyond topic0, and 4 non-indexed data fields (sourceChain, sourceAddress,
// sourceTxHash, sourceEventIndex packed as ABI-encoded data).
func decodeContractCallApprovedLog(parsed abi.ABI, vLog types.Log) (ContractCallApprovedLog, error) {
	event := parsed.Events[contractCallApprovedEventName]
	if len(vLog.Topics) != 4 {
		return ContractCallApprovedLog{}, fmt.Errorf("unexpected topic count %d for ContractCallApproved", len(vLog.Topics))
	}

	unpacked := struct {
		SourceChain      string
		SourceAddress    string
		SourceTxHash     [32]byte
		SourceEventIndex *big.Int
	}{}
	if err := parsed.UnpackIntoInterface(&unpacked, event.Name, vLog.Data); err != nil {
		return ContractCallApprovedLog{}, fmt.Errorf("failed to unpack ContractCallApproved data: %w", err)
	}

	var commandID, payloadHash [32]byte
	copy(commandID[:], vLog.Topics[1].Bytes())
	contractAddress := common.HexToAddress(vLog.Topics[2].Hex())
	copy(payloadHash[:], vLog.Topics[3].Bytes())

	return ContractCallApprovedLog{
		CommandID:        commandID,
		SourceChain:      unpacked.SourceChain,
		SourceAddress:    unpacked.SourceAddress,
		ContractAddress:  contractAddress.Hex(),
		PayloadHash:      payloadHash,
		SourceTxHash:     unpacked.SourceTxHash,
		SourceEventIndex: unpacked.SourceEventIndex.String(),
		BlockNumber:      vLog.BlockNumber,
		TxHash:           vLog.TxHash.Hex(),
		LogIndex:         vLog.Index,
	}, nil
}
