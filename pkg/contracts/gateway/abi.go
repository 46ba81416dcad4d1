package gateway

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI surface of the gateway contract consumed by the relayer: the three
// source events, the execute entry point and the two read-only checks.
const gatewayABIJson = `[
	{
		"type": "event",
		"name": "ContractCall",
		"inputs": [
			{"indexed": true, "name": "sender", "type": "address"},
			{"indexed": false, "name": "destinationChain", "type": "string"},
			{"indexed": false, "name": "destinationContractAddress", "type": "string"},
			{"indexed": true, "name": "payloadHash", "type": "bytes32"},
			{"indexed": false, "name": "payload", "type": "bytes"}
		]
	},
	{
		"type": "event",
		"name": "ContractCallWithToken",
		"inputs": [
			{"indexed": true, "name": "sender", "type": "address"},
			{"indexed": false, "name": "destinationChain", "type": "string"},
			{"indexed": false, "name": "destinationContractAddress", "type": "string"},
			{"indexed": true, "name": "payloadHash", "type": "bytes32"},
			{"indexed": false, "name": "payload", "type": "bytes"},
			{"indexed": false, "name": "symbol", "type": "string"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		]
	},
	{
		"type": "event",
		"name": "TokenSent",
		"inputs": [
			{"indexed": true, "name": "sender", "type": "address"},
			{"indexed": false, "name": "destinationChain", "type": "string"},
			{"indexed": false, "name": "destinationAddress", "type": "string"},
			{"indexed": false, "name": "symbol", "type": "string"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		]
	},
	{
		"type": "function",
		"name": "execute",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "commandId", "type": "bytes32"},
			{"name": "commands", "type": "tuple[]", "components": [
				{"name": "commandType", "type": "uint256"},
				{"name": "data", "type": "bytes"}
			]},
			{"name": "signature", "type": "bytes"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "isCommandExecuted",
		"stateMutability": "view",
		"inputs": [{"name": "commandId", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"type": "function",
		"name": "isWhitelistedRelayer",
		"stateMutability": "view",
		"inputs": [{"name": "relayer", "type": "address"}],
		"outputs": [{"name": "", "type": "bool"}]
	}
]`

var gatewayABI = mustParseABI(gatewayABIJson)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("gateway: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

// ABI returns the parsed gateway contract ABI.
func ABI() abi.ABI {
	return gatewayABI
}
