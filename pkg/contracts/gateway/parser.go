package gateway

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/openbridge/gmp-relayer/pkg/types"
)

type contractCallData struct {
	DestinationChain           string
	DestinationContractAddress string
	Payload                    []byte
}

type contractCallWithTokenData struct {
	DestinationChain           string
	DestinationContractAddress string
	Payload                    []byte
	Symbol                     string
	Amount                     *big.Int
}

type tokenSentData struct {
	DestinationChain   string
	DestinationAddress string
	Symbol             string
	Amount             *big.Int
}

// EventTopics returns the event signature topics the monitor filters on.
func EventTopics() []common.Hash {
	return []common.Hash{
		gatewayABI.Events["ContractCall"].ID,
		gatewayABI.Events["ContractCallWithToken"].ID,
		gatewayABI.Events["TokenSent"].ID,
	}
}

// ParseLog converts a gateway log into a RelayEvent.
// Returns an error for logs that are not one of the three relayed events.
func ParseLog(sourceChain string, lg ethtypes.Log) (*types.RelayEvent, error) {
	if len(lg.Topics) == 0 {
		return nil, fmt.Errorf("log %s:%d has no topics", lg.TxHash, lg.Index)
	}
	ev := &types.RelayEvent{
		SourceChain: sourceChain,
		TxHash:      lg.TxHash.Hex(),
		LogIndex:    lg.Index,
		BlockNumber: lg.BlockNumber,
	}
	switch lg.Topics[0] {
	case gatewayABI.Events["ContractCall"].ID:
		if len(lg.Topics) < 3 {
			return nil, fmt.Errorf("ContractCall log %s:%d is missing indexed topics", lg.TxHash, lg.Index)
		}
		var data contractCallData
		if err := gatewayABI.UnpackIntoInterface(&data, "ContractCall", lg.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack ContractCall log: %w", err)
		}
		ev.EventKind = types.EventContractCall
		ev.Sender = common.BytesToAddress(lg.Topics[1].Bytes()).Hex()
		ev.PayloadHash = lg.Topics[2].Hex()
		ev.DestinationChain = data.DestinationChain
		ev.DestinationAddress = data.DestinationContractAddress
		ev.Payload = data.Payload
	case gatewayABI.Events["ContractCallWithToken"].ID:
		if len(lg.Topics) < 3 {
			return nil, fmt.Errorf("ContractCallWithToken log %s:%d is missing indexed topics", lg.TxHash, lg.Index)
		}
		var data contractCallWithTokenData
		if err := gatewayABI.UnpackIntoInterface(&data, "ContractCallWithToken", lg.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack ContractCallWithToken log: %w", err)
		}
		ev.EventKind = types.EventContractCallWithToken
		ev.Sender = common.BytesToAddress(lg.Topics[1].Bytes()).Hex()
		ev.PayloadHash = lg.Topics[2].Hex()
		ev.DestinationChain = data.DestinationChain
		ev.DestinationAddress = data.DestinationContractAddress
		ev.Payload = data.Payload
		ev.TokenSymbol = data.Symbol
		ev.Amount = data.Amount
	case gatewayABI.Events["TokenSent"].ID:
		if len(lg.Topics) < 2 {
			return nil, fmt.Errorf("TokenSent log %s:%d is missing indexed topics", lg.TxHash, lg.Index)
		}
		var data tokenSentData
		if err := gatewayABI.UnpackIntoInterface(&data, "TokenSent", lg.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack TokenSent log: %w", err)
		}
		ev.EventKind = types.EventTokenSent
		ev.Sender = common.BytesToAddress(lg.Topics[1].Bytes()).Hex()
		ev.DestinationChain = data.DestinationChain
		ev.DestinationAddress = data.DestinationAddress
		ev.TokenSymbol = data.Symbol
		ev.Amount = data.Amount
	default:
		return nil, fmt.Errorf("unknown gateway event topic %s", lg.Topics[0].Hex())
	}
	return ev, nil
}
