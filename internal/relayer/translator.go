package relayer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/openbridge/gmp-relayer/pkg/contracts/gateway"
	"github.com/openbridge/gmp-relayer/pkg/types"
)

// TranslateEvent maps a RelayEvent to its destination-chain command.
// Pure: the same event always yields the same command bytes.
func TranslateEvent(ev *types.RelayEvent) (types.Command, error) {
	switch ev.EventKind {
	case types.EventContractCall:
		data, err := gateway.EncodeApproveContractCall(ev)
		if err != nil {
			return types.Command{}, fmt.Errorf("failed to encode approve for %s: %w", ev.EventID(), err)
		}
		return types.Command{CommandType: types.CommandApproveContractCall, Data: data}, nil
	case types.EventContractCallWithToken:
		data, err := gateway.EncodeApproveContractCallWithMint(ev)
		if err != nil {
			return types.Command{}, fmt.Errorf("failed to encode approve-with-mint for %s: %w", ev.EventID(), err)
		}
		return types.Command{CommandType: types.CommandApproveContractCallWithMint, Data: data}, nil
	case types.EventTokenSent:
		data, err := gateway.EncodeMintToken(ev.TokenSymbol, ev.DestinationAddress, ev.Amount)
		if err != nil {
			return types.Command{}, fmt.Errorf("failed to encode mint for %s: %w", ev.EventID(), err)
		}
		return types.Command{CommandType: types.CommandMintToken, Data: data}, nil
	default:
		return types.Command{}, fmt.Errorf("unknown event kind %q", ev.EventKind)
	}
}

// CommandID derives the deterministic command identifier from the event's
// identity fields plus its positional identity, so translating the same
// event twice always yields the same id.
func CommandID(ev *types.RelayEvent) string {
	amount := ""
	if ev.Amount != nil {
		amount = ev.Amount.String()
	}
	identity := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s|%s",
		ev.SourceChain,
		ev.TxHash,
		ev.LogIndex,
		ev.EventKind,
		ev.Sender,
		ev.DestinationChain,
		ev.DestinationAddress,
		ev.TokenSymbol,
		amount,
	)
	return hexutil.Encode(crypto.Keccak256([]byte(identity)))
}
