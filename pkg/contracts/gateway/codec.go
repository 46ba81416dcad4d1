package gateway

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/openbridge/gmp-relayer/pkg/types"
)

// BoundCommand mirrors the execute calldata tuple (uint256 commandType, bytes data).
type BoundCommand struct {
	CommandType *big.Int
	Data        []byte
}

var (
	stringType   = mustNewType("string", nil)
	addressType  = mustNewType("address", nil)
	bytes32Type  = mustNewType("bytes32", nil)
	uint256Type  = mustNewType("uint256", nil)
	commandsType = mustNewType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "commandType", Type: "uint256"},
		{Name: "data", Type: "bytes"},
	})

	approveContractCallArgs = abi.Arguments{
		{Type: stringType},  // sourceChain
		{Type: stringType},  // sourceAddress
		{Type: addressType}, // contractAddress
		{Type: bytes32Type}, // payloadHash
		{Type: bytes32Type}, // sourceTxHash
		{Type: uint256Type}, // sourceEventIndex
	}
	approveContractCallWithMintArgs = abi.Arguments{
		{Type: stringType},  // sourceChain
		{Type: stringType},  // sourceAddress
		{Type: addressType}, // contractAddress
		{Type: bytes32Type}, // payloadHash
		{Type: stringType},  // symbol
		{Type: uint256Type}, // amount
		{Type: bytes32Type}, // sourceTxHash
		{Type: uint256Type}, // sourceEventIndex
	}
	mintTokenArgs = abi.Arguments{
		{Type: stringType},  // symbol
		{Type: addressType}, // account
		{Type: uint256Type}, // amount
	}
	commandsArgs = abi.Arguments{{Type: commandsType}}
)

func mustNewType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic("gateway: invalid abi type " + t + ": " + err.Error())
	}
	return typ
}

// EncodeApproveContractCall packs the destination-side approval parameters
// for a plain ContractCall event.
func EncodeApproveContractCall(ev *types.RelayEvent) ([]byte, error) {
	return approveContractCallArgs.Pack(
		ev.SourceChain,
		ev.Sender,
		common.HexToAddress(ev.DestinationAddress),
		common.HexToHash(ev.PayloadHash),
		common.HexToHash(ev.TxHash),
		new(big.Int).SetUint64(uint64(ev.LogIndex)),
	)
}

// EncodeApproveContractCallWithMint packs the approval parameters for a
// ContractCallWithToken event, including the token leg.
func EncodeApproveContractCallWithMint(ev *types.RelayEvent) ([]byte, error) {
	if ev.Amount == nil {
		return nil, fmt.Errorf("event %s has no token amount", ev.EventID())
	}
	return approveContractCallWithMintArgs.Pack(
		ev.SourceChain,
		ev.Sender,
		common.HexToAddress(ev.DestinationAddress),
		common.HexToHash(ev.PayloadHash),
		ev.TokenSymbol,
		ev.Amount,
		common.HexToHash(ev.TxHash),
		new(big.Int).SetUint64(uint64(ev.LogIndex)),
	)
}

// EncodeMintToken packs a mint instruction. Used both for TokenSent relays
// and for refunds issued by the compensation engine.
func EncodeMintToken(symbol, account string, amount *big.Int) ([]byte, error) {
	if amount == nil {
		return nil, fmt.Errorf("mint command requires an amount")
	}
	return mintTokenArgs.Pack(symbol, common.HexToAddress(account), amount)
}

// ToBoundCommands converts relayer commands to their calldata representation.
func ToBoundCommands(cmds []types.Command) []BoundCommand {
	bound := make([]BoundCommand, len(cmds))
	for i, cmd := range cmds {
		bound[i] = BoundCommand{
			CommandType: new(big.Int).SetUint64(uint64(cmd.CommandType)),
			Data:        cmd.Data,
		}
	}
	return bound
}

// HashCommands computes the digest the relayer signs before calling execute:
// keccak256(commandId || abi.encode(commands)).
func HashCommands(commandID string, cmds []types.Command) ([]byte, error) {
	packed, err := commandsArgs.Pack(ToBoundCommands(cmds))
	if err != nil {
		return nil, fmt.Errorf("failed to pack commands: %w", err)
	}
	id := common.HexToHash(commandID)
	return crypto.Keccak256(id.Bytes(), packed), nil
}
