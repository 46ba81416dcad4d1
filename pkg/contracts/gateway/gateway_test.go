package gateway_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/openbridge/gmp-relayer/pkg/contracts/gateway"
	"github.com/openbridge/gmp-relayer/pkg/types"
)

func TestParseTokenSentLog(t *testing.T) {
	abi := gateway.ABI()
	event := abi.Events["TokenSent"]

	data, err := event.Inputs.NonIndexed().Pack("bsc", "0x8617E340B3D01FA5F11F306F4090FD50E238070D", "USDC", big.NewInt(100))
	require.NoError(t, err)

	sender := common.HexToAddress("0x52908400098527886E0F7030069857D2E4169EE7")
	lg := ethtypes.Log{
		Topics:      []common.Hash{event.ID, common.BytesToHash(sender.Bytes())},
		Data:        data,
		TxHash:      common.HexToHash("0x1111"),
		Index:       2,
		BlockNumber: 1000,
	}

	ev, err := gateway.ParseLog("ethereum", lg)
	require.NoError(t, err)
	require.Equal(t, types.EventTokenSent, ev.EventKind)
	require.Equal(t, "ethereum", ev.SourceChain)
	require.Equal(t, sender.Hex(), ev.Sender)
	require.Equal(t, "bsc", ev.DestinationChain)
	require.Equal(t, "USDC", ev.TokenSymbol)
	require.Equal(t, int64(100), ev.Amount.Int64())
	require.Equal(t, uint(2), ev.LogIndex)
	require.Equal(t, uint64(1000), ev.BlockNumber)
}

func TestParseContractCallLog(t *testing.T) {
	abi := gateway.ABI()
	event := abi.Events["ContractCall"]

	payload := []byte{0xde, 0xad}
	payloadHash := crypto.Keccak256Hash(payload)
	data, err := event.Inputs.NonIndexed().Pack("polygon", "0x8617E340B3D01FA5F11F306F4090FD50E238070D", payload)
	require.NoError(t, err)

	sender := common.HexToAddress("0x52908400098527886E0F7030069857D2E4169EE7")
	lg := ethtypes.Log{
		Topics: []common.Hash{event.ID, common.BytesToHash(sender.Bytes()), payloadHash},
		Data:   data,
		TxHash: common.HexToHash("0x2222"),
		Index:  0,
	}

	ev, err := gateway.ParseLog("ethereum", lg)
	require.NoError(t, err)
	require.Equal(t, types.EventContractCall, ev.EventKind)
	require.Equal(t, "polygon", ev.DestinationChain)
	require.Equal(t, payload, ev.Payload)
	require.Equal(t, payloadHash.Hex(), ev.PayloadHash)
	require.Nil(t, ev.Amount)
}

func TestParseLogRejectsForeignTopic(t *testing.T) {
	lg := ethtypes.Log{Topics: []common.Hash{common.HexToHash("0xbad")}}
	_, err := gateway.ParseLog("ethereum", lg)
	require.Error(t, err)
}

func TestHashCommandsIsDeterministic(t *testing.T) {
	data, err := gateway.EncodeMintToken("USDC", "0x52908400098527886E0F7030069857D2E4169EE7", big.NewInt(100))
	require.NoError(t, err)
	cmds := []types.Command{{CommandType: types.CommandMintToken, Data: data}}

	first, err := gateway.HashCommands("0xc0ffee", cmds)
	require.NoError(t, err)
	second, err := gateway.HashCommands("0xc0ffee", cmds)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 32)

	other, err := gateway.HashCommands("0xdecaf", cmds)
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

func TestEncodeMintTokenRequiresAmount(t *testing.T) {
	_, err := gateway.EncodeMintToken("USDC", "0x52908400098527886E0F7030069857D2E4169EE7", nil)
	require.Error(t, err)
}
