package relayer

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openbridge/gmp-relayer/pkg/store"
	"github.com/openbridge/gmp-relayer/pkg/types"
)

type mockChain struct {
	name string

	mu          sync.Mutex
	head        uint64
	headErr     error
	events      []*types.RelayEvent
	filterErr   error
	executed    map[string]bool
	executeErr  error
	executeLog  []string
	whitelisted bool
}

func newMockChain(name string) *mockChain {
	return &mockChain{
		name:        name,
		executed:    make(map[string]bool),
		whitelisted: true,
	}
}

func (m *mockChain) Name() string { return m.name }

func (m *mockChain) BlockNumber(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.head, m.headErr
}

func (m *mockChain) FilterGatewayEvents(ctx context.Context, from, to uint64) ([]*types.RelayEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.filterErr != nil {
		return nil, m.filterErr
	}
	var out []*types.RelayEvent
	for _, ev := range m.events {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *mockChain) IsCommandExecuted(ctx context.Context, commandID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executed[commandID], nil
}

func (m *mockChain) IsWhitelistedRelayer(ctx context.Context) (bool, error) {
	return m.whitelisted, nil
}

func (m *mockChain) RelayerBalance(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (m *mockChain) ExecuteCommands(ctx context.Context, commandID string, cmds []types.Command) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executeLog = append(m.executeLog, commandID)
	if m.executeErr != nil {
		return "", m.executeErr
	}
	m.executed[commandID] = true
	return "0xdeadbeef", nil
}

func (m *mockChain) executeCount(commandID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, id := range m.executeLog {
		if id == commandID {
			count++
		}
	}
	return count
}

func (m *mockChain) totalExecutes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.executeLog)
}

func (m *mockChain) markExecuted(commandID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed[commandID] = true
}

func (m *mockChain) setExecuteErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executeErr = err
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir(), 0)
	require.NoError(t, err)
	return st
}

func tokenSentEvent(destChain string) *types.RelayEvent {
	return &types.RelayEvent{
		SourceChain:        "ethereum",
		EventKind:          types.EventTokenSent,
		Sender:             "0x52908400098527886E0F7030069857D2E4169EE7",
		DestinationChain:   destChain,
		DestinationAddress: "0x8617E340B3D01FA5F11F306F4090FD50E238070D",
		TokenSymbol:        "USDC",
		Amount:             big.NewInt(100),
		TxHash:             "0x" + strings.Repeat("ab", 32),
		LogIndex:           2,
		BlockNumber:        1000,
	}
}

func contractCallEvent(destChain string) *types.RelayEvent {
	return &types.RelayEvent{
		SourceChain:        "ethereum",
		EventKind:          types.EventContractCall,
		Sender:             "0x52908400098527886E0F7030069857D2E4169EE7",
		DestinationChain:   destChain,
		DestinationAddress: "0x8617E340B3D01FA5F11F306F4090FD50E238070D",
		Payload:            []byte{0x01, 0x02},
		PayloadHash:        "0x" + strings.Repeat("cd", 32),
		TxHash:             "0x" + strings.Repeat("ef", 32),
		LogIndex:           7,
		BlockNumber:        1200,
	}
}
