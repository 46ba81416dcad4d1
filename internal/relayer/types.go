package relayer

import (
	"context"
	"math/big"
	"sync"

	"github.com/openbridge/gmp-relayer/pkg/types"
)

// ChainClient is what the relay engine needs from one connected chain.
// Reads never require the signing capability; ExecuteCommands is the only
// write path.
type ChainClient interface {
	Name() string
	BlockNumber(ctx context.Context) (uint64, error)
	FilterGatewayEvents(ctx context.Context, from, to uint64) ([]*types.RelayEvent, error)
	IsCommandExecuted(ctx context.Context, commandID string) (bool, error)
	IsWhitelistedRelayer(ctx context.Context) (bool, error)
	RelayerBalance(ctx context.Context) (*big.Int, error)
	ExecuteCommands(ctx context.Context, commandID string, cmds []types.Command) (string, error)
}

// keyedMutex serializes work per command id so a retry sweep and a manual
// trigger can never execute the same command concurrently. Entries are
// reference counted and removed once unused, keeping the map bounded by the
// number of in-flight keys rather than every key ever locked.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()
	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		k.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
