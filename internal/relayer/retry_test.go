package relayer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openbridge/gmp-relayer/pkg/types"
)

func TestBackoffMonotonicUpToMax(t *testing.T) {
	base := 10 * time.Second
	max := 10 * time.Minute

	prev := time.Duration(0)
	for count := 0; count < 20; count++ {
		delay := Backoff(count, base, max)
		require.GreaterOrEqual(t, delay, prev, "delay must be non-decreasing at count %d", count)
		require.LessOrEqual(t, delay, max)
		prev = delay
	}
	require.Equal(t, base, Backoff(0, base, max))
	require.Equal(t, 2*base, Backoff(1, base, max))
	require.Equal(t, max, Backoff(19, base, max))
}

func TestSweepRespectsBackoffDelay(t *testing.T) {
	st := newTestStore(t)
	dest := newMockChain("bsc")
	dest.setExecuteErr(errors.New("revert"))
	ex, clients := newTestExecutor(t, st, dest)
	comp := NewCompensationEngine(clients, st, ex.locks)
	rp := NewRetryProcessor(st, ex, comp, time.Second, 10*time.Second, 10*time.Minute)

	ev := tokenSentEvent("bsc")
	require.Error(t, ex.HandleEvent(context.Background(), ev))
	commandID := CommandID(ev)
	require.Equal(t, 1, dest.executeCount(commandID))

	attempt := time.Now()
	// Not yet eligible: backoff(1) = 20s, only 5s elapsed.
	rp.now = func() time.Time { return attempt.Add(5 * time.Second) }
	rp.Sweep(context.Background())
	require.Equal(t, 1, dest.executeCount(commandID))

	// Past the delay the record is retried (and fails again).
	rp.now = func() time.Time { return attempt.Add(time.Minute) }
	ex.now = rp.now
	rp.Sweep(context.Background())
	require.Equal(t, 2, dest.executeCount(commandID))
}

func TestSweepRetriesStoredCommandsUntilSuccess(t *testing.T) {
	st := newTestStore(t)
	dest := newMockChain("bsc")
	dest.setExecuteErr(errors.New("revert"))
	ex, clients := newTestExecutor(t, st, dest)
	comp := NewCompensationEngine(clients, st, ex.locks)
	rp := NewRetryProcessor(st, ex, comp, time.Second, 10*time.Second, 10*time.Minute)
	rp.now = func() time.Time { return time.Now().Add(time.Hour) }

	ev := tokenSentEvent("bsc")
	require.Error(t, ex.HandleEvent(context.Background(), ev))
	commandID := CommandID(ev)

	dest.setExecuteErr(nil)
	rp.Sweep(context.Background())
	require.Equal(t, 2, dest.executeCount(commandID))

	_, err := st.GetFailedTx(types.FailedTxKey(commandID, "bsc"))
	require.Error(t, err)

	processed, perr := st.IsEventProcessed(ev.EventID())
	require.NoError(t, perr)
	require.True(t, processed)

	// Nothing left to sweep.
	rp.Sweep(context.Background())
	require.Equal(t, 2, dest.executeCount(commandID))
}

// Scenario: three failed attempts with maxRetries = 3 end in exactly one
// compensating mint on the source chain refunding the original sender.
func TestExhaustionTriggersCompensationExactlyOnce(t *testing.T) {
	st := newTestStore(t)
	source := newMockChain("ethereum")
	dest := newMockChain("bsc")
	dest.setExecuteErr(errors.New("revert"))
	ex, clients := newTestExecutor(t, st, source, dest)
	comp := NewCompensationEngine(clients, st, ex.locks)
	rp := NewRetryProcessor(st, ex, comp, time.Second, 10*time.Second, 10*time.Minute)
	// Advancing fake clock shared by executor and processor: each sweep
	// sees more than the max backoff elapsed since the previous attempt.
	clock := time.Now()
	advance := func() { clock = clock.Add(24 * time.Hour) }
	rp.now = func() time.Time { return clock }
	ex.now = rp.now

	ev := tokenSentEvent("bsc")
	require.Error(t, ex.HandleEvent(context.Background(), ev))
	commandID := CommandID(ev)

	// Two sweeps bring the retry counter to its bound; the third finds the
	// record exhausted and compensates.
	advance()
	rp.Sweep(context.Background())
	advance()
	rp.Sweep(context.Background())
	require.Equal(t, 3, dest.executeCount(commandID))

	advance()
	rp.Sweep(context.Background())

	refundID := RefundCommandID(commandID)
	require.Equal(t, 1, source.executeCount(refundID))

	ftx, err := st.GetFailedTx(types.FailedTxKey(commandID, "bsc"))
	require.NoError(t, err)
	require.Equal(t, types.FailedTxCompensated, ftx.Status)

	// Further sweeps neither retry the original command nor mint again.
	advance()
	rp.Sweep(context.Background())
	advance()
	rp.Sweep(context.Background())
	require.Equal(t, 3, dest.executeCount(commandID))
	require.Equal(t, 1, source.executeCount(refundID))
}
