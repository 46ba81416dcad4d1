package store_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openbridge/gmp-relayer/pkg/store"
)

func TestBadgerStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bs, err := store.NewBadgerStore(dir, 0)
	require.NoError(t, err)

	require.NoError(t, bs.MarkEventProcessed("0xevent1"))
	processed, err := bs.IsEventProcessed("0xevent1")
	require.NoError(t, err)
	require.True(t, processed)

	unknown, err := bs.IsEventProcessed("0xevent2")
	require.NoError(t, err)
	require.False(t, unknown)

	ftx := sampleFailedTx()
	require.NoError(t, bs.PutFailedTx(ftx))
	stored, err := bs.GetFailedTx(ftx.Key())
	require.NoError(t, err)
	require.Equal(t, ftx.CommandID, stored.CommandID)
	require.Equal(t, ftx.Status, stored.Status)

	records, err := bs.ListFailedTxs()
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, bs.DeleteFailedTx(ftx.Key()))
	_, err = bs.GetFailedTx(ftx.Key())
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, bs.SetWatermark("ethereum", 1234))
	watermark, err := bs.Watermark("ethereum")
	require.NoError(t, err)
	require.Equal(t, uint64(1234), watermark)
	_, err = bs.Watermark("bsc")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, bs.Close())

	// Reopen from the same directory, state survives.
	reopened, err := store.NewBadgerStore(dir, 0)
	require.NoError(t, err)
	defer reopened.Close()
	processed, err = reopened.IsEventProcessed("0xevent1")
	require.NoError(t, err)
	require.True(t, processed)
}

func TestBadgerStoreCompactsProcessedEvents(t *testing.T) {
	bs, err := store.NewBadgerStore(t.TempDir(), 4)
	require.NoError(t, err)
	defer bs.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, bs.MarkEventProcessed(fmt.Sprintf("0xevent%02d", i)))
	}

	count, err := bs.ProcessedCount()
	require.NoError(t, err)
	require.LessOrEqual(t, count, 4)

	newest, err := bs.IsEventProcessed("0xevent09")
	require.NoError(t, err)
	require.True(t, newest)
}

func TestNewStoreSelectsDriver(t *testing.T) {
	st, err := store.New(&store.Config{Driver: "file", Path: t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &store.FileStore{}, st)
	require.NoError(t, st.Close())

	st, err = store.New(&store.Config{Driver: "badger", Path: t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &store.BadgerStore{}, st)
	require.NoError(t, st.Close())

	_, err = store.New(&store.Config{Driver: "bogus"})
	require.Error(t, err)
}

func TestBadgerStoreConcurrentMarks(t *testing.T) {
	dir := t.TempDir()
	bs, err := store.NewBadgerStore(dir, 10)
	require.NoError(t, err)
	defer bs.Close()

	// Executor loops and the sweep mark events concurrently; the counter and
	// the mark+compact sequence must stay consistent.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if err := bs.MarkEventProcessed(fmt.Sprintf("0xevent-%d-%d", g, i)); err != nil {
					t.Error(err)
				}
			}
		}(g)
	}
	wg.Wait()

	count, err := bs.ProcessedCount()
	require.NoError(t, err)
	require.Equal(t, 10, count, "compaction keeps the set at the bound")
}
