package store_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openbridge/gmp-relayer/pkg/store"
	"github.com/openbridge/gmp-relayer/pkg/types"
)

func sampleFailedTx() *types.FailedTransaction {
	return &types.FailedTransaction{
		CommandID:        "0xc0ffee",
		DestinationChain: "bsc",
		Commands: []types.Command{
			{CommandType: types.CommandMintToken, Data: []byte{0x01}},
		},
		SourceEvent: types.RelayEvent{
			SourceChain:      "ethereum",
			EventKind:        types.EventTokenSent,
			DestinationChain: "bsc",
			TxHash:           "0xabc",
			LogIndex:         2,
			BlockNumber:      1000,
		},
		Error:       "revert",
		RetryCount:  1,
		MaxRetries:  3,
		LastAttempt: time.Now().UTC(),
		Status:      types.FailedTxActive,
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir, 0)
	require.NoError(t, err)

	require.NoError(t, fs.MarkEventProcessed("0xevent1"))
	ftx := sampleFailedTx()
	require.NoError(t, fs.PutFailedTx(ftx))
	require.NoError(t, fs.SetWatermark("ethereum", 1000))
	require.NoError(t, fs.Close())

	reopened, err := store.NewFileStore(dir, 0)
	require.NoError(t, err)

	processed, err := reopened.IsEventProcessed("0xevent1")
	require.NoError(t, err)
	require.True(t, processed)

	stored, err := reopened.GetFailedTx(ftx.Key())
	require.NoError(t, err)
	require.Equal(t, ftx.CommandID, stored.CommandID)
	require.Equal(t, ftx.Commands, stored.Commands)
	require.Equal(t, types.FailedTxActive, stored.Status)

	watermark, err := reopened.Watermark("ethereum")
	require.NoError(t, err)
	require.Equal(t, uint64(1000), watermark)
}

func TestFileStoreFailedTxLifecycle(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = fs.GetFailedTx("missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	ftx := sampleFailedTx()
	require.NoError(t, fs.PutFailedTx(ftx))

	ftx.RetryCount = 2
	require.NoError(t, fs.PutFailedTx(ftx))
	stored, err := fs.GetFailedTx(ftx.Key())
	require.NoError(t, err)
	require.Equal(t, 2, stored.RetryCount)

	records, err := fs.ListFailedTxs()
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, fs.DeleteFailedTx(ftx.Key()))
	_, err = fs.GetFailedTx(ftx.Key())
	require.ErrorIs(t, err, store.ErrNotFound)

	// Deleting a missing record is a no-op.
	require.NoError(t, fs.DeleteFailedTx(ftx.Key()))
}

func TestFileStoreCompactsProcessedEvents(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir(), 3)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, fs.MarkEventProcessed(id))
	}

	count, err := fs.ProcessedCount()
	require.NoError(t, err)
	require.Equal(t, 3, count)

	// Oldest entries were dropped, the most recent retained.
	oldest, err := fs.IsEventProcessed("a")
	require.NoError(t, err)
	require.False(t, oldest)
	newest, err := fs.IsEventProcessed("e")
	require.NoError(t, err)
	require.True(t, newest)
}

func TestFileStoreDocumentLayout(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir, 0)
	require.NoError(t, err)

	require.NoError(t, fs.MarkEventProcessed("0xevent1"))
	ftx := sampleFailedTx()
	require.NoError(t, fs.PutFailedTx(ftx))

	var ids []string
	data, err := os.ReadFile(filepath.Join(dir, "processed_events.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &ids))
	require.Equal(t, []string{"0xevent1"}, ids)

	// failed_transactions.json is an array of [key, record] pairs.
	var pairs []kvPair
	data, err = os.ReadFile(filepath.Join(dir, "failed_transactions.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &pairs))
	require.Len(t, pairs, 1)
	require.Equal(t, "0xc0ffee-bsc", pairs[0].Key)
	require.Equal(t, "0xc0ffee", pairs[0].Record.CommandID)
}

type kvPair struct {
	Key    string
	Record types.FailedTransaction
}

func (p *kvPair) UnmarshalJSON(data []byte) error {
	tuple := []interface{}{&p.Key, &p.Record}
	return json.Unmarshal(data, &tuple)
}

func TestFileStoreFailedPersistLeavesNoTrace(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir, 0)
	require.NoError(t, err)

	// Make the rename target a directory so the document rewrite fails.
	path := filepath.Join(dir, "processed_events.json")
	require.NoError(t, os.RemoveAll(path))
	require.NoError(t, os.Mkdir(path, 0o750))

	require.Error(t, fs.MarkEventProcessed("0xevent1"))
	processed, err := fs.IsEventProcessed("0xevent1")
	require.NoError(t, err)
	require.False(t, processed, "a mark that did not persist must not be reported")

	count, err := fs.ProcessedCount()
	require.NoError(t, err)
	require.Zero(t, count)

	// Once the document is writable again the mark goes through.
	require.NoError(t, os.RemoveAll(path))
	require.NoError(t, fs.MarkEventProcessed("0xevent1"))
	processed, err = fs.IsEventProcessed("0xevent1")
	require.NoError(t, err)
	require.True(t, processed)
}

func TestFileStoreFailedPersistRollsBackFailureRecords(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir, 0)
	require.NoError(t, err)

	path := filepath.Join(dir, "failed_transactions.json")
	require.NoError(t, os.RemoveAll(path))
	require.NoError(t, os.Mkdir(path, 0o750))

	ftx := sampleFailedTx()
	require.Error(t, fs.PutFailedTx(ftx))
	_, err = fs.GetFailedTx(ftx.Key())
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, os.RemoveAll(path))
	require.NoError(t, fs.PutFailedTx(ftx))

	require.NoError(t, os.RemoveAll(path))
	require.NoError(t, os.Mkdir(path, 0o750))
	require.Error(t, fs.DeleteFailedTx(ftx.Key()))
	stored, err := fs.GetFailedTx(ftx.Key())
	require.NoError(t, err)
	require.Equal(t, ftx.CommandID, stored.CommandID)
}
