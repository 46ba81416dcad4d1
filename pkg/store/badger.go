package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog/log"

	"github.com/openbridge/gmp-relayer/pkg/types"
)

var (
	processedPrefix = []byte("processed:")
	failedPrefix    = []byte("failed:")
	watermarkPrefix = []byte("watermark:")
)

// BadgerStore keeps relayer state in an embedded badger database.
// Processed-event values carry their insertion timestamp so compaction can
// drop the oldest entries first. mu guards the in-memory counter and keeps
// the mark+compact sequence atomic across the executor loops and the sweep.
type BadgerStore struct {
	db           *badger.DB
	maxProcessed int

	mu             sync.Mutex
	processedCount int
}

func NewBadgerStore(dir string, maxProcessed int) (*BadgerStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger store requires a data directory")
	}
	opts := badger.DefaultOptions(dir)
	opts.SyncWrites = true
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dir, err)
	}
	bs := &BadgerStore{db: db, maxProcessed: maxProcessed}
	count, err := bs.countPrefix(processedPrefix)
	if err != nil {
		db.Close()
		return nil, err
	}
	bs.processedCount = count
	return bs, nil
}

func (bs *BadgerStore) countPrefix(prefix []byte) (int, error) {
	count := 0
	err := bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func processedKey(eventID string) []byte {
	return append(append([]byte{}, processedPrefix...), eventID...)
}

func failedKey(key string) []byte {
	return append(append([]byte{}, failedPrefix...), key...)
}

func watermarkKey(chain string) []byte {
	return append(append([]byte{}, watermarkPrefix...), chain...)
}

func (bs *BadgerStore) IsEventProcessed(eventID string) (bool, error) {
	var found bool
	err := bs.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(processedKey(eventID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (bs *BadgerStore) MarkEventProcessed(eventID string) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	processed, err := bs.IsEventProcessed(eventID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixNano()))
	err = bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(processedKey(eventID), ts[:])
	})
	if err != nil {
		return fmt.Errorf("failed to persist processed event %s: %w", eventID, err)
	}
	bs.processedCount++
	if bs.maxProcessed > 0 && bs.processedCount > bs.maxProcessed {
		if err := bs.compactProcessed(); err != nil {
			// Compaction is best effort, the mark itself is already durable.
			log.Warn().Err(err).Msg("[BadgerStore] [MarkEventProcessed] compaction failed")
		}
	}
	return nil
}

// compactProcessed drops the oldest processed entries down to the bound.
// Called with mu held.
func (bs *BadgerStore) compactProcessed() error {
	type entry struct {
		key []byte
		ts  uint64
	}
	var entries []entry
	err := bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = processedPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if err := item.Value(func(val []byte) error {
				var ts uint64
				if len(val) == 8 {
					ts = binary.BigEndian.Uint64(val)
				}
				entries = append(entries, entry{key: key, ts: ts})
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(entries) <= bs.maxProcessed {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ts < entries[j].ts })
	drop := entries[:len(entries)-bs.maxProcessed]
	err = bs.db.Update(func(txn *badger.Txn) error {
		for _, e := range drop {
			if err := txn.Delete(e.key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	bs.processedCount -= len(drop)
	return nil
}

func (bs *BadgerStore) ProcessedCount() (int, error) {
	return bs.countPrefix(processedPrefix)
}

func (bs *BadgerStore) GetFailedTx(key string) (*types.FailedTransaction, error) {
	var record types.FailedTransaction
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(failedKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read failed tx %s: %w", key, err)
	}
	return &record, nil
}

func (bs *BadgerStore) PutFailedTx(ftx *types.FailedTransaction) error {
	data, err := json.Marshal(ftx)
	if err != nil {
		return fmt.Errorf("failed to marshal failed tx %s: %w", ftx.Key(), err)
	}
	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(failedKey(ftx.Key()), data)
	})
}

func (bs *BadgerStore) DeleteFailedTx(key string) error {
	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(failedKey(key))
	})
}

func (bs *BadgerStore) ListFailedTxs() ([]*types.FailedTransaction, error) {
	var records []*types.FailedTransaction
	err := bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = failedPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var record types.FailedTransaction
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (bs *BadgerStore) Watermark(chain string) (uint64, error) {
	var block uint64
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(watermarkKey(chain))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt watermark value for chain %s", chain)
			}
			block = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return block, nil
}

func (bs *BadgerStore) SetWatermark(chain string, block uint64) error {
	var val [8]byte
	binary.BigEndian.PutUint64(val[:], block)
	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(watermarkKey(chain), val[:])
	})
}

func (bs *BadgerStore) Close() error {
	return bs.db.Close()
}
