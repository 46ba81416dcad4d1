package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/openbridge/gmp-relayer/pkg/types"
)

const (
	processedEventsFile = "processed_events.json"
	failedTxsFile       = "failed_transactions.json"
	watermarksFile      = "watermarks.json"
)

// FileStore persists state as JSON documents in a data directory:
// processed_events.json holds the eventId array in insertion order,
// failed_transactions.json holds [key, record] pairs and watermarks.json
// the per-chain block cursors. Every mutation rewrites the affected
// document via a temp-file rename before returning.
type FileStore struct {
	mu           sync.Mutex
	dir          string
	maxProcessed int

	processed      map[string]struct{}
	processedOrder []string
	failed         map[string]*types.FailedTransaction
	watermarks     map[string]uint64
}

func NewFileStore(dir string, maxProcessed int) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store requires a data directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	fs := &FileStore{
		dir:          dir,
		maxProcessed: maxProcessed,
		processed:    make(map[string]struct{}),
		failed:       make(map[string]*types.FailedTransaction),
		watermarks:   make(map[string]uint64),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	var ids []string
	if err := readJSONFile(filepath.Join(fs.dir, processedEventsFile), &ids); err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := fs.processed[id]; !ok {
			fs.processed[id] = struct{}{}
			fs.processedOrder = append(fs.processedOrder, id)
		}
	}
	var pairs []failedTxPair
	if err := readJSONFile(filepath.Join(fs.dir, failedTxsFile), &pairs); err != nil {
		return err
	}
	for _, pair := range pairs {
		fs.failed[pair.Key] = pair.Record
	}
	if err := readJSONFile(filepath.Join(fs.dir, watermarksFile), &fs.watermarks); err != nil {
		return err
	}
	if fs.watermarks == nil {
		fs.watermarks = make(map[string]uint64)
	}
	return nil
}

// failedTxPair serializes as a [key, record] JSON tuple.
type failedTxPair struct {
	Key    string
	Record *types.FailedTransaction
}

func (p failedTxPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{p.Key, p.Record})
}

func (p *failedTxPair) UnmarshalJSON(data []byte) error {
	var record types.FailedTransaction
	tuple := []interface{}{&p.Key, &record}
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	p.Record = &record
	return nil
}

func readJSONFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeJSONFile(path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func (fs *FileStore) persistFailed() error {
	pairs := make([]failedTxPair, 0, len(fs.failed))
	for key, record := range fs.failed {
		pairs = append(pairs, failedTxPair{Key: key, Record: record})
	}
	return writeJSONFile(filepath.Join(fs.dir, failedTxsFile), pairs)
}

func (fs *FileStore) persistWatermarks() error {
	return writeJSONFile(filepath.Join(fs.dir, watermarksFile), fs.watermarks)
}

func (fs *FileStore) IsEventProcessed(eventID string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.processed[eventID]
	return ok, nil
}

func (fs *FileStore) MarkEventProcessed(eventID string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.processed[eventID]; ok {
		return nil
	}
	order := append(append([]string(nil), fs.processedOrder...), eventID)
	// Retain only the most recent entries once past the bound.
	drop := 0
	if fs.maxProcessed > 0 && len(order) > fs.maxProcessed {
		drop = len(order) - fs.maxProcessed
		order = order[drop:]
	}
	// Persist first; the in-memory set only changes once the write landed.
	if err := writeJSONFile(filepath.Join(fs.dir, processedEventsFile), order); err != nil {
		return err
	}
	for _, old := range fs.processedOrder[:drop] {
		delete(fs.processed, old)
	}
	fs.processed[eventID] = struct{}{}
	fs.processedOrder = order
	return nil
}

func (fs *FileStore) ProcessedCount() (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.processedOrder), nil
}

func (fs *FileStore) GetFailedTx(key string) (*types.FailedTransaction, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	record, ok := fs.failed[key]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (fs *FileStore) PutFailedTx(ftx *types.FailedTransaction) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	key := ftx.Key()
	prev, had := fs.failed[key]
	clone := *ftx
	fs.failed[key] = &clone
	if err := fs.persistFailed(); err != nil {
		if had {
			fs.failed[key] = prev
		} else {
			delete(fs.failed, key)
		}
		return err
	}
	return nil
}

func (fs *FileStore) DeleteFailedTx(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	prev, ok := fs.failed[key]
	if !ok {
		return nil
	}
	delete(fs.failed, key)
	if err := fs.persistFailed(); err != nil {
		fs.failed[key] = prev
		return err
	}
	return nil
}

func (fs *FileStore) ListFailedTxs() ([]*types.FailedTransaction, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	records := make([]*types.FailedTransaction, 0, len(fs.failed))
	for _, record := range fs.failed {
		clone := *record
		records = append(records, &clone)
	}
	return records, nil
}

func (fs *FileStore) Watermark(chain string) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	block, ok := fs.watermarks[chain]
	if !ok {
		return 0, ErrNotFound
	}
	return block, nil
}

func (fs *FileStore) SetWatermark(chain string, block uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	prev, had := fs.watermarks[chain]
	fs.watermarks[chain] = block
	if err := fs.persistWatermarks(); err != nil {
		if had {
			fs.watermarks[chain] = prev
		} else {
			delete(fs.watermarks, chain)
		}
		return err
	}
	return nil
}

func (fs *FileStore) Close() error {
	return nil
}
