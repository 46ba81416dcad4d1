package store

import (
	"errors"
	"fmt"

	"github.com/openbridge/gmp-relayer/pkg/types"
)

// ErrNotFound is returned when a requested record is not in the store.
var ErrNotFound = errors.New("record not found in store")

// Store is the relayer's durable state: the processed-event set, the
// failed-transaction records and the per-chain monitor watermarks.
//
// Every mutation must be persisted before the call returns; callers treat a
// returned error as the mutation not having happened.
type Store interface {
	IsEventProcessed(eventID string) (bool, error)
	MarkEventProcessed(eventID string) error
	ProcessedCount() (int, error)

	GetFailedTx(key string) (*types.FailedTransaction, error)
	PutFailedTx(ftx *types.FailedTransaction) error
	DeleteFailedTx(key string) error
	ListFailedTxs() ([]*types.FailedTransaction, error)

	Watermark(chain string) (uint64, error)
	SetWatermark(chain string, block uint64) error

	Close() error
}

// Config selects and parameterizes a Store implementation.
type Config struct {
	// Driver is one of "file", "badger", "postgres".
	Driver string `mapstructure:"driver" validate:"required,oneof=file badger postgres"`
	// Path is the data directory for the file and badger drivers.
	Path string `mapstructure:"path"`
	// DSN is the connection string for the postgres driver.
	DSN string `mapstructure:"dsn"`
	// MaxProcessedEvents bounds the processed-event set; older entries are
	// compacted away once the set grows past this limit. Zero disables
	// compaction.
	MaxProcessedEvents int `mapstructure:"max_processed_events"`
}

// New opens the store selected by cfg.Driver.
func New(cfg *Config) (Store, error) {
	switch cfg.Driver {
	case "file":
		return NewFileStore(cfg.Path, cfg.MaxProcessedEvents)
	case "badger":
		return NewBadgerStore(cfg.Path, cfg.MaxProcessedEvents)
	case "postgres":
		return NewPostgresStore(cfg.DSN, cfg.MaxProcessedEvents)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
