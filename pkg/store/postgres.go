package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openbridge/gmp-relayer/pkg/types"
)

// ProcessedEvent is one row of the processed-event set.
type ProcessedEvent struct {
	EventID   string    `gorm:"primaryKey;column:event_id"`
	CreatedAt time.Time `gorm:"index"`
}

// FailedTxRecord stores a FailedTransaction as a JSON document keyed the same
// way as the file store, with the status lifted out for querying.
type FailedTxRecord struct {
	Key       string `gorm:"primaryKey"`
	Status    string `gorm:"index"`
	Data      []byte `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

// WatermarkRecord is a per-chain monitor cursor.
type WatermarkRecord struct {
	Chain       string `gorm:"primaryKey"`
	BlockNumber uint64
	UpdatedAt   time.Time
}

// PostgresStore keeps relayer state in postgres via gorm.
type PostgresStore struct {
	db           *gorm.DB
	maxProcessed int
}

func NewPostgresStore(dsn string, maxProcessed int) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres store requires a dsn")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.AutoMigrate(&ProcessedEvent{}, &FailedTxRecord{}, &WatermarkRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate store schema: %w", err)
	}
	return &PostgresStore{db: db, maxProcessed: maxProcessed}, nil
}

func (ps *PostgresStore) IsEventProcessed(eventID string) (bool, error) {
	var count int64
	err := ps.db.Model(&ProcessedEvent{}).Where("event_id = ?", eventID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (ps *PostgresStore) MarkEventProcessed(eventID string) error {
	err := ps.db.Where(ProcessedEvent{EventID: eventID}).
		FirstOrCreate(&ProcessedEvent{EventID: eventID, CreatedAt: time.Now()}).Error
	if err != nil {
		return fmt.Errorf("failed to persist processed event %s: %w", eventID, err)
	}
	if ps.maxProcessed > 0 {
		return ps.compactProcessed()
	}
	return nil
}

func (ps *PostgresStore) compactProcessed() error {
	var count int64
	if err := ps.db.Model(&ProcessedEvent{}).Count(&count).Error; err != nil {
		return err
	}
	if int(count) <= ps.maxProcessed {
		return nil
	}
	sub := ps.db.Model(&ProcessedEvent{}).
		Select("event_id").
		Order("created_at DESC").
		Limit(ps.maxProcessed)
	return ps.db.Where("event_id NOT IN (?)", sub).Delete(&ProcessedEvent{}).Error
}

func (ps *PostgresStore) ProcessedCount() (int, error) {
	var count int64
	err := ps.db.Model(&ProcessedEvent{}).Count(&count).Error
	return int(count), err
}

func (ps *PostgresStore) GetFailedTx(key string) (*types.FailedTransaction, error) {
	var row FailedTxRecord
	err := ps.db.First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var record types.FailedTransaction
	if err := json.Unmarshal(row.Data, &record); err != nil {
		return nil, fmt.Errorf("corrupt failed tx record %s: %w", key, err)
	}
	return &record, nil
}

func (ps *PostgresStore) PutFailedTx(ftx *types.FailedTransaction) error {
	data, err := json.Marshal(ftx)
	if err != nil {
		return fmt.Errorf("failed to marshal failed tx %s: %w", ftx.Key(), err)
	}
	row := FailedTxRecord{
		Key:    ftx.Key(),
		Status: string(ftx.Status),
		Data:   data,
	}
	return ps.db.Save(&row).Error
}

func (ps *PostgresStore) DeleteFailedTx(key string) error {
	return ps.db.Delete(&FailedTxRecord{}, "key = ?", key).Error
}

func (ps *PostgresStore) ListFailedTxs() ([]*types.FailedTransaction, error) {
	var rows []FailedTxRecord
	if err := ps.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]*types.FailedTransaction, 0, len(rows))
	for _, row := range rows {
		var record types.FailedTransaction
		if err := json.Unmarshal(row.Data, &record); err != nil {
			return nil, fmt.Errorf("corrupt failed tx record %s: %w", row.Key, err)
		}
		records = append(records, &record)
	}
	return records, nil
}

func (ps *PostgresStore) Watermark(chain string) (uint64, error) {
	var row WatermarkRecord
	err := ps.db.First(&row, "chain = ?", chain).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return row.BlockNumber, nil
}

func (ps *PostgresStore) SetWatermark(chain string, block uint64) error {
	row := WatermarkRecord{Chain: chain, BlockNumber: block}
	return ps.db.Save(&row).Error
}

func (ps *PostgresStore) Close() error {
	sqlDB, err := ps.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
