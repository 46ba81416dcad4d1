package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openbridge/gmp-relayer/config"
	"github.com/openbridge/gmp-relayer/pkg/events"
	"github.com/openbridge/gmp-relayer/pkg/metrics"
	"github.com/openbridge/gmp-relayer/pkg/store"
)

// Monitor is the per-chain polling loop. It scans gateway logs in
// (watermark, confirmedHead] ranges and publishes one RelayEvent per log.
// It never writes destination state; read failures leave the watermark
// untouched so the same range is retried on the next tick.
type Monitor struct {
	client       ChainClient
	store        store.Store
	bus          *events.EventBus
	chainCfg     *config.ChainConfig
	safetyMargin uint64

	watermark   uint64
	initialized bool
}

func NewMonitor(client ChainClient, st store.Store, bus *events.EventBus, chainCfg *config.ChainConfig, safetyMargin uint64) *Monitor {
	return &Monitor{
		client:       client,
		store:        st,
		bus:          bus,
		chainCfg:     chainCfg,
		safetyMargin: safetyMargin,
	}
}

// Run polls until ctx is cancelled. Transient errors are logged and retried
// indefinitely; they never abort the loop.
func (m *Monitor) Run(ctx context.Context) {
	log.Info().
		Str("chain", m.client.Name()).
		Dur("interval", m.chainCfg.BlockTime).
		Msg("[Monitor] [Run] starting chain monitor")
	for {
		if err := m.tick(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).
				Str("chain", m.client.Name()).
				Uint64("watermark", m.watermark).
				Msg("[Monitor] [Run] scan failed, range will be retried")
		}
		select {
		case <-ctx.Done():
			log.Info().Str("chain", m.client.Name()).Msg("[Monitor] [Run] stopped")
			return
		case <-time.After(m.chainCfg.BlockTime):
		}
	}
}

func (m *Monitor) tick(ctx context.Context) error {
	head, err := m.client.BlockNumber(ctx)
	if err != nil {
		return err
	}
	confirmedHead := head
	if head > m.chainCfg.BlockConfirmations {
		confirmedHead = head - m.chainCfg.BlockConfirmations
	} else {
		confirmedHead = 0
	}
	if !m.initialized {
		m.initWatermark(confirmedHead)
	}
	if confirmedHead <= m.watermark {
		return nil
	}

	evs, err := m.client.FilterGatewayEvents(ctx, m.watermark+1, confirmedHead)
	if err != nil {
		return err
	}
	for _, ev := range evs {
		metrics.EventsObserved.WithLabelValues(ev.SourceChain, string(ev.EventKind)).Inc()
		log.Info().
			Str("chain", ev.SourceChain).
			Str("eventKind", string(ev.EventKind)).
			Str("eventId", ev.EventID()).
			Str("destinationChain", ev.DestinationChain).
			Uint64("blockNumber", ev.BlockNumber).
			Msg("[Monitor] [tick] observed gateway event")
		if !m.bus.Publish(ctx, ev) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// No executor handles this destination; the event is dropped
			// permanently and never enters the retry path.
			metrics.EventsSkipped.WithLabelValues(ev.SourceChain, "unsupported_destination").Inc()
			log.Warn().
				Str("eventId", ev.EventID()).
				Str("destinationChain", ev.DestinationChain).
				Msg("[Monitor] [tick] destination chain is not configured, dropping event")
		}
	}

	if err := m.store.SetWatermark(m.client.Name(), confirmedHead); err != nil {
		// The in-memory watermark stays put too; the range is re-scanned and
		// duplicates are absorbed by the processed-event gate.
		return fmt.Errorf("failed to persist watermark: %w", err)
	}
	m.watermark = confirmedHead
	return nil
}

// initWatermark resumes from the persisted cursor when one exists, otherwise
// starts safetyMargin blocks behind the head. Either way the initial scan
// range is clamped to the configured recover range.
func (m *Monitor) initWatermark(confirmedHead uint64) {
	watermark, err := m.store.Watermark(m.client.Name())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).
				Str("chain", m.client.Name()).
				Msg("[Monitor] [initWatermark] failed to read persisted watermark")
		}
		if confirmedHead > m.safetyMargin {
			watermark = confirmedHead - m.safetyMargin
		} else {
			watermark = 0
		}
	}
	if confirmedHead > m.chainCfg.RecoverRange && watermark < confirmedHead-m.chainCfg.RecoverRange {
		watermark = confirmedHead - m.chainCfg.RecoverRange
	}
	m.watermark = watermark
	m.initialized = true
	log.Info().
		Str("chain", m.client.Name()).
		Uint64("watermark", m.watermark).
		Uint64("confirmedHead", confirmedHead).
		Msg("[Monitor] [initWatermark] monitor initialized")
}
