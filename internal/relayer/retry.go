package relayer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openbridge/gmp-relayer/pkg/metrics"
	"github.com/openbridge/gmp-relayer/pkg/store"
	"github.com/openbridge/gmp-relayer/pkg/types"
)

// Backoff returns the delay before the next attempt for a record that has
// failed retryCount times: min(base * 2^retryCount, max). Non-decreasing in
// retryCount.
func Backoff(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// RetryProcessor periodically sweeps the failure store, re-submitting
// eligible records through the executor and handing exhausted ones to the
// compensation engine.
type RetryProcessor struct {
	store    store.Store
	executor *Executor
	comp     *CompensationEngine
	interval time.Duration
	base     time.Duration
	max      time.Duration
	now      func() time.Time
}

func NewRetryProcessor(st store.Store, executor *Executor, comp *CompensationEngine, interval, base, max time.Duration) *RetryProcessor {
	return &RetryProcessor{
		store:    st,
		executor: executor,
		comp:     comp,
		interval: interval,
		base:     base,
		max:      max,
		now:      time.Now,
	}
}

func (rp *RetryProcessor) Run(ctx context.Context) {
	log.Info().Dur("interval", rp.interval).Msg("[RetryProcessor] [Run] starting retry sweep")
	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("[RetryProcessor] [Run] stopped")
			return
		case <-ticker.C:
			rp.Sweep(ctx)
		}
	}
}

// Sweep makes one pass over the failure store.
func (rp *RetryProcessor) Sweep(ctx context.Context) {
	records, err := rp.store.ListFailedTxs()
	if err != nil {
		log.Error().Err(err).Msg("[RetryProcessor] [Sweep] failed to list failure records")
		return
	}
	metrics.FailedTransactions.Set(float64(len(records)))

	for _, ftx := range records {
		if ctx.Err() != nil {
			return
		}
		switch ftx.Status {
		case types.FailedTxCompensated:
			continue
		case types.FailedTxExhausted:
			if err := rp.comp.Compensate(ctx, ftx.Key()); err != nil {
				log.Error().Err(err).
					Str("commandId", ftx.CommandID).
					Msg("[RetryProcessor] [Sweep] compensation attempt failed")
			}
		case types.FailedTxActive:
			// The boundary is checked before the retry, not after, so the
			// counter can never be incremented past its bound.
			if ftx.RetryCount >= ftx.MaxRetries {
				if err := rp.comp.Exhaust(ftx.Key()); err != nil {
					log.Error().Err(err).
						Str("commandId", ftx.CommandID).
						Msg("[RetryProcessor] [Sweep] failed to mark record exhausted")
					continue
				}
				if err := rp.comp.Compensate(ctx, ftx.Key()); err != nil {
					log.Error().Err(err).
						Str("commandId", ftx.CommandID).
						Msg("[RetryProcessor] [Sweep] compensation attempt failed")
				}
				continue
			}
			delay := Backoff(ftx.RetryCount, rp.base, rp.max)
			if rp.now().Sub(ftx.LastAttempt) < delay {
				continue
			}
			log.Info().
				Str("commandId", ftx.CommandID).
				Str("destinationChain", ftx.DestinationChain).
				Int("retryCount", ftx.RetryCount).
				Msg("[RetryProcessor] [Sweep] retrying failed command")
			// Stored commands are replayed as-is, never re-derived from the
			// source chain.
			if err := rp.executor.Execute(ctx, ftx.CommandID, ftx.DestinationChain, ftx.Commands, &ftx.SourceEvent); err != nil {
				log.Warn().Err(err).
					Str("commandId", ftx.CommandID).
					Msg("[RetryProcessor] [Sweep] retry attempt failed")
			}
		}
	}
}
