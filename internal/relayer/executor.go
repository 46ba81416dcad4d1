package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openbridge/gmp-relayer/pkg/metrics"
	"github.com/openbridge/gmp-relayer/pkg/store"
	"github.com/openbridge/gmp-relayer/pkg/types"
)

// Executor submits commands to destination gateways with the destination-side
// idempotency check before and after local bookkeeping.
type Executor struct {
	clients    map[string]ChainClient
	store      store.Store
	maxRetries int
	locks      *keyedMutex
	now        func() time.Time
}

func NewExecutor(clients map[string]ChainClient, st store.Store, maxRetries int, locks *keyedMutex) *Executor {
	return &Executor{
		clients:    clients,
		store:      st,
		maxRetries: maxRetries,
		locks:      locks,
		now:        time.Now,
	}
}

// HandleEvent runs the observe → translate → execute pipeline for one event.
// Already-processed events and events for unconfigured destinations are
// dropped without entering the retry path.
func (ex *Executor) HandleEvent(ctx context.Context, ev *types.RelayEvent) error {
	eventID := ev.EventID()
	processed, err := ex.store.IsEventProcessed(eventID)
	if err != nil {
		return fmt.Errorf("failed to check processed set: %w", err)
	}
	if processed {
		metrics.EventsSkipped.WithLabelValues(ev.SourceChain, "already_processed").Inc()
		log.Debug().
			Str("eventId", eventID).
			Str("sourceChain", ev.SourceChain).
			Msg("[Executor] [HandleEvent] event already handled")
		return nil
	}
	if _, ok := ex.clients[ev.DestinationChain]; !ok {
		metrics.EventsSkipped.WithLabelValues(ev.SourceChain, "unsupported_destination").Inc()
		log.Warn().
			Str("eventId", eventID).
			Str("destinationChain", ev.DestinationChain).
			Msg("[Executor] [HandleEvent] destination chain is not configured, dropping event")
		return nil
	}

	cmd, err := TranslateEvent(ev)
	if err != nil {
		return err
	}
	return ex.Execute(ctx, CommandID(ev), ev.DestinationChain, []types.Command{cmd}, ev)
}

// Execute submits one command batch. Failures are recorded in the failure
// store before the error is returned; success marks the source event
// processed and clears any failure record.
func (ex *Executor) Execute(ctx context.Context, commandID, destinationChain string, cmds []types.Command, sourceEvent *types.RelayEvent) error {
	// Same lock key as the compensation engine, so a retry and a
	// compensation of the same record always serialize.
	unlock := ex.locks.Lock(types.FailedTxKey(commandID, destinationChain))
	defer unlock()

	client, ok := ex.clients[destinationChain]
	if !ok {
		return fmt.Errorf("destination chain %s is not configured", destinationChain)
	}

	executed, err := client.IsCommandExecuted(ctx, commandID)
	if err != nil {
		if ferr := ex.recordFailure(commandID, destinationChain, cmds, sourceEvent, err); ferr != nil {
			return ferr
		}
		return err
	}
	if executed {
		// A prior attempt landed even though we have no local record of it.
		log.Info().
			Str("commandId", commandID).
			Str("destinationChain", destinationChain).
			Msg("[Executor] [Execute] command already executed on destination, recording success")
		return ex.markSuccess(commandID, destinationChain, sourceEvent)
	}

	txHash, err := client.ExecuteCommands(ctx, commandID, cmds)
	if err != nil {
		metrics.CommandFailures.WithLabelValues(destinationChain).Inc()
		log.Error().Err(err).
			Str("commandId", commandID).
			Str("destinationChain", destinationChain).
			Msg("[Executor] [Execute] command execution failed")
		if ferr := ex.recordFailure(commandID, destinationChain, cmds, sourceEvent, err); ferr != nil {
			return ferr
		}
		return err
	}

	metrics.CommandsExecuted.WithLabelValues(destinationChain).Inc()
	log.Info().
		Str("commandId", commandID).
		Str("destinationChain", destinationChain).
		Str("txHash", txHash).
		Msg("[Executor] [Execute] command executed")
	return ex.markSuccess(commandID, destinationChain, sourceEvent)
}

// markSuccess persists the processed mark before clearing the failure
// record. A crash in between leaves a stale failure record whose next
// retry is short-circuited by the destination idempotency check.
func (ex *Executor) markSuccess(commandID, destinationChain string, sourceEvent *types.RelayEvent) error {
	if err := ex.store.MarkEventProcessed(sourceEvent.EventID()); err != nil {
		return fmt.Errorf("failed to persist processed event %s: %w", sourceEvent.EventID(), err)
	}
	if err := ex.store.DeleteFailedTx(types.FailedTxKey(commandID, destinationChain)); err != nil {
		return fmt.Errorf("failed to clear failure record for %s: %w", commandID, err)
	}
	return nil
}

// recordFailure upserts the FailedTransaction for this command. The record
// turns Exhausted the moment the retry counter reaches its bound, never past
// it.
func (ex *Executor) recordFailure(commandID, destinationChain string, cmds []types.Command, sourceEvent *types.RelayEvent, cause error) error {
	key := types.FailedTxKey(commandID, destinationChain)
	ftx, err := ex.store.GetFailedTx(key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		ftx = &types.FailedTransaction{
			CommandID:        commandID,
			DestinationChain: destinationChain,
			Commands:         cmds,
			SourceEvent:      *sourceEvent,
			RetryCount:       1,
			MaxRetries:       ex.maxRetries,
			Status:           types.FailedTxActive,
		}
	case err != nil:
		return fmt.Errorf("failed to read failure record %s: %w", key, err)
	default:
		if ftx.RetryCount < ftx.MaxRetries {
			ftx.RetryCount++
		}
	}
	ftx.Error = cause.Error()
	ftx.LastAttempt = ex.now()
	if ftx.Status == types.FailedTxActive && ftx.RetryCount >= ftx.MaxRetries {
		ftx.Status = types.FailedTxExhausted
		log.Warn().
			Str("commandId", commandID).
			Str("destinationChain", destinationChain).
			Int("retryCount", ftx.RetryCount).
			Msg("[Executor] [recordFailure] retries exhausted, eligible for compensation")
	}
	if err := ex.store.PutFailedTx(ftx); err != nil {
		return fmt.Errorf("failed to persist failure record %s: %w", key, err)
	}
	return nil
}
