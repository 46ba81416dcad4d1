package relayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"github.com/openbridge/gmp-relayer/pkg/contracts/gateway"
	"github.com/openbridge/gmp-relayer/pkg/metrics"
	"github.com/openbridge/gmp-relayer/pkg/store"
	"github.com/openbridge/gmp-relayer/pkg/types"
)

// CompensationEngine closes the saga for exhausted records: token-bearing
// events are refunded on their source chain, everything else is closed as-is.
// The refund is a new command with its own single-use id, never a retry of
// the failed destination command.
type CompensationEngine struct {
	clients map[string]ChainClient
	store   store.Store
	locks   *keyedMutex
}

func NewCompensationEngine(clients map[string]ChainClient, st store.Store, locks *keyedMutex) *CompensationEngine {
	return &CompensationEngine{clients: clients, store: st, locks: locks}
}

// RefundCommandID derives the id of the compensating mint. Distinct from the
// original command id, yet deterministic, so a crashed compensation can be
// resumed without double-minting: the source gateway's isCommandExecuted
// check recognizes a refund that already landed.
func RefundCommandID(commandID string) string {
	return hexutil.Encode(crypto.Keccak256(common.HexToHash(commandID).Bytes(), []byte("compensation")))
}

// Exhaust marks an active record compensation-eligible. No-op for records
// already past Active; the transition happens at most once.
func (ce *CompensationEngine) Exhaust(key string) error {
	unlock := ce.locks.Lock(key)
	defer unlock()
	ftx, err := ce.store.GetFailedTx(key)
	if errors.Is(err, store.ErrNotFound) {
		// A concurrent retry delivered the command and removed the record.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read failure record %s: %w", key, err)
	}
	if ftx.Status != types.FailedTxActive {
		return nil
	}
	ftx.Status = types.FailedTxExhausted
	if err := ce.store.PutFailedTx(ftx); err != nil {
		return fmt.Errorf("failed to persist exhausted record %s: %w", key, err)
	}
	return nil
}

// Compensate issues the source-chain refund for an exhausted record and
// marks it Compensated. Safe to call repeatedly and concurrently: the
// per-key lock plus the persisted status make the transition happen once.
func (ce *CompensationEngine) Compensate(ctx context.Context, key string) error {
	unlock := ce.locks.Lock(key)
	defer unlock()

	ftx, err := ce.store.GetFailedTx(key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read failure record %s: %w", key, err)
	}
	switch ftx.Status {
	case types.FailedTxCompensated:
		return nil
	case types.FailedTxActive:
		return fmt.Errorf("record %s has retries remaining", key)
	}

	ev := &ftx.SourceEvent
	if !ev.HasToken() {
		// Nothing to refund for a plain contract call; close the saga.
		ftx.Status = types.FailedTxCompensated
		if err := ce.store.PutFailedTx(ftx); err != nil {
			return fmt.Errorf("failed to persist compensated record %s: %w", key, err)
		}
		log.Info().
			Str("commandId", ftx.CommandID).
			Msg("[CompensationEngine] [Compensate] no token leg, record closed without refund")
		return nil
	}

	client, ok := ce.clients[ev.SourceChain]
	if !ok {
		return fmt.Errorf("source chain %s is not configured, cannot refund %s", ev.SourceChain, ftx.CommandID)
	}

	refundID := RefundCommandID(ftx.CommandID)
	executed, err := client.IsCommandExecuted(ctx, refundID)
	if err != nil {
		return fmt.Errorf("failed to check refund %s on %s: %w", refundID, ev.SourceChain, err)
	}
	if !executed {
		data, err := gateway.EncodeMintToken(ev.TokenSymbol, ev.Sender, ev.Amount)
		if err != nil {
			return fmt.Errorf("failed to encode refund for %s: %w", ftx.CommandID, err)
		}
		cmds := []types.Command{{CommandType: types.CommandMintToken, Data: data}}
		txHash, err := client.ExecuteCommands(ctx, refundID, cmds)
		if err != nil {
			// Record stays Exhausted; the next sweep resumes the refund.
			return fmt.Errorf("failed to submit refund %s on %s: %w", refundID, ev.SourceChain, err)
		}
		log.Info().
			Str("commandId", ftx.CommandID).
			Str("refundId", refundID).
			Str("sourceChain", ev.SourceChain).
			Str("sender", ev.Sender).
			Str("amount", ev.Amount.String()).
			Str("txHash", txHash).
			Msg("[CompensationEngine] [Compensate] refund submitted to source chain")
		metrics.Compensations.WithLabelValues(ev.SourceChain).Inc()
	}

	ftx.Status = types.FailedTxCompensated
	if err := ce.store.PutFailedTx(ftx); err != nil {
		return fmt.Errorf("failed to persist compensated record %s: %w", key, err)
	}
	return nil
}

// ManualCompensate lets an operator force compensation for a command id,
// regardless of the automatic schedule. Idempotent: a record that is already
// compensated is left alone.
func (ce *CompensationEngine) ManualCompensate(ctx context.Context, commandID string) error {
	records, err := ce.store.ListFailedTxs()
	if err != nil {
		return fmt.Errorf("failed to list failure records: %w", err)
	}
	for _, ftx := range records {
		if ftx.CommandID != commandID {
			continue
		}
		if ftx.Status == types.FailedTxActive {
			if err := ce.Exhaust(ftx.Key()); err != nil {
				return err
			}
		}
		return ce.Compensate(ctx, ftx.Key())
	}
	return fmt.Errorf("no failure record for command %s: %w", commandID, store.ErrNotFound)
}
