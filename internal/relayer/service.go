package relayer

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/openbridge/gmp-relayer/config"
	"github.com/openbridge/gmp-relayer/pkg/api"
	"github.com/openbridge/gmp-relayer/pkg/events"
	"github.com/openbridge/gmp-relayer/pkg/store"
	"github.com/openbridge/gmp-relayer/pkg/types"
)

// Service wires the relay engine together: one monitor per chain feeding the
// event bus, one executor loop per destination chain, a periodic retry sweep
// and the compensation engine behind it.
type Service struct {
	cfg      *config.Config
	store    store.Store
	bus      *events.EventBus
	clients  map[string]ChainClient
	executor *Executor
	retry    *RetryProcessor
	comp     *CompensationEngine
	monitors []*Monitor

	cancel     context.CancelFunc
	wgPollers  sync.WaitGroup
	wgHandlers sync.WaitGroup
}

func NewService(cfg *config.Config, st store.Store, bus *events.EventBus, chainClients []ChainClient) (*Service, error) {
	if len(chainClients) == 0 {
		return nil, fmt.Errorf("at least one chain client is required")
	}
	clients := make(map[string]ChainClient, len(chainClients))
	for _, client := range chainClients {
		clients[client.Name()] = client
	}

	locks := newKeyedMutex()
	executor := NewExecutor(clients, st, cfg.Relayer.MaxRetries, locks)
	comp := NewCompensationEngine(clients, st, locks)
	retry := NewRetryProcessor(st, executor, comp,
		cfg.Relayer.RetryInterval, cfg.Relayer.BackoffBase, cfg.Relayer.BackoffMax)

	var monitors []*Monitor
	for i := range cfg.Chains {
		client, ok := clients[cfg.Chains[i].Name]
		if !ok {
			continue
		}
		monitors = append(monitors, NewMonitor(client, st, bus, &cfg.Chains[i], cfg.Relayer.SafetyMargin))
	}

	return &Service{
		cfg:      cfg,
		store:    st,
		bus:      bus,
		clients:  clients,
		executor: executor,
		retry:    retry,
		comp:     comp,
		monitors: monitors,
	}, nil
}

// Start launches every long-running loop. Executor loops subscribe before
// any monitor starts publishing so no destination is missing its receiver.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.checkWhitelisted(ctx)

	for name := range s.clients {
		ch := s.bus.Subscribe(name)
		s.wgHandlers.Add(1)
		go s.runExecutorLoop(ctx, name, ch)
	}
	for _, monitor := range s.monitors {
		s.wgPollers.Add(1)
		go func(m *Monitor) {
			defer s.wgPollers.Done()
			m.Run(ctx)
		}(monitor)
	}
	s.wgPollers.Add(1)
	go func() {
		defer s.wgPollers.Done()
		s.retry.Run(ctx)
	}()
	return nil
}

func (s *Service) runExecutorLoop(ctx context.Context, chain string, ch <-chan *types.RelayEvent) {
	defer s.wgHandlers.Done()
	for ev := range ch {
		// In-flight submissions are allowed to complete during shutdown; an
		// aborted submission would leave the on-chain state unknown.
		if err := s.executor.HandleEvent(context.WithoutCancel(ctx), ev); err != nil {
			log.Error().Err(err).
				Str("destinationChain", chain).
				Str("eventId", ev.EventID()).
				Msg("[Relayer] [runExecutorLoop] failed to handle event")
		}
	}
}

func (s *Service) checkWhitelisted(ctx context.Context) {
	for name, client := range s.clients {
		whitelisted, err := client.IsWhitelistedRelayer(ctx)
		if err != nil {
			log.Warn().Err(err).Str("chain", name).
				Msg("[Relayer] [checkWhitelisted] could not verify relayer whitelist")
			continue
		}
		if !whitelisted {
			log.Warn().Str("chain", name).
				Msg("[Relayer] [checkWhitelisted] relayer is not whitelisted on gateway, executes will revert")
		}
	}
}

// Stop shuts the engine down in dependency order: monitors first so nothing
// publishes into a closing bus, then the executor loops drain, then the store
// closes.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wgPollers.Wait()
	s.bus.Close()
	s.wgHandlers.Wait()
	if err := s.store.Close(); err != nil {
		log.Error().Err(err).Msg("[Relayer] [Stop] failed to close store")
	}
	log.Info().Msg("[Relayer] [Stop] relayer stopped")
}

// Health implements api.StatusReporter.
func (s *Service) Health(ctx context.Context) *api.HealthStatus {
	health := &api.HealthStatus{
		Status: "ok",
		Chains: make(map[string]api.ChainStatus, len(s.clients)),
	}
	for name, client := range s.clients {
		status := api.ChainStatus{}
		head, err := client.BlockNumber(ctx)
		if err == nil {
			status.Connected = true
			status.Head = head
		}
		if balance, err := client.RelayerBalance(ctx); err == nil && balance != nil {
			status.RelayerBalance = balance.String()
		}
		health.Chains[name] = status
	}
	if count, err := s.store.ProcessedCount(); err == nil {
		health.ProcessedEvents = count
	}
	records, err := s.store.ListFailedTxs()
	if err != nil {
		health.Status = "degraded"
		return health
	}
	for _, ftx := range records {
		switch ftx.Status {
		case types.FailedTxExhausted:
			health.ExhaustedCommands++
		case types.FailedTxActive:
			health.FailedTransactions++
		}
	}
	// Exhausted records are stuck until compensated, transient backlog is not.
	if health.ExhaustedCommands > 0 {
		health.Status = "degraded"
	}
	return health
}

// TriggerCompensation implements api.StatusReporter.
func (s *Service) TriggerCompensation(ctx context.Context, commandID string) error {
	return s.comp.ManualCompensate(ctx, commandID)
}
