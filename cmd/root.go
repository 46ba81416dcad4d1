package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openbridge/gmp-relayer/config"
	"github.com/openbridge/gmp-relayer/internal/relayer"
	"github.com/openbridge/gmp-relayer/pkg/api"
	"github.com/openbridge/gmp-relayer/pkg/clients/evm"
	"github.com/openbridge/gmp-relayer/pkg/events"
	"github.com/openbridge/gmp-relayer/pkg/store"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "relayer",
		Short: "Cross-chain GMP relayer",
		Run:   run,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) {
	config.LoadEnv()
	config.InitLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	st, err := store.New(&cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state store")
	}

	signer, err := evm.NewSigner(cfg.Relayer.PrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create relayer signer")
	}

	ctx := context.Background()
	evmClients, err := evm.NewEvmClients(ctx, cfg, signer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create chain clients")
	}
	chainClients := make([]relayer.ChainClient, len(evmClients))
	for i, client := range evmClients {
		chainClients[i] = client
	}

	bus := events.NewEventBus(cfg.Relayer.EventBufferSize)
	service, err := relayer.NewService(cfg, st, bus, chainClients)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create relayer service")
	}

	if err := service.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start relayer service")
	}

	apiServer := api.NewServer(cfg.API.Addr, service)
	go apiServer.Start()

	// Wait for interrupt signal to gracefully shutdown the relayer
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down relayer...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shut down api server")
	}
	service.Stop()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath,
		"config",
		"config",
		"Path to the configuration directory",
	)
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}
