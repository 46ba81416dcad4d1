package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/openbridge/gmp-relayer/pkg/store"
)

// ChainStatus is one chain's connectivity snapshot.
type ChainStatus struct {
	Connected      bool   `json:"connected"`
	Head           uint64 `json:"head,omitempty"`
	RelayerBalance string `json:"relayerBalance,omitempty"`
}

// HealthStatus is the /health response. Status is "degraded" whenever any
// failure record has exhausted its retries and awaits compensation.
type HealthStatus struct {
	Status             string                 `json:"status"`
	Chains             map[string]ChainStatus `json:"chains"`
	ProcessedEvents    int                    `json:"processedEvents"`
	FailedTransactions int                    `json:"failedTransactions"`
	ExhaustedCommands  int                    `json:"exhaustedCommands"`
}

// StatusReporter is the relayer surface the ops server exposes.
type StatusReporter interface {
	Health(ctx context.Context) *HealthStatus
	TriggerCompensation(ctx context.Context, commandID string) error
}

// Server is the thin operational HTTP surface: health, metrics and the
// manual compensation trigger.
type Server struct {
	echo     *echo.Echo
	reporter StatusReporter
	addr     string
}

func NewServer(addr string, reporter StatusReporter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, reporter: reporter, addr: addr}
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.POST("/compensate/:commandId", s.handleCompensate)
	return s
}

func (s *Server) handleHealth(c echo.Context) error {
	health := s.reporter.Health(c.Request().Context())
	code := http.StatusOK
	if health.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, health)
}

func (s *Server) handleCompensate(c echo.Context) error {
	commandID := c.Param("commandId")
	err := s.reporter.TriggerCompensation(c.Request().Context(), commandID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"commandId": commandID, "status": "compensated"})
}

// Start serves until Shutdown is called.
func (s *Server) Start() {
	log.Info().Str("addr", s.addr).Msg("[ApiServer] [Start] serving operational endpoints")
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("[ApiServer] [Start] server stopped unexpectedly")
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
