package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"BasisPulse/internal/usecase"
	pkgch "BasisPulse/pkg/clickhouse"
	"BasisPulse/pkg/config"
	xhttp "BasisPulse/pkg/http"
	pkgkafka "BasisPulse/pkg/kafka"
	applogger "BasisPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// App encapsulates the entire application lifecycle: it starts the tick
// source, the indicator and aggregation loops, and the HTTP server, then
// tears everything down on SIGINT/SIGTERM.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	collector  *usecase.PriceCollector
	indicators *usecase.IndicatorEngine
	aggregator *usecase.BasisAggregator
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	chClient   *pkgch.Client
	sink       interface{ Close() error }
	httpServer *xhttp.Server
	handlers   []xhttp.Handler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.PriceCollector,
	indicators *usecase.IndicatorEngine,
	aggregator *usecase.BasisAggregator,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:        cfg,
		logger:     log,
		collector:  collector,
		indicators: indicators,
		aggregator: aggregator,
		consumer:   consumer,
		kh:         kh,
		chClient:   chClient,
	}
}

// AddHandler registers an HTTP handler for route mounting.
func (a *App) AddHandler(h xhttp.Handler) { a.handlers = append(a.handlers, h) }

// SetSink lets DI hand over the composite sink for teardown.
func (a *App) SetSink(s interface{ Close() error }) { a.sink = s }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(multiHandler(a.handlers),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Tick source: direct exchange stream, or Kafka when so configured.
	if a.cfg.Feed.Mode == "kafka" && a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.logger.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.logger.Info("kafka tick feed started", applogger.String("topic", a.kh.Topic()))
	} else {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.logger.Error("collector error", applogger.Error(err))
			}
		}()
		a.logger.Info("collector started", applogger.Strings("symbols", a.cfg.Feed.Symbols))
	}

	a.indicators.Start(ctx)
	a.logger.Info("indicator engine started")

	a.aggregator.Start(ctx)
	a.logger.Info("aggregator started", applogger.Strings("assets", a.cfg.Aggregator.Assets))

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	// Stop the tick source (pipeline + stream)
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.logger.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Shutdown HTTP server (subscriber connections close with it)
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	// Close infrastructure clients
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Warn("composite sink close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}

// multiHandler mounts several handlers on one echo instance.
type multiHandler []xhttp.Handler

func (m multiHandler) RegisterRoutes(e *echo.Echo) {
	for _, h := range m {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
}
