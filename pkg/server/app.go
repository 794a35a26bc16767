// Package server owns the application lifecycle: it starts the queue
// workers, the feed collector, the Kafka consumer and the HTTP server,
// then tears them down in dependency order on SIGINT or SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"SeriesPrep/internal/usecase"
	pkgch "SeriesPrep/pkg/clickhouse"
	"SeriesPrep/pkg/config"
	xhttp "SeriesPrep/pkg/http"
	pkgkafka "SeriesPrep/pkg/kafka"
	applogger "SeriesPrep/pkg/logger"
	pkgqueue "SeriesPrep/pkg/queue"
)

// App wires the long-running services together.
type App struct {
	cfg         *config.Config
	logger      *applogger.Logger
	collector   *usecase.PointCollector
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	chClient    *pkgch.Client
	queue       *pkgqueue.RedisQueue
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	PointProc   *usecase.PointProcessor
}

// New creates the App. Optional services may be nil; Run skips them.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	collector *usecase.PointCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	queue *pkgqueue.RedisQueue,
) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		chClient:  chClient,
		queue:     queue,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// log returns the injected logger, or a console fallback so lifecycle
// messages are never lost.
func (a *App) log() *applogger.Logger {
	if a.logger != nil {
		return a.logger
	}
	l, _ := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	return l
}

// Run starts every configured service and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.log()

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
	}
	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
		xhttp.WithMetricsPath(metricsPath),
	)

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return fmt.Errorf("start queue: %w", err)
		}
		l.Info("queue workers started", applogger.Int("workers", a.cfg.Queue.Workers))
	}

	if a.collector != nil && a.cfg.Feed.WebSocketURL != "" {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				l.Error("collector error", applogger.Error(err))
			}
		}()
		l.Info("collector started", applogger.Strings("series", a.cfg.Feed.Series))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx, l)
}

// shutdown stops services in dependency order: producers of work first,
// then the consumers and storage they feed.
func (a *App) shutdown(ctx context.Context, l *applogger.Logger) error {
	l.Info("shutting down")

	var errs []error
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("collector: %w", err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("queue: %w", err))
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}

	// Producer and storage close last: the consumer drain above may still
	// flush batches through them.
	if a.PointProc != nil {
		a.PointProc.Close()
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		l.Warn("shutdown finished with errors", applogger.Error(err))
		return err
	}
	l.Info("shutdown complete")
	return nil
}
