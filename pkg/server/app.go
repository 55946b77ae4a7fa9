package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	domrepo "MarketPull/internal/domain/repository"
	"MarketPull/internal/middleware"
	"MarketPull/internal/service/ratelimit"
	"MarketPull/internal/usecase"
	"MarketPull/pkg/config"
	xhttp "MarketPull/pkg/http"
	pkgkafka "MarketPull/pkg/kafka"
	applogger "MarketPull/pkg/logger"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterMaxIdle       = 15 * time.Minute
)

// PollLoop is one source's poll runner with the pipeline it announces through.
type PollLoop struct {
	Runner   *usecase.PollRunner
	Pipeline *middleware.AnnouncePipeline
}

// Components are the long-running parts the App starts and stops.
type Components struct {
	HTTPServer *xhttp.Server
	Registry   *usecase.QueryRegistry
	Scheduler  *usecase.Scheduler
	Loops      []PollLoop
	Archive    domrepo.ListingArchive
	Consumer   *pkgkafka.Consumer
	Commands   pkgkafka.MessageHandler
	Limiter    *ratelimit.Limiter
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg  *config.Config
	log  *applogger.Logger
	c    Components
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{cfg: cfg, log: log, c: c}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start restores persisted state and launches every component. It returns
// once everything is running.
func (a *App) Start(ctx context.Context) error {
	ctx, a.stop = context.WithCancel(ctx)

	if a.c.Archive != nil {
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := a.c.Archive.Init(initCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("archive init: %w", err)
		}
	}
	if err := a.c.Registry.Load(ctx); err != nil {
		return err
	}
	if err := a.c.Scheduler.Restore(ctx); err != nil {
		return err
	}

	for _, l := range a.c.Loops {
		l.Pipeline.Start(ctx)
		a.wg.Add(1)
		go func(r *usecase.PollRunner) {
			defer a.wg.Done()
			if err := r.Run(ctx); err != nil {
				a.log.Error("poll runner error", applogger.String("source", string(r.Source())), applogger.Error(err))
			}
		}(l.Runner)
	}
	a.log.Info("poll runners started", applogger.Int("count", len(a.c.Loops)))

	if a.c.Consumer != nil && a.c.Commands != nil {
		a.c.Consumer.RegisterHandler(a.c.Commands)
		if err := a.c.Consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.c.Commands.Topic()))
	}

	if a.c.Limiter != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.sweepLimiter(ctx)
		}()
	}

	if a.c.HTTPServer != nil {
		if err := a.c.HTTPServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return err
		}
	}
	return nil
}

func (a *App) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(limiterSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.c.Limiter.Forget(limiterMaxIdle); n > 0 {
				a.log.Debug("rate limit buckets dropped", applogger.Int("count", n))
			}
		}
	}
}

// Shutdown stops the runners first so nothing new is announced, then the
// consumer and the scheduler, then the HTTP server.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")
	if a.stop != nil {
		a.stop()
	}
	a.wg.Wait()

	for _, l := range a.c.Loops {
		l.Pipeline.Stop()
	}

	timeout := 10 * time.Second
	if a.cfg != nil && a.cfg.Server.ShutdownTimeout > 0 {
		timeout = a.cfg.Server.ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if err := a.c.Scheduler.Stop(shutdownCtx); err != nil {
		a.log.Warn("scheduler stop error", applogger.Error(err))
	}
	if a.c.HTTPServer != nil {
		if err := a.c.HTTPServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
