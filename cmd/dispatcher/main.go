package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NordCoder/Renewly/internal/bootstrap"
	config "github.com/NordCoder/Renewly/internal/config/dispatcher"
	"github.com/NordCoder/Renewly/internal/obs"
	"github.com/NordCoder/Renewly/internal/services/dispatcher"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := bootstrap.Logger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting dispatcher",
		zap.String("env", cfg.App.Env),
		zap.String("ver", cfg.App.Version),
		zap.String("timezone", cfg.Dispatch.Timezone),
		zap.Ints("default_days", cfg.Dispatch.DefaultDays),
	)

	// otel
	otelCloser, err := obs.SetupOTel(ctx, cfg.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// wiring
	app, err := bootstrap.NewDispatcher(ctx, cfg, l)
	if err != nil {
		l.Fatal("bootstrap", zap.Error(err))
	}
	defer func() { _ = app.Close() }()

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, l, cfg.AsLoggerConfig(), app.Probes...)

	srv := dispatcher.NewServer(l, app.Runner, app.DB.Ping, dispatcher.ServerConfig{
		PublicKey:  app.Keys.PublicKey(),
		TokenHash:  cfg.Server.TriggerTokenHash,
		RatePerMin: cfg.Server.TriggerRPM,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	if cfg.Server.TriggerTokenHash == "" {
		l.Info("trigger routes disabled: server.trigger_token_hash is empty")
	}

	httpErrCh := make(chan error, 1)
	go func() {
		l.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		httpErrCh <- httpSrv.ListenAndServe()
	}()

	if app.Outbox != nil {
		app.Outbox.Start(ctx)
	}

	runErrCh := make(chan error, 1)
	if cfg.Dispatch.Enable {
		go func() { runErrCh <- app.Runner.Run(ctx) }()
		l.Info("dispatch loop started", zap.Duration("tick", cfg.Dispatch.Tick))
	}

	// loop
	select {
	case <-ctx.Done():
		l.Info("shutdown signal")
	case err = <-runErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	case err = <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http serve", zap.Error(err))
		}
	}
	stop()

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shCtx)
	_ = ms.Shutdown(shCtx)
	if app.Outbox != nil {
		app.Outbox.Wait()
	}
	l.Info("bye")
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/dispatcher.yaml"
}
