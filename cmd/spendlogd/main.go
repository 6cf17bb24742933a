package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spendlog/internal/appstate"
	"spendlog/internal/bus"
	"spendlog/internal/config"
	"spendlog/internal/export"
	"spendlog/internal/log"
	"spendlog/internal/notify"
	"spendlog/internal/services"
	"spendlog/internal/settings"
	"spendlog/internal/storage"
	"spendlog/internal/web"
)

func main() {
	// .env is optional; the environment wins either way.
	_ = godotenv.Load()

	logger := log.New(log.Config{Level: slog.LevelInfo, Component: log.ComponentApp})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("open database", log.FieldError, err, log.FieldPath, cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Optional broker for settings change events.
	var publisher bus.Publisher
	var amqpPub *bus.AMQPPublisher
	if cfg.AMQPURL != "" {
		amqpPub, err = bus.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("connect AMQP", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpPub.Close()
		publisher = amqpPub
		logger.Info("AMQP event publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}
	dispatcher := bus.NewDispatcher(publisher, logger)
	defer dispatcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway := services.NewGateway(repo, cfg.CategoryCacheTTL, logger)
	repo.OnChange(gateway.InvalidateCategoryCache)

	settingsStore := settings.NewStore(ctx, repo.Settings(), dispatcher, logger, cfg.SettingsDebounce)

	scheduler := notify.NewScheduler(settingsStore.Current, notify.LogSink{Logger: logger}, logger)

	state := appstate.New(gateway, settingsStore, logger, cfg.ExpenseWindow)
	state.MergeErrors(scheduler.Errors())
	state.Start(ctx)
	if err := state.LoadInitialData(ctx); err != nil {
		logger.Error("initial data load failed", log.FieldError, err)
	}

	adapter := appstate.NewViewAdapter(state)
	adapter.Watch(ctx)

	go func() {
		if err := scheduler.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("reminder scheduler stopped", log.FieldError, err)
		}
	}()

	// Budget alerts fire once per crossing of the near-limit threshold.
	go func() {
		snapshots := state.Subscribe()
		alerted := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-snapshots:
				if state.NearMonthlyLimit() {
					if !alerted {
						usage, _ := state.MonthlyBudgetUsage()
						scheduler.BudgetAlert(ctx, usage)
						alerted = true
					}
				} else {
					alerted = false
				}
			}
		}
	}()

	exporter := export.NewExporter(cfg.ExportDir, logger)

	srv := web.NewServer(":"+cfg.Port, state, adapter, exporter, logger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", log.FieldError, err)
		}
		if err := settingsStore.Close(shutdownCtx); err != nil {
			logger.Error("settings flush error", log.FieldError, err)
		}
		state.Stop()
		cancel()
	}()

	logger.Info("starting spendlog server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped gracefully")
}
