// Command traderwatch runs the trader-quality tracking and signal
// pipeline: it wires the store, exchange client, every tracking
// component, the ops HTTP surface, and the scheduler, then blocks until
// an interrupt signal triggers graceful shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"traderwatch/config"
	"traderwatch/httpapi"
	"traderwatch/logger"
	"traderwatch/metrics"
	"traderwatch/scheduler"
	"traderwatch/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		println("config: " + err.Error())
		return 1
	}

	logger.Init(cfg.LogLevel, os.Stderr)
	metrics.Init()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Errorf("store: open failed: %v", err)
		return 1
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(cfg, st)
	api := httpapi.New(st, cfg.JWTSecret)

	errCh := make(chan error, 1)
	go func() {
		if err := api.Run(cfg.HTTPAddr); err != nil {
			errCh <- err
		}
	}()

	go func() {
		select {
		case err := <-errCh:
			logger.Errorf("httpapi: server error: %v", err)
			stop()
		case <-ctx.Done():
		}
	}()

	// Run blocks until ctx is cancelled (interrupt, SIGTERM, or an httpapi
	// failure triggering stop() above) and only returns once every job has
	// finished its in-flight cycle.
	sched.Run(ctx)
	logger.Infof("traderwatch: exiting")
	return 0
}
