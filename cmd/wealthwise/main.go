package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"wealthwise/internal/cli"
	apphttp "wealthwise/internal/http"
	"wealthwise/internal/log"
)

func main() {
	cli.LoadEnvFile()
	slogger := cli.SetupLogger()

	slogger.Info("Starting wealthwise server")

	cfg := cli.LoadAndValidateConfig(slogger)
	store := cli.OpenStore(slogger, cfg)

	logger := log.New(log.DefaultConfig())
	srv := apphttp.NewServer(cfg, store, logger)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 15 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(slogger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slogger.Error("Server shutdown error", "error", err)
		}
		if err := store.Close(shutdownCtx); err != nil {
			slogger.Error("Store close error", "error", err)
		}
	})

	slogger.Info("Listening", "port", cfg.Port, "database", cfg.MongoDB)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slogger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	<-done
	slogger.Info("Server stopped gracefully")
}
