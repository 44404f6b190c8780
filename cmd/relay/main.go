package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/blackmichael/live-comments/internal/bridge"
	"github.com/blackmichael/live-comments/internal/config"
	"github.com/blackmichael/live-comments/internal/httpserver"
	"github.com/blackmichael/live-comments/internal/hub"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	overflow, err := hub.ParseOverflowPolicy(cfg.Overflow)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	h := hub.New(hub.Options{
		SendBuffer:   cfg.SendBuffer,
		Overflow:     overflow,
		PublishRPS:   cfg.PublishRPS,
		PublishBurst: cfg.PublishBurst,
	}, hub.NewMetrics(reg), logger)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if cfg.RedisURL != "" {
		br, err := bridge.Connect(ctx, cfg.RedisURL, bridge.DefaultChannel, logger)
		if err != nil {
			return fmt.Errorf("connect bridge: %w", err)
		}
		defer br.Close()

		if err := br.Start(ctx, h); err != nil {
			return fmt.Errorf("start bridge: %w", err)
		}
		h.SetForwarder(br)
	}

	server := httpserver.NewServer(cfg.Addr(), h, reg, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("relay started",
		"port", cfg.Port,
		"overflow", overflow,
		"send_buffer", cfg.SendBuffer,
		"bridge", cfg.RedisURL != "",
	)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
