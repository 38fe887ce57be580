package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitwall/livetiming/internal/config"
	"github.com/pitwall/livetiming/internal/health"
	"github.com/pitwall/livetiming/internal/metrics"
	"github.com/pitwall/livetiming/internal/relay"
	"github.com/pitwall/livetiming/internal/signalr"
	"github.com/pitwall/livetiming/internal/store"
	"github.com/pitwall/livetiming/internal/transcribe"
)

// buildFunc creates one topic-handler variant from loaded dependencies.
type buildFunc func(cfg *config.Config, st store.Store, m *metrics.Set, logger *zap.Logger) *relay.Handler

func timingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timing",
		Short: "Relay timing data with per-driver lap time coalescing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandler(cmd.Context(), func(cfg *config.Config, st store.Store, m *metrics.Set, logger *zap.Logger) *relay.Handler {
				window := time.Duration(cfg.Debounce.WindowSec) * time.Second
				return relay.NewTimingHandler(st, window, m, logger)
			})
		},
	}
}

func tyreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tyre",
		Short: "Relay tyre stint and current tyre data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandler(cmd.Context(), func(cfg *config.Config, st store.Store, m *metrics.Set, logger *zap.Logger) *relay.Handler {
				return relay.NewTyreHandler(st, m, logger)
			})
		},
	}
}

func telemetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "telemetry",
		Short: "Relay compressed car position and telemetry data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandler(cmd.Context(), func(cfg *config.Config, st store.Store, m *metrics.Set, logger *zap.Logger) *relay.Handler {
				return relay.NewTelemetryHandler(st, m, logger)
			})
		},
	}
}

func pitlaneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pitlane",
		Short: "Relay pit lane and pit stop data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandler(cmd.Context(), func(cfg *config.Config, st store.Store, m *metrics.Set, logger *zap.Logger) *relay.Handler {
				return relay.NewPitLaneHandler(st, m, logger)
			})
		},
	}
}

func radioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "radio",
		Short: "Relay team radio captures with transcription",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandler(cmd.Context(), func(cfg *config.Config, st store.Store, m *metrics.Set, logger *zap.Logger) *relay.Handler {
				transcriber := transcribe.New(cfg.Transcriber, logger)
				downloader := transcribe.NewDownloader(logger)
				return relay.NewRadioHandler(st, cfg.Feed.StaticURL(), downloader, transcriber, m, logger)
			})
		},
	}
}

// runHandler wires one handler variant to the stream client and the
// external store, runs until the context is canceled or the stream
// terminates, then drains outstanding work before closing the store.
func runHandler(ctx context.Context, build buildFunc) error {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	st, err := store.NewNATS(ctx, cfg.NATS, logger)
	if err != nil {
		return err
	}

	handler := build(cfg, st, m, logger)
	logger.Info("handler ready",
		zap.String("handler", handler.Name()),
		zap.Strings("topics", handler.Topics()),
	)

	client := signalr.NewClient(signalr.ClientConfig{
		BaseHTTPURL: cfg.Feed.BaseHTTPURL(),
		BaseWSURL:   cfg.Feed.BaseWSURL(),
		Topics:      handler.Topics(),
		Retry:       cfg.Feed.Retry,
		RetryDelay:  time.Duration(cfg.Feed.RetryDelaySec) * time.Second,
	}, handler, m, logger)

	if cfg.Ops.ListenAddr != "" {
		ops := health.NewServer(handler.Name(), handler.Topics(), client, registry, logger)
		go func() {
			if err := ops.Serve(ctx, cfg.Ops.ListenAddr); err != nil {
				logger.Error("ops server failed", zap.Error(err))
			}
		}()
	}

	runErr := client.Run(ctx)

	handler.Shutdown()
	if err := st.Close(); err != nil {
		logger.Warn("failed to close store", zap.Error(err))
	}

	return runErr
}
