// Package main provides the standalone outbox processor that projects events into the read store.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jnst/chat-backend/internal/app"
	"github.com/jnst/chat-backend/internal/config"
	"github.com/jnst/chat-backend/internal/logger"
)

const exitCode = 1

func main() {
	// 環境変数読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	// ログ設定
	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(loggerInstance)

	if err := run(cfg, loggerInstance); err != nil {
		slog.Error("outbox processor failed", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 接続初期化
	res, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	processor, err := res.NewProcessor(cfg, log)
	if err != nil {
		return err
	}

	log.Info("starting outbox processor",
		slog.String("service", "processor"),
		slog.String("read_store", cfg.ReadStore),
		slog.String("notify", cfg.NotifyBackend),
		slog.Bool("leader_election", cfg.Outbox.LeaderElection),
	)

	// キャンセルされるまでポーリング
	return processor.Run(ctx)
}
