// Package main provides the HTTP API server for the chat backend.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jnst/chat-backend/internal/app"
	"github.com/jnst/chat-backend/internal/config"
	"github.com/jnst/chat-backend/internal/logger"
	"github.com/jnst/chat-backend/internal/migrations"
	"github.com/jnst/chat-backend/internal/repository"
	"github.com/jnst/chat-backend/internal/service"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	exitCode          = 1
)

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
		slog.Error("api server failed", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// スキーマ適用
	if err := migrations.Up(cfg.DatabaseURL); err != nil {
		return err
	}

	// 接続初期化
	res, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	// 依存関係注入
	convRepo := repository.NewConversationRepositoryImpl(res.Pool)
	msgRepo := repository.NewMessageRepositoryImpl(res.Pool)
	outboxRepo := repository.NewOutboxRepositoryImpl(res.Pool)
	transactionMgr := repository.NewTransactionManagerImpl(res.Pool)

	server := NewAPIServer(
		service.NewConversationServiceImpl(convRepo, outboxRepo, transactionMgr),
		service.NewMessageServiceImpl(convRepo, msgRepo, outboxRepo, transactionMgr),
		service.NewViewServiceImpl(res.Store),
		outboxRepo,
	)

	// アウトボックス処理をバックグラウンドで起動
	processor, err := res.NewProcessor(cfg, log.With(slog.String("component", "outbox")))
	if err != nil {
		return err
	}

	processorDone := make(chan error, 1)

	go func() { processorDone <- processor.Run(ctx) }()

	// サーバー起動
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serverErr := make(chan error, 1)

	go func() {
		log.Info("starting API server", slog.String("service", "api"), slog.String("port", cfg.Port))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping api")
	case err := <-serverErr:
		stop()
		<-processorDone

		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return <-processorDone
}
