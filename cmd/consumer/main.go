// Package main provides the notification consumer that tails the Redis notification stream.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/rueidis"

	"github.com/jnst/chat-backend/internal/config"
	"github.com/jnst/chat-backend/internal/logger"
	"github.com/jnst/chat-backend/internal/notify"
)

const exitCode = 1

// NotificationHandler forwards notifications to connected clients.
type NotificationHandler struct {
	seen *recentKeys
}

// NewNotificationHandler creates a new notification handler instance.
func NewNotificationHandler() *NotificationHandler {
	return &NotificationHandler{seen: newRecentKeys(recentKeyCapacity)}
}

// Handle processes one notification. Redelivered notifications are skipped.
func (h *NotificationHandler) Handle(_ context.Context, n notify.Notification) error {
	if !h.seen.add(n.Key) {
		slog.Debug("skipping duplicate notification", slog.String("key", n.Key))
		return nil
	}

	// ここでWebSocketゲートウェイに配信する
	// 今回はログ出力のみ
	slog.Info("push notification",
		slog.String("kind", n.Kind),
		slog.String("topic", n.Topic()),
		slog.String("message_id", n.MessageID.String()),
		slog.String("actor_id", n.ActorID.String()),
	)

	return nil
}

func setupRedisClient(cfg *config.Config) (rueidis.Client, error) {
	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		return nil, err
	}

	return redisClient, nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	// ログ設定
	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(loggerInstance)

	if err := run(cfg, loggerInstance); err != nil {
		slog.Error("consumer failed", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	redisClient, err := setupRedisClient(cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := NewNotificationHandler()
	consumer := notify.NewStreamConsumer(redisClient,
		cfg.NotifyStream, cfg.ConsumerGroup, cfg.ConsumerName, handler.Handle,
		notify.WithConsumerLogger(log),
	)

	if err := consumer.EnsureGroup(ctx); err != nil {
		return err
	}

	log.Info("starting notification consumer",
		slog.String("service", "consumer"),
		slog.String("stream", cfg.NotifyStream),
		slog.String("group", cfg.ConsumerGroup),
		slog.String("consumer", cfg.ConsumerName),
	)

	return consumer.Run(ctx)
}
