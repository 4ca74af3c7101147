// Package app wires the delivery pipeline from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/rueidis"

	"github.com/jnst/chat-backend/internal/config"
	"github.com/jnst/chat-backend/internal/event"
	"github.com/jnst/chat-backend/internal/lock"
	"github.com/jnst/chat-backend/internal/notify"
	"github.com/jnst/chat-backend/internal/projection"
	"github.com/jnst/chat-backend/internal/readstore"
	"github.com/jnst/chat-backend/internal/repository"
	"github.com/jnst/chat-backend/internal/service"
)

const closeTimeout = 5 * time.Second

// ReadStore is written by the projections and read by the view service.
type ReadStore interface {
	projection.SyncPort
	projection.Finder
}

// Resources holds the connections a process needs. Close releases them in reverse order.
type Resources struct {
	Pool  *pgxpool.Pool
	Store ReadStore
	Redis rueidis.Client
	Sink  notify.Sink

	closers []func()
}

// Open connects to every backend the configuration selects.
func Open(ctx context.Context, cfg *config.Config) (*Resources, error) {
	res := &Resources{}

	if err := res.open(ctx, cfg); err != nil {
		res.Close()
		return nil, err
	}

	return res, nil
}

func (r *Resources) open(ctx context.Context, cfg *config.Config) error {
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.StartupWait)
	if err != nil {
		return err
	}

	r.Pool = pool
	r.onClose(pool.Close)

	if err := r.openReadStore(ctx, cfg); err != nil {
		return err
	}

	if cfg.NotifyBackend == config.NotifyRedis || cfg.Outbox.LeaderElection {
		client, err := rueidis.NewClient(rueidis.ClientOption{
			InitAddress: []string{cfg.RedisAddr},
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		r.Redis = client
		r.onClose(client.Close)
	}

	return r.openSink(ctx, cfg)
}

func (r *Resources) openReadStore(ctx context.Context, cfg *config.Config) error {
	if cfg.ReadStore == config.ReadStoreMemory {
		r.Store = readstore.NewMemoryStore()
		return nil
	}

	client, err := readstore.ConnectMongo(ctx, cfg.MongoURI, cfg.StartupWait)
	if err != nil {
		return err
	}

	r.Store = readstore.NewMongoStore(client.Database(cfg.MongoDatabase))
	r.onClose(func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()

		if err := client.Disconnect(closeCtx); err != nil {
			slog.Warn("failed to disconnect from mongo", slog.String("error", err.Error()))
		}
	})

	return nil
}

func (r *Resources) openSink(ctx context.Context, cfg *config.Config) error {
	switch cfg.NotifyBackend {
	case config.NotifyRedis:
		r.Sink = notify.NewRedisStreamSink(r.Redis, cfg.NotifyStream)
	case config.NotifyAMQP:
		conn, err := notify.DialAMQP(ctx, cfg.AMQPURL, cfg.StartupWait)
		if err != nil {
			return err
		}

		r.onClose(func() { _ = conn.Close() })

		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to open channel: %w", err)
		}

		r.onClose(func() { _ = ch.Close() })

		sink, err := notify.NewAMQPSink(ch, notify.ExchangeTopic)
		if err != nil {
			return err
		}

		r.Sink = sink
	}

	return nil
}

func (r *Resources) onClose(fn func()) {
	r.closers = append(r.closers, fn)
}

// Close releases every opened connection.
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}

	r.closers = nil
}

// NewPublisher subscribes the projections, and the notification sink when there is one.
func NewPublisher(port projection.SyncPort, sink notify.Sink) *event.Publisher {
	pub := event.NewPublisher()
	projection.Register(pub, port)

	if sink != nil {
		notify.Register(pub, sink)
	}

	return pub
}

// NewProcessor builds the outbox processor on top of the opened resources.
func (r *Resources) NewProcessor(cfg *config.Config, logger *slog.Logger) (service.OutboxProcessor, error) {
	outboxRepo := repository.NewOutboxRepositoryImpl(r.Pool, repository.WithClaimLease(cfg.Outbox.ClaimLease))

	opts := []service.ProcessorOption{service.WithLogger(logger)}
	if cfg.Outbox.LeaderElection {
		opts = append(opts, service.WithLeaderElector(lock.NewRedisLeader(r.Redis, lock.DefaultKey, cfg.Outbox.LeaderTTL)))
	}

	return service.NewOutboxProcessorImpl(
		outboxRepo,
		event.NewDomainRegistry(),
		NewPublisher(r.Store, r.Sink),
		cfg.Outbox,
		opts...,
	)
}
