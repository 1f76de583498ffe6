// Package bootstrap assembles the booking engine from configuration. The server and the admin
// CLI share it so both run the same command stack against the same stores.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"roomies/internal/app/commands"
	"roomies/internal/app/lifecycle"
	"roomies/internal/app/locks"
	"roomies/internal/app/middleware"
	"roomies/internal/app/notifications"
	appoutbox "roomies/internal/app/outbox"
	"roomies/internal/app/policies"
	"roomies/internal/app/queries"
	"roomies/internal/app/schedule"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	"roomies/internal/domain/shared/clock"
	"roomies/internal/infra/broker/kafka"
	"roomies/internal/infra/config"
	mongostore "roomies/internal/infra/db/mongo"
	"roomies/internal/infra/db/scylla"
	"roomies/internal/infra/db/sqlstore"
	"roomies/internal/infra/fixtures"
	"roomies/internal/infra/notify"
	"roomies/internal/infra/obs"
	infraoutbox "roomies/internal/infra/outbox"
	boltstore "roomies/internal/infra/storage/bolt"
	"roomies/internal/infra/storage/memory"
	"roomies/internal/infra/storage/s3"
)

// TierStore reads and writes owner commission tiers.
type TierStore interface {
	domaincommissions.OwnerTiers
	fixtures.TierWriter
}

// Runner is a background loop that stops when its context is cancelled.
type Runner struct {
	Name string
	Run  func(ctx context.Context) error
}

// Builder carries what Build needs besides configuration. Zero fields fall back to the
// system clock, the log notifier and slog.Default.
type Builder struct {
	Config   config.Config
	Logger   *slog.Logger
	Clock    clock.Clock
	Notifier policies.Notifier
}

// Runtime is an assembled engine. Runners are not started by Build.
type Runtime struct {
	Config        config.Config
	Logger        *slog.Logger
	Clock         clock.Clock
	UoW           uow.UoWFactory
	Tiers         TierStore
	Service       *lifecycle.Service
	Sweeper       *schedule.CompletionSweeper
	Notifications *notifications.AsyncDispatcher
	Health        obs.HealthHandlers
	Runners       []Runner

	// Events receives every committed booking event, whichever delivery path is configured.
	// Each route is tracked separately, so a failing archive never repeats notifications.
	Events *appoutbox.Fanout

	relay   *memory.Relay
	claims  infraoutbox.ClaimStore
	inbox   kafka.Inbox
	mongo   *mongostore.Client
	closers []func(ctx context.Context) error
}

func (b Builder) Build(ctx context.Context) (rt *Runtime, err error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := b.Clock
	if clk == nil {
		clk = clock.System{}
	}
	rt = &Runtime{
		Config: b.Config,
		Logger: logger,
		Clock:  clk,
		Health: obs.HealthHandlers{Checks: map[string]obs.Check{}},
	}
	defer func() {
		if err != nil {
			rt.Close(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	if err = rt.openStorage(ctx); err != nil {
		return rt, err
	}
	idem, err := rt.openIdempotency(ctx)
	if err != nil {
		return rt, err
	}
	rt.buildService(idem)

	notifier := b.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	rt.Notifications = notifications.NewAsyncDispatcher(notifier, rt.Config.NotifyQueueSize, rt.Config.NotifyWorkers, logger)
	rt.Notifications.Start(ctx)
	rt.Events = appoutbox.NewFanout(rt.deliveries()).
		Add("notifications", notifications.EventHandler{Dispatcher: rt.Notifications, Logger: logger})

	if err = rt.attachArchive(); err != nil {
		return rt, err
	}
	if err = rt.attachTransitionLog(ctx); err != nil {
		return rt, err
	}
	if err = rt.wireDelivery(); err != nil {
		return rt, err
	}

	rt.Sweeper = &schedule.CompletionSweeper{
		UoW:       rt.UoW,
		Completer: rt.Service,
		Clock:     clk,
		Interval:  rt.Config.CompletionSweepInterval,
		Logger:    logger,
	}
	rt.Runners = append(rt.Runners, Runner{Name: "completion-sweeper", Run: rt.Sweeper.Run})
	return rt, nil
}

func (rt *Runtime) openStorage(ctx context.Context) error {
	switch rt.Config.Storage {
	case config.StorageMemory:
		store := memory.NewStore()
		rt.UoW = memory.Factory{Store: store}
		rt.Tiers = memory.Tiers{Store: store}
		rt.relay = &memory.Relay{Store: store, Logger: rt.Logger}
	case config.StorageMongo:
		client, err := rt.mongoClient(ctx)
		if err != nil {
			return err
		}
		if err := client.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongo indexes: %w", err)
		}
		factory := mongostore.NewFactory(client.DB)
		rt.UoW = factory
		rt.Tiers = mongostore.NewTierDirectory(client.DB)
		rt.claims = factory.OutboxStore
		rt.inbox = mongostore.NewInboxStore(client.DB, rt.Config.KafkaGroupID)
	case config.StorageSQL:
		db, err := sqlstore.Open(rt.Config.SQLDriver, rt.Config.SQLDSN, rt.Logger)
		if err != nil {
			return fmt.Errorf("sql connect: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		if err := sqlstore.Migrate(ctx, db); err != nil {
			return fmt.Errorf("sql migrate: %w", err)
		}
		rt.UoW = sqlstore.Factory{DB: db}
		rt.Tiers = sqlstore.TierDirectory{DB: db}
		rt.claims = sqlstore.OutboxStore{DB: db}
		rt.Health.Checks["sql"] = func(ctx context.Context) error { return sqlstore.Ping(ctx, db) }
	default:
		return fmt.Errorf("unsupported storage %q", rt.Config.Storage)
	}
	return nil
}

func (rt *Runtime) mongoClient(ctx context.Context) (*mongostore.Client, error) {
	if rt.mongo != nil {
		return rt.mongo, nil
	}
	client, err := mongostore.New(rt.Config.MongoURI, rt.Config.MongoDB)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	rt.mongo = client
	rt.closers = append(rt.closers, client.Close)
	rt.Health.Checks["mongo"] = client.Ping
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func (rt *Runtime) openIdempotency(ctx context.Context) (middleware.IdempotencyStore, error) {
	switch rt.Config.IdempotencyStore {
	case config.StorageMongo:
		client, err := rt.mongoClient(ctx)
		if err != nil {
			return nil, err
		}
		return mongostore.NewIdempotencyStore(client.DB), nil
	case "bolt":
		store, err := boltstore.Open(rt.Config.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("bolt open: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return store.Close() })
		rt.addPurger("idempotency-purge", store.Purge)
		return store, nil
	default:
		store := memory.NewIdempotencyStore()
		rt.addPurger("idempotency-purge", func(now time.Time) (int, error) { return store.Purge(now), nil })
		return store, nil
	}
}

// addPurger drops expired idempotency records once an hour. Mongo expires them with a TTL index.
func (rt *Runtime) addPurger(name string, purge func(now time.Time) (int, error)) {
	rt.Runners = append(rt.Runners, Runner{Name: name, Run: func(ctx context.Context) error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n, err := purge(rt.Clock.Now())
				if err != nil {
					rt.Logger.Warn("idempotency purge failed", "err", err)
					continue
				}
				if n > 0 {
					rt.Logger.Debug("idempotency records purged", "count", n)
				}
			}
		}
	}})
}

func (rt *Runtime) buildService(idem middleware.IdempotencyStore) {
	cmds, qs := commands.NewInMemoryBus(), queries.NewInMemoryBus()
	lifecycle.Register(cmds, qs, lifecycle.Deps{
		UoW:        rt.UoW,
		Clock:      rt.Clock,
		Tiers:      rt.Tiers,
		BookingFee: rt.Config.BookingFee,
		Encoder:    appoutbox.JSONEventEncoder{IDGenerator: uuid.NewString},
		NewID:      uuid.NewString,
		Logger:     rt.Logger,
	})

	stack := middleware.Stack{
		Logger:         rt.Logger,
		Validator:      middleware.SelfValidator{},
		Locks:          locks.NewKeyed(),
		Idempotency:    idem,
		IdempotencyTTL: rt.Config.IdempotencyTTL,
		RetryBackoff:   rt.Config.RetryBackoff,
		Retryable:      Retryable,
		UoW:            rt.UoW,
	}
	if rt.relay != nil {
		stack.Outbox = rt.relay
	}
	qbus := middleware.ChainQueries(qs, middleware.QueryValidation(middleware.SelfValidator{}))
	rt.Service = lifecycle.NewService(stack.Wrap(cmds), qbus)
}

// Retryable reports whether a command failed on a lost optimistic race and may run again.
func Retryable(err error) bool {
	return errors.Is(err, domainbooking.ErrConcurrentUpdate)
}

func (rt *Runtime) attachArchive() error {
	if rt.Config.S3Endpoint == "" {
		return nil
	}
	client, err := s3.NewClient(s3.Options{
		Endpoint:  rt.Config.S3Endpoint,
		UseSSL:    rt.Config.S3UseSSL,
		AccessKey: rt.Config.S3AccessKey,
		SecretKey: rt.Config.S3SecretKey,
		Bucket:    rt.Config.S3Bucket,
	}, rt.Logger)
	if err != nil {
		return err
	}
	rt.Events.Add("statement-archive", s3.StatementArchiver{Source: rt.Service, Uploader: client, Logger: rt.Logger})
	rt.Health.Checks["s3"] = client.Ping
	return nil
}

func (rt *Runtime) attachTransitionLog(ctx context.Context) error {
	if len(rt.Config.ScyllaHosts) == 0 {
		return nil
	}
	session, err := scylla.NewSession(ctx, scylla.Options{
		Hosts:    rt.Config.ScyllaHosts,
		Keyspace: rt.Config.ScyllaKeyspace,
	}, rt.Logger)
	if err != nil {
		return err
	}
	log := scylla.NewTransitionLog(session, rt.Logger)
	rt.closers = append(rt.closers, func(context.Context) error { log.Close(); return nil })
	rt.Events.Add("transition-log", log)
	rt.Health.Checks["scylla"] = log.Ping
	return nil
}

// deliveries picks where per-route delivery marks live: the Mongo inbox when there is one, an
// in-process ledger otherwise.
func (rt *Runtime) deliveries() appoutbox.Deliveries {
	if rt.inbox != nil {
		return rt.inbox
	}
	return nil
}

// wireDelivery connects committed events to Events. The memory store relays in-process from
// its own runner; durable stores are drained by the outbox worker, through Kafka when brokers
// are configured and straight to the handlers otherwise.
func (rt *Runtime) wireDelivery() error {
	if rt.relay != nil {
		rt.relay.Handler = rt.Events
		rt.relay.RetryInterval = rt.Config.OutboxPollInterval
		rt.Runners = append(rt.Runners, Runner{Name: "outbox-relay", Run: rt.relay.Run})
		return nil
	}

	var producer infraoutbox.Producer = infraoutbox.HandlerProducer{Handler: rt.Events}
	if brokers := rt.Config.KafkaBrokers; len(brokers) > 0 {
		kp, err := kafka.NewProducer(brokers, nil)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return kp.Close() })
		producer = kp

		consumer, err := kafka.NewConsumer(brokers, rt.Config.KafkaGroupID, nil, kafka.EventDispatcher{
			Inbox:   rt.inbox,
			Handler: rt.Events,
			Logger:  rt.Logger,
		})
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return consumer.Close() })
		topics := []string{infraoutbox.TopicFor(rt.Config.KafkaTopicPrefix, domainbooking.EventNameCreated)}
		rt.Runners = append(rt.Runners, Runner{Name: "kafka-consumer", Run: func(ctx context.Context) error {
			return consumer.Run(ctx, topics)
		}})
	}

	worker := &infraoutbox.Worker{
		Store:       rt.claims,
		Producer:    producer,
		Interval:    rt.Config.OutboxPollInterval,
		TopicPrefix: rt.Config.KafkaTopicPrefix,
		Logger:      rt.Logger,
		Now:         rt.Clock.Now,
	}
	rt.Runners = append(rt.Runners, Runner{Name: "outbox-worker", Run: worker.Run})
	return nil
}

// Seed loads a fixtures file into the configured stores.
func (rt *Runtime) Seed(ctx context.Context, path string) (fixtures.Catalog, error) {
	catalog, err := fixtures.Load(path)
	if err != nil {
		return fixtures.Catalog{}, err
	}
	if err := fixtures.Seed(ctx, rt.UoW, rt.Tiers, catalog); err != nil {
		return fixtures.Catalog{}, err
	}
	rt.Logger.Info("fixtures loaded", "path", path, "rooms", len(catalog.Rooms), "tiers", len(catalog.Tiers))
	return catalog, nil
}

// Close relays what is still pending, drains queued notifications and releases connections in
// reverse order of opening.
func (rt *Runtime) Close(ctx context.Context) {
	if rt.relay != nil && rt.relay.Handler != nil {
		if err := rt.relay.Drain(ctx); err != nil {
			rt.Logger.Warn("events left undelivered at shutdown", "pending", rt.relay.Pending(), "err", err)
		}
	}
	if rt.Notifications != nil {
		rt.Notifications.Close()
	}
	for _, closeFn := range slices.Backward(rt.closers) {
		if err := closeFn(ctx); err != nil {
			rt.Logger.Warn("shutdown step failed", "err", err)
		}
	}
	rt.closers = nil
}
