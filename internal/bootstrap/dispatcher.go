package bootstrap

import (
	"context"
	"fmt"

	config "github.com/NordCoder/Renewly/internal/config/dispatcher"
	"github.com/NordCoder/Renewly/internal/obs"
	"github.com/NordCoder/Renewly/internal/obs/retry"
	"github.com/NordCoder/Renewly/internal/outbox"
	"github.com/NordCoder/Renewly/internal/push"
	kafkax "github.com/NordCoder/Renewly/internal/repository/kafka"
	pg "github.com/NordCoder/Renewly/internal/repository/postgres"
	redisx "github.com/NordCoder/Renewly/internal/repository/redis"
	"github.com/NordCoder/Renewly/internal/services/dispatcher"
	"github.com/NordCoder/Renewly/internal/services/dispatcher/repo"
	"github.com/NordCoder/Renewly/internal/vapid"
	"go.uber.org/zap"
)

// Dispatcher holds the wired dispatcher components shared by the service
// and the CLI.
type Dispatcher struct {
	Cfg    *config.Config
	Log    *zap.Logger
	DB     *pg.DB
	Keys   *vapid.Keys
	UC     *dispatcher.Usecase
	Runner *dispatcher.Runner
	// Outbox is nil unless events are enabled.
	Outbox *outbox.Runner
	// Probes back the readiness endpoint.
	Probes []obs.Probe

	closers []func() error
}

func Logger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg.AsLoggerConfig())
}

// VAPID resolves the configured keys. Any error is a configuration error.
func VAPID(cfg *config.Config) (*vapid.Keys, error) {
	keys, err := vapid.Load(cfg.VAPID.PublicKey, cfg.VAPID.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("vapid keys: %w", err)
	}
	return keys, nil
}

func NewDispatcher(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Dispatcher, error) {
	keys, err := VAPID(cfg)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}

	db, err := pg.NewDB(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	d := &Dispatcher{Cfg: cfg, Log: log, DB: db, Keys: keys}
	d.closers = append(d.closers, func() error { db.Close(); return nil })
	d.Probes = append(d.Probes, db.Ping)

	subs := pg.NewSubscriptionRepo(db)
	ledger := repo.Ledger{
		Tx:         pg.NewTransactor(db, log),
		Subs:       subs,
		Deliveries: pg.NewDeliveryRepo(db),
	}

	if cfg.Events.Enable {
		outboxRepo := pg.NewOutboxRepo(db)
		ledger.Outbox = outboxRepo

		producer := kafkax.NewProducer(kafkax.ProducerConfig{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
			Logger:  log,
		})
		d.closers = append(d.closers, producer.Close)
		handler := outbox.MakeGlobalOutboxHandler(
			kafkax.NewDeliveryEventsKafka(producer),
			retry.PublishPolicy("delivery_events", log),
		)
		d.Outbox = outbox.NewOutboxRunner(log, outboxRepo, handler, outbox.Config{
			Workers:       cfg.Events.Workers,
			BatchSize:     cfg.Events.BatchSize,
			WaitTime:      cfg.Events.WaitTime,
			InProgressTTL: cfg.Events.InProgressTTL,
			Retention:     cfg.Events.Retention,
		})
	}

	sender := push.NewSender(keys, push.Config{
		Subscriber: cfg.VAPID.Subscriber,
		Timeout:    cfg.Push.Timeout,
		TTL:        cfg.Push.TTL,
		Urgency:    cfg.Push.Urgency,
		RatePerSec: cfg.Push.RatePerSec,
		Burst:      cfg.Push.Burst,
		VerifyTLS:  cfg.Push.VerifyTLS,
		Breaker: push.BreakerConfig{
			FailureThreshold: cfg.Push.Breaker.FailureThreshold,
			MaxRequests:      cfg.Push.Breaker.MaxRequests,
			Interval:         cfg.Push.Breaker.Interval,
			Timeout:          cfg.Push.Breaker.Timeout,
		},
	}, log)

	d.UC = dispatcher.NewUC(dispatcher.Deps{
		Prefs:   pg.NewPreferenceRepo(db),
		Clients: pg.NewClientRepo(db),
		Subs:    subs,
		Pusher:  sender,
		Ledger:  ledger,
		Log:     log,
	}, dispatcher.Options{
		DefaultDays:  cfg.Dispatch.DefaultDays,
		Location:     loc,
		FetchWorkers: cfg.Dispatch.FetchWorkers,
		PushWorkers:  cfg.Push.Workers,
		AppURL:       cfg.Dispatch.AppURL,
	})

	var lock dispatcher.Locker
	if cfg.Lock.Enable {
		client := redisx.NewClient(redisx.Config{
			Addr:     cfg.Lock.Addr,
			Password: cfg.Lock.Password,
			DB:       cfg.Lock.DB,
		})
		d.closers = append(d.closers, client.Close)
		if err := redisx.Ping(ctx, client); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		lock = redisx.NewRunLock(client, cfg.Lock.Key, cfg.Lock.TTL, log)
		d.Probes = append(d.Probes, func(ctx context.Context) error { return redisx.Ping(ctx, client) })
	}

	d.Runner = dispatcher.NewRunner(log, d.UC, dispatcher.RunnerConfig{
		Tick:     cfg.Dispatch.Tick,
		Deadline: cfg.Dispatch.RunDeadline,
	}, lock)
	return d, nil
}

// Close releases resources in reverse order of acquisition.
func (d *Dispatcher) Close() error {
	var first error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	d.closers = nil
	return first
}
