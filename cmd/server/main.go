package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	accountservice "memberships/internal/account/service"
	"memberships/internal/draw"
	drawmetrics "memberships/internal/draw/metrics"
	"memberships/internal/event/seed"
	"memberships/internal/identity"
	lotteryhandler "memberships/internal/lottery/handler"
	lotteryservice "memberships/internal/lottery/service"
	"memberships/internal/notify/mailer"
	"memberships/internal/notify/outbox"
	"memberships/internal/platform/config"
	"memberships/internal/platform/httpserver"
	"memberships/internal/platform/kafka"
	"memberships/internal/platform/kafka/producer"
	"memberships/internal/platform/logger"
	"memberships/internal/platform/metrics"
	platformredis "memberships/internal/platform/redis"
	questionhandler "memberships/internal/questionnaire/handler"
	questionservice "memberships/internal/questionnaire/service"
	"memberships/internal/ticketing/gateway"
	ticketingmetrics "memberships/internal/ticketing/metrics"
	"memberships/internal/ticketing/pretix"
	"memberships/internal/ticketing/webhook"
	httptransport "memberships/internal/transport/http"
	voucherservice "memberships/internal/voucher/service"
	vouchermetrics "memberships/internal/voucher/metrics"
)

const (
	shutdownTimeout        = 10 * time.Second
	notificationTTL        = 7 * 24 * time.Hour
	notificationPartitions = 3
)

// main wires the stores, the ticketing gateway and the HTTP surface, then
// runs the server next to the draw scheduler and the outbox relay.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st, err := openStores(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer st.Close()

	rdb, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()
	if rdb == nil {
		log.WarnContext(ctx, "REDIS_URL not set, running without draw lock, caches and dedupe")
	}

	if cfg.EventSeedFile != "" {
		if err := applySeed(ctx, cfg, st, log); err != nil {
			return err
		}
	}

	appMetrics := metrics.New()
	ticketMetrics := ticketingmetrics.New()

	accounts := accountservice.New(st.accounts, st.questions, st.vouchers,
		accountservice.WithLogger(log),
		accountservice.WithMetrics(appMetrics),
	)
	ledger := voucherservice.New(st.vouchers, accounts, st.outbox,
		voucherservice.WithLogger(log),
		voucherservice.WithMetrics(vouchermetrics.New()),
		voucherservice.WithTx(st.ledgerTx),
	)

	pretixClient := pretix.NewClient(cfg.Pretix,
		pretix.WithLogger(log),
		pretix.WithMetrics(ticketMetrics),
	)
	var provider gateway.Provider = pretixClient
	if rdb != nil {
		provider = pretix.NewCachedClient(pretixClient, rdb.Client, cfg.Pretix.CacheTTL, ticketMetrics)
	}
	gw := gateway.New(provider, cfg.Pretix.Host, cfg.Pretix.Organizer, cfg.Pretix.Event, gateway.WithLogger(log))

	drawOpts := []draw.Option{draw.WithLogger(log), draw.WithMetrics(drawmetrics.New())}
	if rdb != nil {
		drawOpts = append(drawOpts, draw.WithLock(draw.NewRedisLock(rdb.Client), cfg.Draw.LockTTL))
	}
	engine := draw.New(st.events, accounts, gw, ledger, drawOpts...)

	lotteryOpts := []lotteryservice.Option{lotteryservice.WithLogger(log), lotteryservice.WithMetrics(appMetrics)}
	if st.tx != nil {
		lotteryOpts = append(lotteryOpts, lotteryservice.WithTx(st.tx))
	}
	lottery := lotteryservice.New(st.events, accounts, ledger, gw, st.outbox, lotteryOpts...)
	lotteryRoutes := lotteryhandler.New(lottery, engine, cfg.Server.CronToken, log)

	questions := questionhandler.New(questionservice.New(st.questions, questionservice.WithLogger(log)), log)

	webhookOpts := []webhook.Option{webhook.WithLogger(log), webhook.WithMetrics(ticketMetrics)}
	if rdb != nil {
		webhookOpts = append(webhookOpts, webhook.WithDeduper(webhook.NewRedisDeduper(rdb.Client, notificationTTL)))
	}
	webhooks := webhook.NewHandler(webhook.NewProcessor(gw, ledger, webhookOpts...), cfg.Pretix.WebhookSecret, log)

	verifier, err := identity.NewVerifier(cfg.Identity)
	if err != nil {
		return fmt.Errorf("identity verifier: %w", err)
	}

	publisher, closePublisher, err := notificationPublisher(ctx, cfg, rdb, log)
	if err != nil {
		return err
	}
	defer closePublisher()
	relay := outbox.NewRelay(st.outbox, publisher,
		outbox.WithInterval(cfg.Kafka.RelayInterval),
		outbox.WithBatchSize(cfg.Kafka.RelayBatchSize),
		outbox.WithLogger(log),
		outbox.WithMetrics(outbox.NewMetrics()),
	)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Metrics:        appMetrics,
		Gatherer:       prometheus.DefaultGatherer,
		Verifier:       verifier,
		Accounts:       accounts,
		Member:         []httptransport.RouteRegistrar{lotteryRoutes, questions},
		Internal:       []httptransport.RouteRegistrar{webhooks, httptransport.RegisterFunc(lotteryRoutes.RegisterInternal)},
		Health:         []httptransport.HealthCheck{{Name: "database", Check: st.ping}, {Name: "redis", Check: rdb.Health}},
		StaticDir:      cfg.Server.StaticDir,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting memberships server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("server stopped")
		return nil
	})
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return engine.Schedule(gctx, cfg.Draw.Interval) })
	return g.Wait()
}

func applySeed(ctx context.Context, cfg config.Config, st *stores, log *slog.Logger) error {
	file, err := seed.Load(cfg.EventSeedFile)
	if err != nil {
		return fmt.Errorf("load event seed: %w", err)
	}
	if file.Event.VoucherExpiry == "" && cfg.Draw.VoucherExpiry > 0 {
		file.Event.VoucherExpiry = cfg.Draw.VoucherExpiry.String()
	}
	event, err := seed.Apply(ctx, file, st.events, st.questions)
	if err != nil {
		return fmt.Errorf("apply event seed: %w", err)
	}
	log.InfoContext(ctx, "event seeded", "event_id", event.ID, "name", event.Name)
	return nil
}

// notificationPublisher sends outbox messages to Kafka for the mailer worker
// when brokers are configured, and straight to an in-process mailer otherwise.
func notificationPublisher(ctx context.Context, cfg config.Config, rdb *platformredis.Client, log *slog.Logger) (outbox.Publisher, func(), error) {
	if cfg.Kafka.Enabled() {
		if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic, notificationPartitions, 1); err != nil {
			return nil, nil, fmt.Errorf("ensure notification topic: %w", err)
		}
		p, err := producer.New(cfg.Kafka.Brokers)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		return outbox.NewKafkaPublisher(p, cfg.Kafka.NotificationTopic), p.Close, nil
	}
	log.WarnContext(ctx, "KAFKA_BROKERS not set, delivering notifications in process")
	return newMailer(cfg, rdb, log), func() {}, nil
}

func newMailer(cfg config.Config, rdb *platformredis.Client, log *slog.Logger) *mailer.Mailer {
	var sender mailer.Sender = mailer.NewLogSender(log)
	if cfg.SMTP.Enabled() {
		sender = mailer.NewSMTPSender(cfg.SMTP)
	}
	opts := []mailer.Option{mailer.WithLogger(log)}
	if rdb != nil {
		opts = append(opts, mailer.WithDeduper(mailer.NewRedisDeduper(rdb.Client, notificationTTL)))
	}
	return mailer.New(sender, "https://"+cfg.Server.PublicHost, opts...)
}
