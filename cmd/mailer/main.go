package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memberships/internal/notify/mailer"
	"memberships/internal/platform/config"
	"memberships/internal/platform/kafka/consumer"
	"memberships/internal/platform/logger"
	platformredis "memberships/internal/platform/redis"
)

const dedupeTTL = 7 * 24 * time.Hour

// main consumes the notification topic and delivers each message by e-mail.
func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("mailer stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if !cfg.Kafka.Enabled() {
		return errors.New("KAFKA_BROKERS is required for the mailer worker")
	}

	rdb, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	var sender mailer.Sender = mailer.NewLogSender(log)
	if cfg.SMTP.Enabled() {
		sender = mailer.NewSMTPSender(cfg.SMTP)
	} else {
		log.WarnContext(ctx, "SMTP_HOST not set, logging mails instead of sending")
	}
	opts := []mailer.Option{mailer.WithLogger(log)}
	if rdb != nil {
		opts = append(opts, mailer.WithDeduper(mailer.NewRedisDeduper(rdb.Client, dedupeTTL)))
	}
	m := mailer.New(sender, "https://"+cfg.Server.PublicHost, opts...)

	c, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, []string{cfg.Kafka.NotificationTopic}, log)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	defer c.Close()

	log.InfoContext(ctx, "mailer consuming", "topic", cfg.Kafka.NotificationTopic, "group", cfg.Kafka.ConsumerGroup)
	if err := c.Run(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
