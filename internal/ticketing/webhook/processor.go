// Package webhook reconciles provider payment notifications with the
// voucher ledger.
package webhook

//go:generate mockgen -source=processor.go -destination=mocks/mocks.go -package=mocks Lookup,Ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"memberships/internal/ticketing/metrics"
	"memberships/internal/ticketing/pretix"
	voucherservice "memberships/internal/voucher/service"
	dErrors "memberships/pkg/domain-errors"
	request "memberships/pkg/platform/middleware/request"
)

// ActionOrderPaid is the only action acted upon; others are acknowledged.
const ActionOrderPaid = "pretix.event.order.paid"

// Notification is the provider's webhook body, e.g.
// {"notification_id": 117, "organizer": "org", "event": "ev", "code": "Z9M9V", "action": "pretix.event.order.paid"}.
type Notification struct {
	NotificationID int64  `json:"notification_id"`
	Organizer      string `json:"organizer"`
	Event          string `json:"event"`
	Code           string `json:"code"`
	Action         string `json:"action"`
}

type Lookup interface {
	FetchOrder(ctx context.Context, orderCode string) (*pretix.Order, error)
	FetchVoucherInfo(ctx context.Context, providerVoucherID int64) (*pretix.Voucher, error)
}

type Ledger interface {
	ConfirmPayment(ctx context.Context, code, orderCode, secret string) (*voucherservice.ConfirmResult, error)
}

// Deduper remembers processed notification ids.
type Deduper interface {
	Claim(ctx context.Context, notificationID int64) (bool, error)
	Release(ctx context.Context, notificationID int64) error
}

// Outcome summarizes what a notification did; it is also the metric label.
type Outcome string

const (
	OutcomeIgnored     Outcome = "ignored"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeConfirmed   Outcome = "confirmed"
	OutcomeAlreadyPaid Outcome = "already_paid"
	OutcomeUnresolved  Outcome = "unresolved"
)

type Processor struct {
	lookup  Lookup
	ledger  Ledger
	deduper Deduper
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Processor)

func WithDeduper(d Deduper) Option {
	return func(p *Processor) {
		p.deduper = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

func NewProcessor(lookup Lookup, ledger Ledger, opts ...Option) *Processor {
	p := &Processor{lookup: lookup, ledger: ledger, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one notification. Mappings that can never resolve are
// logged for an operator and reported as OutcomeUnresolved with a nil error;
// an error means a transient failure worth redelivering.
func (p *Processor) Process(ctx context.Context, n Notification) (outcome Outcome, err error) {
	defer func() {
		label := string(outcome)
		if err != nil {
			label = "error"
		}
		p.metrics.IncrementWebhook(n.Action, label)
	}()

	if n.Action != ActionOrderPaid {
		p.logger.InfoContext(ctx, "webhook action ignored", "action", n.Action, "order", n.Code)
		return OutcomeIgnored, nil
	}

	if p.deduper != nil && n.NotificationID != 0 {
		fresh, claimErr := p.deduper.Claim(ctx, n.NotificationID)
		if claimErr != nil {
			p.logger.WarnContext(ctx, "webhook dedupe unavailable", "error", claimErr)
		} else if !fresh {
			return OutcomeDuplicate, nil
		} else {
			defer func() {
				if err != nil {
					_ = p.deduper.Release(ctx, n.NotificationID)
				}
			}()
		}
	}

	return p.confirm(ctx, n)
}

func (p *Processor) confirm(ctx context.Context, n Notification) (Outcome, error) {
	order, err := p.lookup.FetchOrder(ctx, n.Code)
	if err != nil {
		return "", dErrors.Wrap(fmt.Errorf("fetch order %s: %w", n.Code, err), dErrors.CodeUnavailable, "ticketing provider unavailable")
	}
	if order == nil {
		return p.unresolved(ctx, n, "order not found at provider")
	}
	// one product per order
	if len(order.Positions) == 0 || order.Positions[0].Voucher == nil {
		return p.unresolved(ctx, n, "order has no voucher position")
	}

	providerVoucher, err := p.lookup.FetchVoucherInfo(ctx, *order.Positions[0].Voucher)
	if err != nil {
		return "", dErrors.Wrap(fmt.Errorf("fetch voucher for order %s: %w", n.Code, err), dErrors.CodeUnavailable, "ticketing provider unavailable")
	}
	if providerVoucher == nil {
		return p.unresolved(ctx, n, "voucher not found at provider")
	}

	p.logger.InfoContext(ctx, "webhook order paid", "order", n.Code, "voucher", providerVoucher.Code)
	res, err := p.ledger.ConfirmPayment(ctx, providerVoucher.Code, order.Code, order.Secret)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return p.unresolved(ctx, n, "voucher unknown to the ledger", "voucher", providerVoucher.Code)
		}
		return "", err
	}
	if res.AlreadyPaid {
		return OutcomeAlreadyPaid, nil
	}
	return OutcomeConfirmed, nil
}

func (p *Processor) unresolved(ctx context.Context, n Notification, reason string, extra ...any) (Outcome, error) {
	attrs := append([]any{
		"operator", true,
		"reason", reason,
		"order", n.Code,
		"notification_id", n.NotificationID,
		"request_id", request.GetRequestID(ctx),
	}, extra...)
	p.logger.ErrorContext(ctx, "payment notification could not be matched", attrs...)
	return OutcomeUnresolved, nil
}

// RedisDeduper claims notification ids with SET NX.
type RedisDeduper struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisDeduper(client redis.Cmdable, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func dedupeKey(notificationID int64) string {
	return "pretix:webhook:" + strconv.FormatInt(notificationID, 10)
}

func (d *RedisDeduper) Claim(ctx context.Context, notificationID int64) (bool, error) {
	return d.client.SetNX(ctx, dedupeKey(notificationID), 1, d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, notificationID int64) error {
	return d.client.Del(ctx, dedupeKey(notificationID)).Err()
}
