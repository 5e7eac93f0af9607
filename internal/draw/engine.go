// Package draw runs the lottery: it repeatedly picks a random eligible
// account from persisted state, allocates a voucher pair at the ticketing
// provider and records it in the ledger, until nobody is left or an
// allocation fails.
package draw

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks Allocator,Ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	accountmodels "memberships/internal/account/models"
	"memberships/internal/draw/metrics"
	eventmodels "memberships/internal/event/models"
	"memberships/internal/ticketing/gateway"
	vouchermodels "memberships/internal/voucher/models"
	id "memberships/pkg/domain"
	dErrors "memberships/pkg/domain-errors"
	"memberships/pkg/platform/sentinel"
	"memberships/pkg/requestcontext"
)

const lockKey = "memberships:draw:lock"

type EventRepository interface {
	Current(ctx context.Context) (*eventmodels.Event, error)
}

// Candidates selects draw candidates and classifies them.
type Candidates interface {
	RandomUndrawn(ctx context.Context, eventID id.EventID, exclude []id.AccountID) (*accountmodels.Account, error)
	IsChild(ctx context.Context, accountID id.AccountID) bool
}

// Allocator creates voucher pairs at the ticketing provider.
type Allocator interface {
	AllocateVoucherPair(ctx context.Context, accountID id.AccountID, event eventmodels.Event) (*gateway.Allocation, error)
}

// Ledger records an allocation; it rejects accounts that already hold vouchers.
type Ledger interface {
	RecordAllocation(ctx context.Context, eventID id.EventID, accountID id.AccountID, codes []string, expires time.Time) ([]vouchermodels.Voucher, error)
}

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeExhausted Outcome = "exhausted"
	OutcomeHalted    Outcome = "halted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeLocked    Outcome = "locked"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeClosed    Outcome = "closed"
)

type Result struct {
	Outcome   Outcome
	Allocated int
	Children  int
	// Err is the allocation failure that halted the run.
	Err error
}

type Engine struct {
	events     EventRepository
	candidates Candidates
	allocator  Allocator
	ledger     Ledger
	lock       Lock
	lockTTL    time.Duration
	clock      func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Engine)

// WithLock serializes runs across processes; without it runs may overlap.
func WithLock(lock Lock, ttl time.Duration) Option {
	return func(e *Engine) {
		e.lock = lock
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(events EventRepository, candidates Candidates, allocator Allocator, ledger Ledger, opts ...Option) *Engine {
	e := &Engine{
		events:     events,
		candidates: candidates,
		allocator:  allocator,
		ledger:     ledger,
		lockTTL:    5 * time.Minute,
		clock:      time.Now,
		logger:     slog.Default(),
		tracer:     otel.Tracer("memberships/draw"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run performs one draw. It is a no-op outside the lottery window. An
// allocation failure ends the run with OutcomeHalted and leaves the account
// eligible for the next run; Run itself only errors when it cannot start.
func (e *Engine) Run(ctx context.Context) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "draw.run")
	defer func() {
		span.SetAttributes(
			attribute.String("draw.outcome", string(res.Outcome)),
			attribute.Int("draw.allocated", res.Allocated),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if res.Outcome != "" {
			e.metrics.IncrementRun(string(res.Outcome))
		}
		span.End()
	}()

	event, err := e.events.Current(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		e.logger.InfoContext(ctx, "draw skipped, no active event")
		return Result{Outcome: OutcomeSkipped}, nil
	}
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}
	if !event.LotteryRunning(e.clock()) {
		e.logger.InfoContext(ctx, "draw skipped, lottery not running", "event_id", event.ID)
		return Result{Outcome: OutcomeSkipped}, nil
	}

	if e.lock != nil {
		release, acquired, err := e.lock.Acquire(ctx, lockKey, e.lockTTL)
		if err != nil {
			return Result{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to acquire draw lock")
		}
		if !acquired {
			e.logger.InfoContext(ctx, "draw already running elsewhere", "event_id", event.ID)
			return Result{Outcome: OutcomeLocked}, nil
		}
		defer release()
	}

	res = e.loop(ctx, *event)
	e.logger.InfoContext(ctx, "draw finished",
		"event_id", event.ID,
		"outcome", res.Outcome,
		"allocated", res.Allocated,
		"children_skipped", res.Children,
	)
	return res, nil
}

func (e *Engine) loop(ctx context.Context, event eventmodels.Event) Result {
	var (
		res     Result
		exclude []id.AccountID
	)
	for {
		if ctx.Err() != nil {
			res.Outcome = OutcomeCancelled
			return res
		}
		now := e.clock()
		if !event.LotteryRunning(now) {
			res.Outcome = OutcomeClosed
			return res
		}

		stepCtx := requestcontext.WithTime(ctx, now)
		acc, err := e.candidates.RandomUndrawn(stepCtx, event.ID, exclude)
		if err != nil {
			e.logger.ErrorContext(ctx, "draw candidate query failed", "event_id", event.ID, "error", err)
			return e.halt(res, err)
		}
		if acc == nil {
			res.Outcome = OutcomeExhausted
			return res
		}

		if e.candidates.IsChild(stepCtx, acc.ID) {
			exclude = append(exclude, acc.ID)
			res.Children++
			e.metrics.IncrementChildSkip()
			continue
		}

		done, err := e.step(stepCtx, event, acc.ID)
		if err != nil {
			return e.halt(res, err)
		}
		if done {
			res.Allocated++
		} else {
			exclude = append(exclude, acc.ID)
		}
	}
}

// step allocates for one account. It reports false when another run got
// there first.
func (e *Engine) step(ctx context.Context, event eventmodels.Event, accountID id.AccountID) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "draw.step", trace.WithAttributes(attribute.String("account_id", accountID.String())))
	defer span.End()
	start := time.Now()
	defer e.metrics.ObserveStep(start)

	alloc, err := e.allocator.AllocateVoucherPair(ctx, accountID, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "allocation failed")
		e.logger.ErrorContext(ctx, "voucher allocation failed, halting draw",
			"event_id", event.ID,
			"account_id", accountID,
			"error", err,
		)
		return false, err
	}

	if _, err := e.ledger.RecordAllocation(ctx, event.ID, accountID, alloc.Codes, alloc.ExpiresAt); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			e.logger.WarnContext(ctx, "account allocated by a concurrent draw, provider vouchers left unused",
				"operator", true,
				"account_id", accountID,
				"vouchers", alloc.Codes,
			)
			return false, nil
		}
		span.RecordError(err)
		e.logger.ErrorContext(ctx, "failed to record allocation",
			"operator", true,
			"account_id", accountID,
			"vouchers", alloc.Codes,
			"error", err,
		)
		return false, err
	}

	e.metrics.IncrementAllocation()
	e.logger.InfoContext(ctx, "account drawn", "event_id", event.ID, "account_id", accountID, "vouchers", alloc.Codes)
	return true, nil
}

func (e *Engine) halt(res Result, err error) Result {
	e.metrics.IncrementHalt()
	res.Outcome = OutcomeHalted
	res.Err = err
	return res
}
