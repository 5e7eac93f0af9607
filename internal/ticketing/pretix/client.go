// Package pretix is the HTTP client for the pretix ticketing API.
package pretix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"memberships/internal/platform/config"
	"memberships/internal/ticketing/metrics"
	"memberships/pkg/platform/circuit"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// Client talks to one organizer/event on a pretix instance. Every request is
// bounded by the client timeout and guarded by a circuit breaker.
type Client struct {
	baseURL   string
	organizer string
	event     string
	token     string
	http      *http.Client
	breaker   *circuit.Breaker
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Client)

// WithBaseURL overrides the https://{host} base, mostly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(cfg config.PretixConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:   "https://" + cfg.Host,
		organizer: cfg.Organizer,
		event:     cfg.Event,
		token:     cfg.Token,
		http:      &http.Client{Timeout: timeout},
		breaker:   circuit.New("pretix", circuit.WithFailureThreshold(3), circuit.WithCooldown(30*time.Second)),
		logger:    slog.Default(),
		tracer:    otel.Tracer("memberships/ticketing/pretix"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) eventPath(suffix string) string {
	return fmt.Sprintf("%s/api/v1/organizers/%s/events/%s/%s", c.baseURL, c.organizer, c.event, suffix)
}

// CreateVouchers creates all requested vouchers in one batch. The provider
// creates all or none; anything other than 201 is a failure.
func (c *Client) CreateVouchers(ctx context.Context, reqs []VoucherRequest) ([]Voucher, error) {
	var out []Voucher
	err := c.do(ctx, "batch_create", http.MethodPost, c.eventPath("vouchers/batch_create/"), reqs, http.StatusCreated, &out)
	if err != nil {
		return nil, err
	}
	if len(out) != len(reqs) {
		return nil, &ProviderError{
			Category:   ErrorBadData,
			Operation:  "batch_create",
			Status:     http.StatusCreated,
			Underlying: fmt.Errorf("asked for %d vouchers, got %d", len(reqs), len(out)),
		}
	}
	return out, nil
}

// FetchOrder looks up an order by code. An order the provider does not
// return is reported as nil with no error; only transient failures error.
func (c *Client) FetchOrder(ctx context.Context, orderCode string) (*Order, error) {
	var out Order
	err := c.do(ctx, "fetch_order", http.MethodGet, c.eventPath("orders/"+orderCode+"/"), nil, http.StatusOK, &out)
	if err != nil {
		return nil, c.lookupMiss(ctx, "order", orderCode, err)
	}
	return &out, nil
}

// FetchVoucher looks up a provider voucher by its numeric id, with the same
// not-found contract as FetchOrder.
func (c *Client) FetchVoucher(ctx context.Context, voucherID int64) (*Voucher, error) {
	var out Voucher
	ref := strconv.FormatInt(voucherID, 10)
	err := c.do(ctx, "fetch_voucher", http.MethodGet, c.eventPath("vouchers/"+ref+"/"), nil, http.StatusOK, &out)
	if err != nil {
		return nil, c.lookupMiss(ctx, "voucher", ref, err)
	}
	return &out, nil
}

func (c *Client) lookupMiss(ctx context.Context, kind, ref string, err error) error {
	if IsRetryable(err) {
		return err
	}
	attrs := []any{"kind", kind, "ref", ref, "error", err}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Status != 0 {
		attrs = append(attrs, "status", pe.Status, "body", pe.Body)
	}
	c.logger.WarnContext(ctx, "pretix lookup returned nothing", attrs...)
	return nil
}

func (c *Client) do(ctx context.Context, op, method, url string, body any, want int, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "pretix."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("pretix.event", c.event),
	))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(CategoryOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		c.metrics.ObserveRequest(op, outcome, start)
		span.End()
	}()

	if !c.breaker.Allow() {
		return &ProviderError{Category: ErrorCircuitOpen, Operation: op}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &ProviderError{Category: ErrorBadData, Operation: op, Underlying: err}
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &ProviderError{Category: ErrorBadData, Operation: op, Underlying: err}
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordFailure()
		category := ErrorProviderOutage
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			category = ErrorTimeout
		}
		return &ProviderError{Category: category, Operation: op, Underlying: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != want {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		pe := &ProviderError{
			Category:  categorizeStatus(resp.StatusCode),
			Operation: op,
			Status:    resp.StatusCode,
			Body:      string(raw),
		}
		if pe.Retryable() {
			c.recordFailure()
		} else {
			c.recordSuccess()
		}
		return pe
	}
	c.recordSuccess()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Category: ErrorBadData, Operation: op, Status: resp.StatusCode, Underlying: err}
	}
	return nil
}

func (c *Client) recordFailure() {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.Warn("pretix circuit opened", "breaker", c.breaker.Name())
		c.metrics.SetCircuitOpen(true)
	}
}

func (c *Client) recordSuccess() {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("pretix circuit closed", "breaker", c.breaker.Name())
		c.metrics.SetCircuitOpen(false)
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
