package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	accountservice "memberships/internal/account/service"
	accountstore "memberships/internal/account/store"
	"memberships/internal/draw"
	drawmetrics "memberships/internal/draw/metrics"
	"memberships/internal/event/seed"
	eventstore "memberships/internal/event/store"
	"memberships/internal/identity"
	lotteryhandler "memberships/internal/lottery/handler"
	lotteryservice "memberships/internal/lottery/service"
	"memberships/internal/notify"
	"memberships/internal/notify/outbox"
	"memberships/internal/platform/config"
	"memberships/internal/platform/metrics"
	questionhandler "memberships/internal/questionnaire/handler"
	questionservice "memberships/internal/questionnaire/service"
	questionstore "memberships/internal/questionnaire/store"
	"memberships/internal/ticketing/gateway"
	ticketingmetrics "memberships/internal/ticketing/metrics"
	"memberships/internal/ticketing/pretix"
	"memberships/internal/ticketing/webhook"
	httptransport "memberships/internal/transport/http"
	vouchermetrics "memberships/internal/voucher/metrics"
	voucherservice "memberships/internal/voucher/service"
	voucherstore "memberships/internal/voucher/store"
)

const (
	identitySecret = "e2e-identity-secret"
	cronToken      = "e2e-cron-token"
	webhookSecret  = "e2e-webhook-secret"
	seedFile       = "testdata/event.yaml"
)

// phases maps scenario wording to instants inside the seeded event windows.
// The registration window overlaps the lottery and ends before the transfer
// instant.
var phases = map[string]time.Time{
	"registration": time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC),
	"lottery":      time.Date(2026, 5, 8, 6, 0, 0, 0, time.UTC),
	"transfer":     time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC),
	"closed":       time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// TestContext is one scenario's running service plus the last response.
type TestContext struct {
	clock    *clock
	pretix   *fakePretix
	server   *httptest.Server
	verifier *identity.Verifier
	outbox   *outbox.InMemoryStore
	shared   map[string]bool

	tokens           map[string]string
	current          string
	lastStatus       int
	lastBody         []byte
	lastNotification []byte
	notificationID   int64
}

// Start builds the service on in-memory stores against a fake pretix.
func (tc *TestContext) Start(ctx context.Context) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()
	appMetrics := metrics.NewWithRegisterer(registry)
	ticketMetrics := ticketingmetrics.NewWithRegisterer(registry)

	tc.clock = &clock{now: phases["registration"]}
	tc.pretix = newFakePretix()
	tc.tokens = make(map[string]string)
	tc.current = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastNotification = nil

	vouchers := voucherstore.NewInMemory()
	accounts := accountstore.NewInMemory(vouchers)
	events := eventstore.NewInMemory()
	questions := questionstore.NewInMemory()
	tc.outbox = outbox.NewInMemory()

	file, err := seed.Load(seedFile)
	if err != nil {
		return err
	}
	event, err := seed.Apply(ctx, file, events, questions)
	if err != nil {
		return err
	}
	tc.shared = map[string]bool{event.FCFSVoucher: true, event.ChildVoucher: true}

	accountSvc := accountservice.New(accounts, questions, vouchers,
		accountservice.WithLogger(logger),
		accountservice.WithMetrics(appMetrics),
	)
	ledger := voucherservice.New(vouchers, accountSvc, tc.outbox,
		voucherservice.WithLogger(logger),
		voucherservice.WithMetrics(vouchermetrics.NewWithRegisterer(registry)),
		voucherservice.WithTx(voucherservice.NewInMemoryTx(vouchers)),
	)

	pretixCfg := config.PretixConfig{Host: "tickets.example.org", Organizer: "borderland", Event: "e2e", Token: "e2e", Timeout: 5 * time.Second}
	client := pretix.NewClient(pretixCfg,
		pretix.WithBaseURL(tc.pretix.URL()),
		pretix.WithLogger(logger),
		pretix.WithMetrics(ticketMetrics),
	)
	gw := gateway.New(client, pretixCfg.Host, pretixCfg.Organizer, pretixCfg.Event, gateway.WithLogger(logger))

	engine := draw.New(events, accountSvc, gw, ledger,
		draw.WithClock(tc.clock.Now),
		draw.WithLogger(logger),
		draw.WithMetrics(drawmetrics.NewWithRegisterer(registry)),
	)
	lottery := lotteryservice.New(events, accountSvc, ledger, gw, tc.outbox,
		lotteryservice.WithLogger(logger),
		lotteryservice.WithMetrics(appMetrics),
	)
	lotteryRoutes := lotteryhandler.New(lottery, engine, cronToken, logger)
	questionRoutes := questionhandler.New(questionservice.New(questions, questionservice.WithLogger(logger)), logger)
	webhooks := webhook.NewHandler(
		webhook.NewProcessor(gw, ledger, webhook.WithLogger(logger), webhook.WithMetrics(ticketMetrics)),
		webhookSecret, logger,
	)

	tc.verifier, err = identity.NewVerifier(config.IdentityConfig{HMACSecret: identitySecret})
	if err != nil {
		return err
	}

	tc.server = httptest.NewServer(httptransport.NewRouter(httptransport.Config{
		Logger:   logger,
		Metrics:  appMetrics,
		Gatherer: registry,
		Verifier: tc.verifier,
		Accounts: accountSvc,
		Member:   []httptransport.RouteRegistrar{lotteryRoutes, questionRoutes},
		Internal: []httptransport.RouteRegistrar{webhooks, httptransport.RegisterFunc(lotteryRoutes.RegisterInternal)},
		Clock:    tc.clock.Now,
	}))
	return nil
}

// Stop releases the scenario's servers.
func (tc *TestContext) Stop() {
	if tc.server != nil {
		tc.server.Close()
	}
	if tc.pretix != nil {
		tc.pretix.Close()
	}
}

func (tc *TestContext) SetPhase(phase string) error {
	at, ok := phases[phase]
	if !ok {
		return fmt.Errorf("unknown phase %q", phase)
	}
	tc.clock.Set(at)
	return nil
}

// SignIn makes email the caller of subsequent member requests; an empty
// email signs out.
func (tc *TestContext) SignIn(email string) error {
	tc.current = email
	if email == "" {
		return nil
	}
	if _, ok := tc.tokens[email]; ok {
		return nil
	}
	token, err := tc.verifier.IssueHS256(email, true, time.Hour)
	if err != nil {
		return err
	}
	tc.tokens[email] = token
	return nil
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil, nil)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, nil)
}

// RunDraw triggers the draw through the cron endpoint.
func (tc *TestContext) RunDraw() error {
	if err := tc.do(http.MethodGet, "/_/cron", nil, map[string]string{lotteryhandler.CronTokenHeader: cronToken}); err != nil {
		return err
	}
	if tc.lastStatus != http.StatusOK {
		return fmt.Errorf("draw answered %d: %s", tc.lastStatus, tc.lastBody)
	}
	return nil
}

// Pay has the provider record a paid order for code and sends the
// order-paid notification to the webhook.
func (tc *TestContext) Pay(code, email string) error {
	orderCode, err := tc.pretix.pay(code, email)
	if err != nil {
		return err
	}
	tc.notificationID++
	body, err := json.Marshal(webhook.Notification{
		NotificationID: tc.notificationID,
		Organizer:      "borderland",
		Event:          "e2e",
		Code:           orderCode,
		Action:         webhook.ActionOrderPaid,
	})
	if err != nil {
		return err
	}
	tc.lastNotification = body
	return tc.deliverNotification(body)
}

// RedeliverNotification sends the previous webhook body again.
func (tc *TestContext) RedeliverNotification() error {
	if tc.lastNotification == nil {
		return fmt.Errorf("no notification was sent yet")
	}
	return tc.deliverNotification(tc.lastNotification)
}

func (tc *TestContext) deliverNotification(body []byte) error {
	return tc.do(http.MethodPost, "/_/webhooks/pretix", json.RawMessage(body), map[string]string{webhook.HeaderSecret: webhookSecret})
}

func (tc *TestContext) Status() int { return tc.lastStatus }

func (tc *TestContext) Body() string { return string(tc.lastBody) }

// ResponseField resolves a dotted path such as "vouchers.0.code" in the last
// JSON response.
func (tc *TestContext) ResponseField(path string) (any, bool, error) {
	var doc any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, false, fmt.Errorf("response is not JSON: %w: %s", err, tc.lastBody)
	}
	for _, part := range strings.Split(path, ".") {
		switch node := doc.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false, nil
			}
			doc = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false, nil
			}
			doc = node[i]
		default:
			return nil, false, nil
		}
	}
	return doc, true, nil
}

// IsSharedCode reports whether code is the event's open-sale or child code.
func (tc *TestContext) IsSharedCode(code string) bool { return tc.shared[code] }

// MailsTo counts queued notifications of kind addressed to email.
func (tc *TestContext) MailsTo(email, kind string) int {
	n := 0
	for _, msg := range tc.outbox.MessagesOfKind(notify.Kind(kind)) {
		if msg.To == email {
			n++
		}
	}
	return n
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, tc.server.URL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := tc.tokens[tc.current]; ok && tc.current != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.server.Client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}
