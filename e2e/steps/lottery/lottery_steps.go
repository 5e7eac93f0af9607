package lottery

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext is what the membership steps need from the running service.
type TestContext interface {
	SignIn(email string) error
	GET(path string) error
	POST(path string, body any) error
	Status() int
	Body() string
	ResponseField(path string) (any, bool, error)
	RunDraw() error
	Pay(code, email string) error
	RedeliverNotification() error
	IsSharedCode(code string) bool
	MailsTo(email, kind string) int
}

// RegisterSteps registers registration, draw, transfer, gift and payment steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &lotterySteps{tc: tc}

	ctx.Step(`^"([^"]*)" has signed in$`, steps.hasSignedIn)
	ctx.Step(`^"([^"]*)" has registered$`, steps.hasRegistered)
	ctx.Step(`^"([^"]*)" was born on "([^"]*)"$`, steps.wasBornOn)
	ctx.Step(`^the draw runs$`, steps.drawRuns)

	ctx.Step(`^"([^"]*)" transfers voucher (\d+) to "([^"]*)"$`, steps.transfer)
	ctx.Step(`^"([^"]*)" gifts voucher (\d+) to "([^"]*)"$`, steps.gift)
	ctx.Step(`^"([^"]*)" pays for voucher (\d+)$`, steps.pay)
	ctx.Step(`^the payment notification is delivered again$`, steps.redeliver)

	ctx.Step(`^"([^"]*)" should hold (\d+) lottery vouchers?$`, steps.shouldHold)
	ctx.Step(`^"([^"]*)" should be offered the code "([^"]*)"$`, steps.shouldBeOffered)
	ctx.Step(`^"([^"]*)" should have a ticket$`, steps.shouldHaveTicket)
	ctx.Step(`^"([^"]*)" should have no ticket$`, steps.shouldHaveNoTicket)
	ctx.Step(`^"([^"]*)" should have been sent (\d+) "([^"]*)" mails?$`, steps.shouldHaveBeenSent)
}

type lotterySteps struct {
	tc TestContext
}

func (s *lotterySteps) hasSignedIn(ctx context.Context, email string) error {
	if err := s.tc.SignIn(email); err != nil {
		return err
	}
	return s.expectOK(s.tc.GET("/api/registration"))
}

func (s *lotterySteps) hasRegistered(ctx context.Context, email string) error {
	if err := s.tc.SignIn(email); err != nil {
		return err
	}
	return s.expectOK(s.tc.POST("/api/registration", map[string]any{}))
}

func (s *lotterySteps) wasBornOn(ctx context.Context, email, date string) error {
	if err := s.tc.SignIn(email); err != nil {
		return err
	}
	return s.expectOK(s.tc.POST("/api/questions/1", map[string]any{"1": date}))
}

func (s *lotterySteps) drawRuns(ctx context.Context) error {
	return s.tc.RunDraw()
}

func (s *lotterySteps) transfer(ctx context.Context, from string, n int, to string) error {
	code, err := s.voucherCode(from, n)
	if err != nil {
		return err
	}
	return s.tc.POST("/api/transfer", map[string]any{"voucher": code, "email": to})
}

func (s *lotterySteps) gift(ctx context.Context, from string, n int, to string) error {
	code, err := s.voucherCode(from, n)
	if err != nil {
		return err
	}
	return s.tc.POST("/api/gift", map[string]any{"voucher": code, "email": to})
}

func (s *lotterySteps) pay(ctx context.Context, email string, n int) error {
	code, err := s.voucherCode(email, n)
	if err != nil {
		return err
	}
	return s.tc.Pay(code, email)
}

func (s *lotterySteps) redeliver(ctx context.Context) error {
	return s.tc.RedeliverNotification()
}

func (s *lotterySteps) shouldHold(ctx context.Context, email string, want int) error {
	codes, err := s.vouchers(email)
	if err != nil {
		return err
	}
	held := 0
	for _, code := range codes {
		if !s.tc.IsSharedCode(code) {
			held++
		}
	}
	if held != want {
		return fmt.Errorf("expected %s to hold %d lottery vouchers, got %d (%v)", email, want, held, codes)
	}
	return nil
}

func (s *lotterySteps) shouldBeOffered(ctx context.Context, email, want string) error {
	codes, err := s.vouchers(email)
	if err != nil {
		return err
	}
	if len(codes) != 1 || codes[0] != want {
		return fmt.Errorf("expected %s to be offered only %q, got %v", email, want, codes)
	}
	return nil
}

func (s *lotterySteps) shouldHaveTicket(ctx context.Context, email string) error {
	order, err := s.ticket(email)
	if err != nil {
		return err
	}
	if order == "" {
		return fmt.Errorf("expected %s to have a ticket: %s", email, s.tc.Body())
	}
	return nil
}

func (s *lotterySteps) shouldHaveNoTicket(ctx context.Context, email string) error {
	order, err := s.ticket(email)
	if err != nil {
		return err
	}
	if order != "" {
		return fmt.Errorf("expected %s to have no ticket, got order %s", email, order)
	}
	return nil
}

func (s *lotterySteps) shouldHaveBeenSent(ctx context.Context, email string, want int, kind string) error {
	if got := s.tc.MailsTo(email, kind); got != want {
		return fmt.Errorf("expected %d %q mails to %s, got %d", want, kind, email, got)
	}
	return nil
}

func (s *lotterySteps) vouchers(email string) ([]string, error) {
	if err := s.tc.SignIn(email); err != nil {
		return nil, err
	}
	if err := s.expectOK(s.tc.GET("/api/registration")); err != nil {
		return nil, err
	}
	value, _, err := s.tc.ResponseField("vouchers")
	if err != nil {
		return nil, err
	}
	items, _ := value.([]any)
	codes := make([]string, 0, len(items))
	for _, item := range items {
		v, _ := item.(map[string]any)
		code, _ := v["code"].(string)
		codes = append(codes, code)
	}
	return codes, nil
}

// voucherCode returns the n-th (1-based) voucher the member currently sees.
func (s *lotterySteps) voucherCode(email string, n int) (string, error) {
	codes, err := s.vouchers(email)
	if err != nil {
		return "", err
	}
	if n < 1 || n > len(codes) {
		return "", fmt.Errorf("%s has %d vouchers, no voucher %d", email, len(codes), n)
	}
	return codes[n-1], nil
}

func (s *lotterySteps) ticket(email string) (string, error) {
	if err := s.tc.SignIn(email); err != nil {
		return "", err
	}
	if err := s.expectOK(s.tc.GET("/api/registration")); err != nil {
		return "", err
	}
	value, ok, err := s.tc.ResponseField("tickets.order")
	if err != nil || !ok {
		return "", err
	}
	order, _ := value.(string)
	return order, nil
}

func (s *lotterySteps) expectOK(err error) error {
	if err != nil {
		return err
	}
	if s.tc.Status() != http.StatusOK {
		return fmt.Errorf("expected status 200, got %d: %s", s.tc.Status(), s.tc.Body())
	}
	return nil
}
