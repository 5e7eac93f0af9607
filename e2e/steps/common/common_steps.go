package common

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is what the generic request and assertion steps need.
type TestContext interface {
	SetPhase(phase string) error
	SignIn(email string) error
	GET(path string) error
	POST(path string, body any) error
	Status() int
	Body() string
	ResponseField(path string) (any, bool, error)
}

// RegisterSteps registers clock, identity, request and response steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^it is the (registration|lottery|transfer|closed) phase$`, steps.phase)
	ctx.Step(`^I am signed in as "([^"]*)"$`, steps.signIn)
	ctx.Step(`^I am not signed in$`, steps.signOut)

	ctx.Step(`^I GET "([^"]*)"$`, steps.get)
	ctx.Step(`^I POST "([^"]*)"$`, steps.postEmpty)
	ctx.Step(`^I POST "([^"]*)" with:$`, steps.postJSON)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response body should be "([^"]*)"$`, steps.bodyShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be absent$`, steps.fieldShouldBeAbsent)
	ctx.Step(`^the response field "([^"]*)" should list (\d+) items?$`, steps.fieldShouldList)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) phase(ctx context.Context, phase string) error {
	return s.tc.SetPhase(phase)
}

func (s *commonSteps) signIn(ctx context.Context, email string) error {
	return s.tc.SignIn(email)
}

func (s *commonSteps) signOut(ctx context.Context) error {
	return s.tc.SignIn("")
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.GET(path)
}

func (s *commonSteps) postEmpty(ctx context.Context, path string) error {
	return s.tc.POST(path, map[string]any{})
}

func (s *commonSteps) postJSON(ctx context.Context, path string, doc *godog.DocString) error {
	var body any
	if err := json.Unmarshal([]byte(doc.Content), &body); err != nil {
		return fmt.Errorf("step body is not JSON: %w", err)
	}
	return s.tc.POST(path, body)
}

func (s *commonSteps) statusShouldBe(ctx context.Context, want int) error {
	if got := s.tc.Status(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.Body())
	}
	return nil
}

func (s *commonSteps) bodyShouldBe(ctx context.Context, want string) error {
	if got := s.tc.Body(); got != want {
		return fmt.Errorf("expected body %q, got %q", want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBe(ctx context.Context, path, want string) error {
	value, ok, err := s.tc.ResponseField(path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("field %q missing from %s", path, s.tc.Body())
	}
	if got := fmt.Sprint(value); got != want {
		return fmt.Errorf("expected %q to be %q, got %q", path, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeAbsent(ctx context.Context, path string) error {
	_, ok, err := s.tc.ResponseField(path)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("expected no %q in %s", path, s.tc.Body())
	}
	return nil
}

func (s *commonSteps) fieldShouldList(ctx context.Context, path string, want int) error {
	value, ok, err := s.tc.ResponseField(path)
	if err != nil {
		return err
	}
	items, isList := value.([]any)
	if !ok || !isList {
		return fmt.Errorf("field %q is not a list in %s", path, s.tc.Body())
	}
	if len(items) != want {
		return fmt.Errorf("expected %d items in %q, got %d", want, path, len(items))
	}
	return nil
}
