package e2e

import (
	"context"
	"testing"

	"github.com/cucumber/godog"

	"memberships/e2e/steps/common"
	"memberships/e2e/steps/lottery"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature scenarios failed")
	}
}

func initializeScenario(sc *godog.ScenarioContext) {
	tc := &TestContext{}
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return ctx, tc.Start(ctx)
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		tc.Stop()
		return ctx, nil
	})
	common.RegisterSteps(sc, tc)
	lottery.RegisterSteps(sc, tc)
}
