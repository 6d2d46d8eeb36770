package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/Imetomi/bugninja-cli/api/schemas"
	"github.com/Imetomi/bugninja-cli/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Test doubles --

type fakeSession struct {
	navigated []string
	navErr    error
	settles   int
	ensures   int
	ensureErr error
	tabs      []schemas.TabDigest
	shot      []byte
	shotErr   error
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	return s.navErr
}
func (s *fakeSession) Settle(context.Context) error { s.settles++; return nil }
func (s *fakeSession) EnsureActivePage(context.Context) error {
	s.ensures++
	return s.ensureErr
}
func (s *fakeSession) Screenshot(context.Context) ([]byte, error) { return s.shot, s.shotErr }
func (s *fakeSession) Tabs() []schemas.TabDigest                  { return s.tabs }
func (s *fakeSession) VideoFiles() []string      { return []string{"tab-01.mjpeg"} }

type fakePerceiver struct {
	obs          schemas.Observation
	errs         []error
	calls        int
	consent      bool
	consentErr   error
	consentCalls int
	seenObs      []schemas.Observation
}

func (p *fakePerceiver) Observe(context.Context) (schemas.Observation, error) {
	defer func() { p.calls++ }()
	if p.calls < len(p.errs) && p.errs[p.calls] != nil {
		return schemas.Observation{}, p.errs[p.calls]
	}
	return p.obs, nil
}

func (p *fakePerceiver) DismissConsent(context.Context) (bool, error) {
	p.consentCalls++
	return p.consent, p.consentErr
}

// scriptedOracle replays a fixed sequence of answers.
type scriptedOracle struct {
	script []func(obs schemas.Observation) (schemas.Decision, error)
	calls  int
	seen   []schemas.Observation
}

func (o *scriptedOracle) Decide(_ context.Context, obs schemas.Observation) (schemas.Decision, error) {
	o.seen = append(o.seen, obs)
	if o.calls >= len(o.script) {
		return schemas.Decision{}, fmt.Errorf("oracle script exhausted at call %d", o.calls)
	}
	fn := o.script[o.calls]
	o.calls++
	return fn(obs)
}

func (o *scriptedOracle) Close() error { return nil }

type fakeExecutor struct {
	executed []schemas.Decision
	outcome  schemas.ExecutionOutcome
	err      error
}

func (e *fakeExecutor) Execute(_ context.Context, dec schemas.Decision, _ schemas.Observation) (schemas.ExecutionOutcome, error) {
	e.executed = append(e.executed, dec)
	if e.err != nil {
		return schemas.ExecutionOutcome{Resolved: false}, e.err
	}
	return e.outcome, nil
}

// -- Helpers --

func clickDecision(goalAchieved bool, confidence float64) func(schemas.Observation) (schemas.Decision, error) {
	return func(schemas.Observation) (schemas.Decision, error) {
		idx := 0
		return schemas.Decision{
			Action:             schemas.ActionClick,
			ElementIndex:       &idx,
			ElementDescription: "next",
			Reasoning:          "advance",
			GoalAchieved:       goalAchieved,
			Confidence:         confidence,
		}, nil
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Run = config.RunConfig{
		URL:       "https://example.com",
		Goal:      "reach the end",
		OutputDir: t.TempDir(),
	}
	cfg.Agent.MaxSteps = 6
	return cfg
}

func newTestController(cfg *config.Config, p *fakePerceiver, o *scriptedOracle, e *fakeExecutor, s *fakeSession) *Controller {
	return NewController(cfg, p, o, e, s, nil, zap.NewNop())
}

func baseObservation() schemas.Observation {
	return schemas.Observation{
		URL:   "https://example.com/page",
		Title: "Page",
		Elements: []schemas.Element{
			{Index: 0, Tag: "button", Text: "Next", CenterX: 10, CenterY: 10},
		},
	}
}

// -- Tests --

func TestRunCommitsGoalOneStepAfterClaim(t *testing.T) {
	oracle := &scriptedOracle{script: []func(schemas.Observation) (schemas.Decision, error){
		clickDecision(false, 0.6), // step 0: plain action
		clickDecision(true, 0.9),  // step 1: claim, action still executes
		clickDecision(false, 0.2), // step 2: stored claim commits regardless
	}}
	session := &fakeSession{}
	executor := &fakeExecutor{outcome: schemas.ExecutionOutcome{Success: true, Resolved: true}}
	perceiver := &fakePerceiver{obs: baseObservation()}
	ctrl := newTestController(testConfig(t), perceiver, oracle, executor, session)

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusSuccess, report.Status)
	// The stored claim's confidence is what commits and gets reported.
	assert.Equal(t, 0.9, report.Confidence)
	// The commit-step decision is never executed; only the first two acted.
	assert.Len(t, executor.executed, 2)

	// The commit-step call saw the pending claim.
	require.Len(t, oracle.seen, 3)
	assert.Nil(t, oracle.seen[1].PendingClaim)
	require.NotNil(t, oracle.seen[2].PendingClaim)
	assert.Equal(t, 1, oracle.seen[2].PendingClaim.Step)
}

func TestRunClaimBelowThresholdAtCommitIsDiscarded(t *testing.T) {
	// Every step claims below the threshold; none of them may commit.
	var script []func(schemas.Observation) (schemas.Decision, error)
	for i := 0; i < 6; i++ {
		script = append(script, clickDecision(true, 0.5))
	}
	oracle := &scriptedOracle{script: script}
	session := &fakeSession{}
	executor := &fakeExecutor{outcome: schemas.ExecutionOutcome{Success: true, Resolved: true}}
	perceiver := &fakePerceiver{obs: baseObservation()}
	ctrl := newTestController(testConfig(t), perceiver, oracle, executor, session)

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusExhausted, report.Status)
	assert.Zero(t, report.Confidence)
}

func TestRunStoredClaimCommitsEvenAfterOracleFallback(t *testing.T) {
	// A confident claim must survive the next step's oracle outage: the
	// fallback decision has confidence 0, but the stored claim decides.
	unavailable := func(schemas.Observation) (schemas.Decision, error) {
		return schemas.Decision{}, schemas.ErrOracleUnavailable
	}
	oracle := &scriptedOracle{script: []func(schemas.Observation) (schemas.Decision, error){
		clickDecision(true, 0.9),
		unavailable,
	}}
	executor := &fakeExecutor{outcome: schemas.ExecutionOutcome{Success: true, Resolved: true}}
	ctrl := newTestController(testConfig(t), &fakePerceiver{obs: baseObservation()}, oracle, executor, &fakeSession{})

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusSuccess, report.Status)
	assert.Equal(t, 0.9, report.Confidence)
}

func TestRunExhaustsStepBudget(t *testing.T) {
	var script []func(schemas.Observation) (schemas.Decision, error)
	for i := 0; i < 6; i++ {
		script = append(script, clickDecision(false, 0.7))
	}
	oracle := &scriptedOracle{script: script}
	session := &fakeSession{}
	executor := &fakeExecutor{outcome: schemas.ExecutionOutcome{Success: true, Resolved: true}}
	perceiver := &fakePerceiver{obs: baseObservation()}
	ctrl := newTestController(testConfig(t), perceiver, oracle, executor, session)

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusExhausted, report.Status)
	assert.Equal(t, 6, report.StepsTaken)
	assert.Equal(t, 2, report.Status.ExitCode())
}

func TestRunFatalOnInitialNavigation(t *testing.T) {
	navErr := errors.New("browser exited")
	session := &fakeSession{navErr: navErr}
	ctrl := newTestController(testConfig(t), &fakePerceiver{obs: baseObservation()}, &scriptedOracle{}, &fakeExecutor{}, session)

	report, err := ctrl.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, navErr)
	assert.Equal(t, schemas.StatusFatal, report.Status)
}

func TestRunPerceptionRetriesOnceThenFatal(t *testing.T) {
	perceiver := &fakePerceiver{
		obs:  baseObservation(),
		errs: []error{schemas.ErrPerception, schemas.ErrPerception},
	}
	ctrl := newTestController(testConfig(t), perceiver, &scriptedOracle{}, &fakeExecutor{}, &fakeSession{})

	report, err := ctrl.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrPerception)
	assert.Equal(t, schemas.StatusFatal, report.Status)
	assert.Equal(t, 2, perceiver.calls)
}

func TestRunPerceptionSingleFailureRecovers(t *testing.T) {
	perceiver := &fakePerceiver{
		obs:  baseObservation(),
		errs: []error{schemas.ErrPerception},
	}
	oracle := &scriptedOracle{script: []func(schemas.Observation) (schemas.Decision, error){
		clickDecision(true, 0.9),
		clickDecision(true, 0.9),
	}}
	ctrl := newTestController(testConfig(t), perceiver, oracle, &fakeExecutor{outcome: schemas.ExecutionOutcome{Success: true, Resolved: true}}, &fakeSession{})

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusSuccess, report.Status)
}

func TestRunOracleMalformedRetriedThenFallback(t *testing.T) {
	malformed := func(schemas.Observation) (schemas.Decision, error) {
		return schemas.Decision{}, schemas.ErrOracleMalformed
	}
	oracle := &scriptedOracle{script: []func(schemas.Observation) (schemas.Decision, error){
		malformed,
		malformed, // retry also fails -> fallback click on best element
		clickDecision(true, 0.9),
		clickDecision(true, 0.9),
	}}
	executor := &fakeExecutor{outcome: schemas.ExecutionOutcome{Success: true, Resolved: true}}
	ctrl := newTestController(testConfig(t), &fakePerceiver{obs: baseObservation()}, oracle, executor, &fakeSession{})

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusSuccess, report.Status)

	// The fallback decision targeted the top-ranked element.
	require.NotEmpty(t, executor.executed)
	require.NotNil(t, executor.executed[0].ElementIndex)
	assert.Equal(t, 0, *executor.executed[0].ElementIndex)
}

func TestRunUnresolvedElementIsNotFatal(t *testing.T) {
	oracle := &scriptedOracle{script: []func(schemas.Observation) (schemas.Decision, error){
		clickDecision(false, 0.7),
		clickDecision(true, 0.9),
		clickDecision(true, 0.9),
	}}
	executor := &fakeExecutor{err: schemas.ErrElementNotResolved}
	ctrl := newTestController(testConfig(t), &fakePerceiver{obs: baseObservation()}, oracle, executor, &fakeSession{})

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusSuccess, report.Status)
	// Each unresolved action is retried once against a fresh extraction.
	assert.Len(t, executor.executed, 4)
	// Failed outcomes land in history.
	require.NotEmpty(t, report.History)
	assert.False(t, report.History[0].Outcome.Success)
}

func TestRunScansForConsentEveryStep(t *testing.T) {
	oracle := &scriptedOracle{script: []func(schemas.Observation) (schemas.Decision, error){
		clickDecision(false, 0.7),
		clickDecision(true, 0.9),
		clickDecision(true, 0.9),
	}}
	perceiver := &fakePerceiver{obs: baseObservation(), consent: true}
	session := &fakeSession{}
	ctrl := newTestController(testConfig(t), perceiver, oracle, &fakeExecutor{outcome: schemas.ExecutionOutcome{Success: true, Resolved: true}}, session)

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusSuccess, report.Status)
	assert.Equal(t, 3, perceiver.consentCalls)
	// Each dismissal settles the page before observing.
	assert.GreaterOrEqual(t, session.settles, 3)
}

func TestRunEmptySessionFatalWhenPageCannotBeReopened(t *testing.T) {
	session := &fakeSession{ensureErr: schemas.ErrPageClosed}
	ctrl := newTestController(testConfig(t), &fakePerceiver{obs: baseObservation()}, &scriptedOracle{}, &fakeExecutor{}, session)

	report, err := ctrl.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrPageClosed)
	assert.Equal(t, schemas.StatusFatal, report.Status)
}

func TestRunWritesReportAndScreenshots(t *testing.T) {
	cfg := testConfig(t)
	oracle := &scriptedOracle{script: []func(schemas.Observation) (schemas.Decision, error){
		clickDecision(true, 0.9),
		clickDecision(true, 0.9),
	}}
	perceiver := &fakePerceiver{obs: schemas.Observation{
		URL:        "https://example.com/done",
		Screenshot: []byte{0x89, 0x50, 0x4E, 0x47},
		Elements:   baseObservation().Elements,
	}}
	session := &fakeSession{shot: []byte{0x89, 0x50, 0x4E, 0x47}}
	ctrl := newTestController(cfg, perceiver, oracle, &fakeExecutor{outcome: schemas.ExecutionOutcome{Success: true, Resolved: true}}, session)

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(cfg.Run.OutputDir, "report.json"))
	require.NoError(t, err)
	var onDisk schemas.RunReport
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, report.RunID, onDisk.RunID)
	assert.Equal(t, schemas.StatusSuccess, onDisk.Status)

	_, err = os.Stat(filepath.Join(cfg.Run.OutputDir, "step-00.png"))
	require.NoError(t, err)
	assert.NotEmpty(t, report.Screenshots)

	// The post-run state is captured on the way out.
	require.Equal(t, filepath.Join(cfg.Run.OutputDir, "final.png"), report.FinalScreenshot)
	_, err = os.Stat(report.FinalScreenshot)
	require.NoError(t, err)
	assert.Equal(t, report.FinalScreenshot, onDisk.FinalScreenshot)
}

func TestRunFinalScreenshotOnExhaustedRun(t *testing.T) {
	cfg := testConfig(t)
	var script []func(schemas.Observation) (schemas.Decision, error)
	for i := 0; i < 6; i++ {
		script = append(script, clickDecision(false, 0.6))
	}
	session := &fakeSession{shot: []byte{0x89, 0x50}}
	ctrl := newTestController(cfg, &fakePerceiver{obs: baseObservation()}, &scriptedOracle{script: script}, &fakeExecutor{outcome: schemas.ExecutionOutcome{Success: true, Resolved: true}}, session)

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusExhausted, report.Status)
	require.NotEmpty(t, report.FinalScreenshot)
	_, statErr := os.Stat(report.FinalScreenshot)
	require.NoError(t, statErr)
}

func TestRunSecretsTravelAsHintsOnly(t *testing.T) {
	cfg := testConfig(t)
	secrets := []config.Secret{{Name: "PASSWORD", Category: config.CategoryCredential, Value: "topsecret"}}
	oracle := &scriptedOracle{script: []func(schemas.Observation) (schemas.Decision, error){
		clickDecision(true, 0.9),
		clickDecision(true, 0.9),
	}}
	ctrl := NewController(cfg, &fakePerceiver{obs: baseObservation()}, oracle, &fakeExecutor{outcome: schemas.ExecutionOutcome{Success: true, Resolved: true}}, &fakeSession{}, secrets, zap.NewNop())

	_, err := ctrl.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, oracle.seen)
	require.Len(t, oracle.seen[0].Secrets, 1)
	assert.Equal(t, "PASSWORD", oracle.seen[0].Secrets[0].Name)
	// The hint type has no value field; marshal the observation to be sure.
	blob, err := json.Marshal(oracle.seen[0].Secrets)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "topsecret")
}

func TestFallbackDecisionOnEmptyPage(t *testing.T) {
	dec := fallbackDecision(schemas.Observation{})
	require.NotNil(t, dec.Coordinates)
	assert.False(t, dec.GoalAchieved)
}

func TestRunContextCancellationIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ctrl := newTestController(testConfig(t), &fakePerceiver{obs: baseObservation()}, &scriptedOracle{}, &fakeExecutor{}, &fakeSession{})
	report, err := ctrl.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || report.Status == schemas.StatusFatal)
}
