package executor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/Imetomi/bugninja-cli/api/schemas"
	"github.com/Imetomi/bugninja-cli/internal/config"
)

// InputDriver is the slice of the browser session the executor drives.
type InputDriver interface {
	MouseMove(ctx context.Context, x, y float64) error
	MousePress(ctx context.Context, x, y float64) error
	MouseRelease(ctx context.Context, x, y float64) error
	InsertText(ctx context.Context, text string) error
	PressEnter(ctx context.Context) error
	ClearInput(ctx context.Context) error
	Sleep(ctx context.Context, d time.Duration) error
}

// Executor carries oracle decisions out against the live page with
// humanized mouse trajectories and keystroke timing.
type Executor struct {
	driver  InputDriver
	cfg     config.MotionConfig
	secrets []config.Secret
	logger  *zap.Logger
	rng     *rand.Rand

	cursor  schemas.Point
	lastSig string
}

// New creates an Executor. The rng seed is wall-clock; tests inject their
// own source through NewWithRand.
func New(driver InputDriver, cfg config.MotionConfig, secrets []config.Secret, logger *zap.Logger) *Executor {
	return NewWithRand(driver, cfg, secrets, logger, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand is New with an explicit randomness source.
func NewWithRand(driver InputDriver, cfg config.MotionConfig, secrets []config.Secret, logger *zap.Logger, rng *rand.Rand) *Executor {
	return &Executor{
		driver:  driver,
		cfg:     cfg,
		secrets: secrets,
		logger:  logger.Named("executor"),
		rng:     rng,
	}
}

// Execute resolves the decision's target and performs the action. A failed
// resolution is reported in the outcome and as ErrElementNotResolved; the
// caller decides whether the run survives it.
func (e *Executor) Execute(ctx context.Context, dec schemas.Decision, obs schemas.Observation) (schemas.ExecutionOutcome, error) {
	target, err := resolveTarget(dec, obs.Elements)
	if err != nil {
		e.logger.Warn("Element resolution failed.",
			zap.String("description", dec.ElementDescription),
			zap.Error(err),
		)
		return schemas.ExecutionOutcome{Resolved: false, Detail: err.Error()}, err
	}

	e.logger.Info("Executing action.",
		zap.String("action", string(dec.Action)),
		zap.String("strategy", target.strategy),
		zap.Float64("x", target.point.X),
		zap.Float64("y", target.point.Y),
	)

	switch dec.Action {
	case schemas.ActionClick:
		err = e.click(ctx, target, dec)
	case schemas.ActionType:
		err = e.typeInto(ctx, target, dec)
	default:
		err = fmt.Errorf("unsupported action %q", dec.Action)
	}
	if err != nil {
		return schemas.ExecutionOutcome{Resolved: true, Strategy: target.strategy, Detail: err.Error()}, err
	}
	return schemas.ExecutionOutcome{Success: true, Resolved: true, Strategy: target.strategy}, nil
}

func (e *Executor) click(ctx context.Context, target resolved, dec schemas.Decision) error {
	if err := e.moveTo(ctx, target.point); err != nil {
		return err
	}
	if err := e.driver.MousePress(ctx, target.point.X, target.point.Y); err != nil {
		return err
	}
	if err := e.driver.MouseRelease(ctx, target.point.X, target.point.Y); err != nil {
		return err
	}

	// A repeated click on the same target usually means the page ignored
	// the first one; nudge it with Enter.
	sig := actionSignature(dec, target)
	if sig == e.lastSig {
		e.logger.Debug("Repeated click detected, sending Enter nudge.")
		if err := e.driver.PressEnter(ctx); err != nil {
			return err
		}
	}
	e.lastSig = sig
	return nil
}

func (e *Executor) typeInto(ctx context.Context, target resolved, dec schemas.Decision) error {
	// Focus the field first.
	if err := e.moveTo(ctx, target.point); err != nil {
		return err
	}
	if err := e.driver.MousePress(ctx, target.point.X, target.point.Y); err != nil {
		return err
	}
	if err := e.driver.MouseRelease(ctx, target.point.X, target.point.Y); err != nil {
		return err
	}
	if err := e.driver.ClearInput(ctx); err != nil {
		return err
	}

	text, secretName := e.substituteSecret(dec.InputText)
	if secretName != "" {
		e.logger.Info("Typing secret value.",
			zap.String("secret", secretName),
			zap.String("value", config.MaskValue(text)),
		)
	} else {
		e.logger.Info("Typing text.", zap.String("text", text))
	}

	for _, r := range text {
		if err := e.driver.InsertText(ctx, string(r)); err != nil {
			return err
		}
		if e.cfg.Enabled {
			if err := e.driver.Sleep(ctx, keyDelay(e.cfg, e.rng)); err != nil {
				return err
			}
		}
	}

	sig := actionSignature(dec, target)
	switch {
	case target.element != nil && isSearchBox(*target.element):
		// Search boxes expect the query to be submitted straight away.
		e.logger.Debug("Search field detected, pressing Enter.")
		if err := e.driver.PressEnter(ctx); err != nil {
			return err
		}
	case sig == e.lastSig:
		// Typing into the same field twice in a row usually means the
		// first submit never happened; nudge it with Enter.
		e.logger.Debug("Repeated typing detected, sending Enter nudge.")
		if err := e.driver.PressEnter(ctx); err != nil {
			return err
		}
	}

	e.lastSig = sig
	return nil
}

// moveTo walks the cursor along a humanized trajectory to the target.
func (e *Executor) moveTo(ctx context.Context, to schemas.Point) error {
	if !e.cfg.Enabled {
		e.cursor = to
		return e.driver.MouseMove(ctx, to.X, to.Y)
	}

	path := bezierPath(e.cursor, to, e.cfg.PathSteps, float64(e.cfg.ControlJitter), e.rng)
	for _, p := range path {
		if err := e.driver.MouseMove(ctx, p.X, p.Y); err != nil {
			return err
		}
		if err := e.driver.Sleep(ctx, stepDelay(e.cfg, e.rng)); err != nil {
			return err
		}
	}
	e.cursor = to
	return nil
}

// substituteSecret swaps a referenced secret name for its value. The
// returned name is empty when the text was typed verbatim.
func (e *Executor) substituteSecret(text string) (value, secretName string) {
	if s, ok := config.FindSecret(e.secrets, text); ok {
		return s.Value, s.Name
	}
	return text, ""
}

func actionSignature(dec schemas.Decision, target resolved) string {
	return fmt.Sprintf("%s@%.0f,%.0f", dec.Action, target.point.X, target.point.Y)
}
