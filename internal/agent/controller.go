package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Imetomi/bugninja-cli/api/schemas"
	"github.com/Imetomi/bugninja-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionController is the slice of the browser session the loop drives.
type SessionController interface {
	Navigate(ctx context.Context, url string) error
	Settle(ctx context.Context) error
	EnsureActivePage(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Tabs() []schemas.TabDigest
	VideoFiles() []string
}

// Controller runs the perceive-decide-act loop until the goal commits,
// the step budget runs out, or a fatal error ends the run.
type Controller struct {
	cfg       *config.Config
	perceiver schemas.Perceiver
	oracle    schemas.OracleClient
	executor  schemas.Executor
	session   SessionController
	secrets   []config.Secret
	logger    *zap.Logger

	runID       string
	pending     *schemas.PendingGoalClaim
	history     *History
	screenshots []string
}

// NewController wires the loop's collaborators together.
func NewController(
	cfg *config.Config,
	perceiver schemas.Perceiver,
	oracleClient schemas.OracleClient,
	executor schemas.Executor,
	session SessionController,
	secrets []config.Secret,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		cfg:       cfg,
		perceiver: perceiver,
		oracle:    oracleClient,
		executor:  executor,
		session:   session,
		secrets:   secrets,
		logger:    logger.Named("agent"),
		runID:     uuid.NewString(),
		history:   NewHistory(cfg.Agent.HistoryWindow),
	}
}

// Run drives the full loop and always returns a report; the error is
// non-nil only for fatal endings.
func (c *Controller) Run(ctx context.Context) (schemas.RunReport, error) {
	report := schemas.RunReport{
		RunID:     c.runID,
		Goal:      c.cfg.Run.Goal,
		StartURL:  c.cfg.Run.URL,
		MaxSteps:  c.cfg.Agent.MaxSteps,
		OutputDir: c.cfg.Run.OutputDir,
		StartedAt: time.Now(),
	}

	c.logger.Info("Run starting.",
		zap.String("run_id", c.runID),
		zap.String("url", c.cfg.Run.URL),
		zap.String("goal", c.cfg.Run.Goal),
		zap.Int("max_steps", c.cfg.Agent.MaxSteps),
	)

	status, confidence, finalURL, runErr := c.loop(ctx)

	report.Status = status
	report.Confidence = confidence
	report.FinalURL = finalURL
	report.StepsTaken = c.history.Len()
	report.History = c.history.Full()
	report.FinishedAt = time.Now()
	report.VideoFiles = c.session.VideoFiles()
	report.Screenshots = c.screenshots
	report.FinalScreenshot = c.saveFinalScreenshot()
	if runErr != nil {
		report.Error = runErr.Error()
	}

	if err := c.writeReport(report); err != nil {
		c.logger.Error("Writing run report failed.", zap.Error(err))
	}

	c.logger.Info("Run finished.",
		zap.String("status", string(status)),
		zap.Int("steps", report.StepsTaken),
		zap.Error(runErr),
	)
	return report, runErr
}

func (c *Controller) loop(ctx context.Context) (schemas.RunStatus, float64, string, error) {
	if err := c.session.Navigate(ctx, c.cfg.Run.URL); err != nil {
		return schemas.StatusFatal, 0, "", fmt.Errorf("initial navigation: %w", err)
	}

	var lastURL string
	for step := 0; step < c.cfg.Agent.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return schemas.StatusFatal, 0, lastURL, err
		}
		if err := c.session.EnsureActivePage(ctx); err != nil {
			return schemas.StatusFatal, 0, lastURL, err
		}

		obs, err := c.observe(ctx, step)
		if err != nil {
			return schemas.StatusFatal, 0, lastURL, err
		}
		lastURL = obs.URL
		c.saveScreenshot(step, obs.Screenshot)

		dec, err := c.decide(ctx, obs)
		if err != nil {
			return schemas.StatusFatal, 0, lastURL, err
		}

		// Goal commit: the claim stored last step commits now that its
		// action has executed and the post-action state is captured. The
		// stored confidence decides; the fresh decision is not consulted
		// and is never executed on this path.
		if c.pending != nil {
			if c.pending.Confidence >= c.cfg.Agent.GoalConfidence {
				c.logger.Info("Goal claim committed.",
					zap.Int("claimed_at_step", c.pending.Step),
					zap.Float64("confidence", c.pending.Confidence),
				)
				return schemas.StatusSuccess, c.pending.Confidence, obs.URL, nil
			}
			c.logger.Info("Goal claim below threshold at commit; discarding.",
				zap.Float64("confidence", c.pending.Confidence),
				zap.Float64("threshold", c.cfg.Agent.GoalConfidence),
			)
			c.pending = nil
		}

		// A fresh claim goes into the one-slot buffer and is verified on
		// the next pass instead of ending the run now.
		if dec.GoalAchieved {
			c.pending = &schemas.PendingGoalClaim{
				Step:       step,
				Confidence: dec.Confidence,
				Reasoning:  dec.Reasoning,
				ClaimedAt:  time.Now(),
			}
			c.logger.Info("Goal claimed; deferring confirmation one step.",
				zap.Float64("confidence", dec.Confidence),
			)
		}

		outcome := c.act(ctx, dec, obs)
		c.history.Add(schemas.HistoryEntry{
			Step:      step,
			URL:       obs.URL,
			Decision:  dec,
			Outcome:   outcome,
			Timestamp: time.Now(),
		})

		if err := c.session.Settle(ctx); err != nil {
			if errors.Is(err, schemas.ErrPageClosed) {
				// The action may have closed the tab; the next pass will
				// promote or reopen.
				continue
			}
			if ctx.Err() != nil {
				return schemas.StatusFatal, 0, lastURL, err
			}
		}
	}

	return schemas.StatusExhausted, 0, lastURL, nil
}

// observe captures the page and folds in the run context the oracle
// needs. Perception gets one retry after a settle; a second failure is
// fatal.
func (c *Controller) observe(ctx context.Context, step int) (schemas.Observation, error) {
	// Cookie walls come back after navigations and tab switches, so the
	// scan runs before every observation. A miss just leaves the banner
	// for the oracle to deal with.
	if dismissed, err := c.perceiver.DismissConsent(ctx); err != nil {
		c.logger.Debug("Consent scan failed.", zap.Error(err))
	} else if dismissed {
		_ = c.session.Settle(ctx)
	}

	obs, err := c.perceiver.Observe(ctx)
	if err != nil {
		c.logger.Warn("Perception failed; settling and retrying once.", zap.Error(err))
		_ = c.session.Settle(ctx)
		obs, err = c.perceiver.Observe(ctx)
		if err != nil {
			return obs, err
		}
	}

	obs.Goal = c.cfg.Run.Goal
	obs.StepIndex = step
	obs.MaxSteps = c.cfg.Agent.MaxSteps
	obs.OpenTabs = c.session.Tabs()
	obs.History = c.history.Window()
	obs.PendingClaim = c.pending
	for _, s := range c.secrets {
		obs.Secrets = append(obs.Secrets, schemas.SecretHint{Name: s.Name, Category: s.Category})
	}
	return obs, nil
}

// decide asks the oracle, re-asking once on a malformed answer. When the
// oracle fails twice the loop falls back to clicking the best-ranked
// element rather than dying.
func (c *Controller) decide(ctx context.Context, obs schemas.Observation) (schemas.Decision, error) {
	dec, err := c.oracle.Decide(ctx, obs)
	if err == nil {
		return dec, nil
	}
	if errors.Is(err, schemas.ErrOracleMalformed) {
		c.logger.Warn("Oracle answer malformed; asking again.", zap.Error(err))
		if dec, err = c.oracle.Decide(ctx, obs); err == nil {
			return dec, nil
		}
	}
	if ctx.Err() != nil {
		return schemas.Decision{}, ctx.Err()
	}

	c.logger.Error("Oracle failed twice; using fallback decision.", zap.Error(err))
	return fallbackDecision(obs), nil
}

// fallbackDecision picks the top-ranked element to click, or a no-op
// claim-free wait when the page has nothing interactive.
func fallbackDecision(obs schemas.Observation) schemas.Decision {
	if len(obs.Elements) == 0 {
		return schemas.Decision{
			Action:             schemas.ActionClick,
			Coordinates:        &schemas.Point{X: 1, Y: 1},
			ElementDescription: "page corner",
			Reasoning:          "oracle unavailable and no elements detected; waiting for the page to change",
			Confidence:         0,
		}
	}
	idx := obs.Elements[0].Index
	return schemas.Decision{
		Action:             schemas.ActionClick,
		ElementIndex:       &idx,
		ElementDescription: obs.Elements[0].Text,
		Reasoning:          "oracle unavailable; probing the most prominent element",
		Confidence:         0,
	}
}

// act executes the decision. An unresolved target gets one more chance
// against a freshly extracted element list, since the page may have
// mutated between perception and execution. Remaining failures are
// recorded, not fatal; the next observation shows the loop where it ended
// up.
func (c *Controller) act(ctx context.Context, dec schemas.Decision, obs schemas.Observation) schemas.ExecutionOutcome {
	outcome, err := c.executor.Execute(ctx, dec, obs)
	if err == nil {
		return outcome
	}

	if errors.Is(err, schemas.ErrElementNotResolved) {
		c.logger.Warn("Target not resolved; re-extracting and retrying once.",
			zap.String("action", string(dec.Action)),
			zap.String("target", dec.ElementDescription),
		)
		if fresh, perr := c.perceiver.Observe(ctx); perr == nil {
			fresh.Goal = obs.Goal
			outcome, err = c.executor.Execute(ctx, dec, fresh)
			if err == nil {
				return outcome
			}
		}
	}

	c.logger.Warn("Action did not complete.",
		zap.String("action", string(dec.Action)),
		zap.Error(err),
	)
	return outcome
}

// saveFinalScreenshot persists the post-run page state on every terminal
// path. It runs on its own deadline so a canceled run context cannot
// block the artifact flush.
func (c *Controller) saveFinalScreenshot() string {
	shotCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	png, err := c.session.Screenshot(shotCtx)
	if err != nil || len(png) == 0 {
		c.logger.Warn("Final screenshot not captured.", zap.Error(err))
		return ""
	}
	path := filepath.Join(c.cfg.Run.OutputDir, "final.png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		c.logger.Warn("Saving final screenshot failed.", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}

func (c *Controller) saveScreenshot(step int, png []byte) {
	if len(png) == 0 {
		return
	}
	path := filepath.Join(c.cfg.Run.OutputDir, fmt.Sprintf("step-%02d.png", step))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		c.logger.Warn("Saving screenshot failed.", zap.String("path", path), zap.Error(err))
		return
	}
	c.screenshots = append(c.screenshots, path)
}

func (c *Controller) writeReport(report schemas.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(c.cfg.Run.OutputDir, "report.json")
	return os.WriteFile(path, data, 0o644)
}
