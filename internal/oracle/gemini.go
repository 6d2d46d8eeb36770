package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Imetomi/bugninja-cli/api/schemas"
	"github.com/Imetomi/bugninja-cli/internal/config"
)

// GeminiOracle implements schemas.OracleClient on top of the Gemini API.
// Each Decide call sends the screenshot plus the textual page digest and
// expects a single structured-JSON decision back.
type GeminiOracle struct {
	client *genai.Client
	cfg    config.OracleConfig
	logger *zap.Logger
}

// NewGeminiOracle initializes the client. The API key is required.
func NewGeminiOracle(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (*GeminiOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiOracle{
		client: client,
		cfg:    cfg,
		logger: logger.Named("oracle.gemini"),
	}, nil
}

// decisionSchema constrains the model to the decision shape. Optional
// fields stay out of Required so the model can omit them.
var decisionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"action":              {Type: genai.TypeString, Enum: []string{"click", "type"}},
		"element_index":       {Type: genai.TypeInteger},
		"element_description": {Type: genai.TypeString},
		"coordinates": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"x": {Type: genai.TypeNumber},
				"y": {Type: genai.TypeNumber},
			},
		},
		"input_text":    {Type: genai.TypeString},
		"reasoning":     {Type: genai.TypeString},
		"goal_achieved": {Type: genai.TypeBoolean},
		"confidence":    {Type: genai.TypeNumber},
	},
	Required: []string{"action", "element_description", "reasoning", "goal_achieved", "confidence"},
}

// Decide sends one observation and returns the model's decision. Transient
// API failures are retried with exponential backoff; exhausting the retries
// maps to ErrOracleUnavailable, an unparseable answer to ErrOracleMalformed.
func (o *GeminiOracle) Decide(ctx context.Context, obs schemas.Observation) (schemas.Decision, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.APITimeout)
	defer cancel()

	parts := []*genai.Part{genai.NewPartFromText(buildUserPrompt(obs))}
	if len(obs.Screenshot) > 0 {
		parts = append(parts, genai.NewPartFromBytes(obs.Screenshot, "image/png"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(o.cfg.Temperature),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    decisionSchema,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 0

	var text string
	operation := func() error {
		start := time.Now()
		resp, err := o.client.Models.GenerateContent(callCtx, o.cfg.Model, contents, genCfg)
		if err != nil {
			o.logger.Warn("Gemini call failed, retrying.", zap.Error(err))
			return err
		}
		text = resp.Text()
		if text == "" {
			return backoff.Permanent(fmt.Errorf("gemini returned no text candidate"))
		}
		o.logger.Debug("Gemini decision received.",
			zap.Duration("duration", time.Since(start)),
			zap.Int("response_bytes", len(text)),
		)
		return nil
	}

	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.cfg.MaxRetries)), callCtx)
	if err := backoff.Retry(operation, retryPolicy); err != nil {
		return schemas.Decision{}, fmt.Errorf("%w: %v", schemas.ErrOracleUnavailable, err)
	}

	return ParseDecision(text)
}

// Close releases the client. The genai client holds no connection state
// that needs explicit teardown, so this is a no-op kept for the interface.
func (o *GeminiOracle) Close() error { return nil }
