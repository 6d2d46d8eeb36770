package perception

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Imetomi/bugninja-cli/api/schemas"
)

// PageDriver is the slice of the browser session that perception needs.
type PageDriver interface {
	Screenshot(ctx context.Context) ([]byte, error)
	EvaluateInto(ctx context.Context, expr string, out interface{}) error
	Location(ctx context.Context) (url, title string, err error)
}

// Perceiver captures the observable state of the active page: a screenshot
// and the ranked digest of interactive elements.
type Perceiver struct {
	driver      PageDriver
	maxElements int
	logger      *zap.Logger
}

// New creates a Perceiver over the given page driver.
func New(driver PageDriver, maxElements int, logger *zap.Logger) *Perceiver {
	return &Perceiver{
		driver:      driver,
		maxElements: maxElements,
		logger:      logger.Named("perception"),
	}
}

// Observe builds an Observation from the current page. A page with no
// interactive elements is a valid observation, not an error; the caller
// decides what to do with an empty digest.
func (p *Perceiver) Observe(ctx context.Context) (schemas.Observation, error) {
	var obs schemas.Observation

	url, title, err := p.driver.Location(ctx)
	if err != nil {
		return obs, fmt.Errorf("%w: reading location: %v", schemas.ErrPerception, err)
	}
	obs.URL = url
	obs.Title = title

	shot, err := p.driver.Screenshot(ctx)
	if err != nil {
		return obs, fmt.Errorf("%w: screenshot: %v", schemas.ErrPerception, err)
	}
	obs.Screenshot = shot

	var raw []rawElement
	if err := p.driver.EvaluateInto(ctx, elementHarvestJS, &raw); err != nil {
		return obs, fmt.Errorf("%w: element harvest: %v", schemas.ErrPerception, err)
	}

	elements := make([]schemas.Element, 0, len(raw))
	for _, r := range raw {
		elements = append(elements, r.toElement())
	}
	obs.Elements = rank(elements, p.maxElements)

	p.logger.Debug("Page observed.",
		zap.String("url", obs.URL),
		zap.Int("harvested", len(raw)),
		zap.Int("ranked", len(obs.Elements)),
	)
	return obs, nil
}
