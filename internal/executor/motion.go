package executor

import (
	"math"
	"math/rand"
	"time"

	"github.com/Imetomi/bugninja-cli/api/schemas"

	"github.com/Imetomi/bugninja-cli/internal/config"
)

// easeInOutCubic gives the cursor a smooth acceleration and deceleration
// profile along the path.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// bezierPath builds a quadratic Bezier trajectory from start to end. The
// control point sits in the middle third of the segment, displaced
// perpendicular to it by up to jitter pixels, so no two movements trace the
// same line.
func bezierPath(start, end schemas.Point, steps int, jitter float64, rng *rand.Rand) []schemas.Point {
	dx, dy := end.X-start.X, end.Y-start.Y
	dist := math.Hypot(dx, dy)
	if dist < 1 || steps < 2 {
		return []schemas.Point{end}
	}

	// Pick the control anchor somewhere in the middle third.
	at := (1.0 + 2.0*rng.Float64()) / 3.0
	ctrl := schemas.Point{X: start.X + dx*at, Y: start.Y + dy*at}
	if jitter > 0 {
		// Displace perpendicular to the travel direction.
		nx, ny := -dy/dist, dx/dist
		offset := (rng.Float64()*2 - 1) * jitter
		ctrl.X += nx * offset
		ctrl.Y += ny * offset
	}

	path := make([]schemas.Point, steps)
	for i := 0; i < steps; i++ {
		t := easeInOutCubic(float64(i) / float64(steps-1))
		omt := 1 - t
		path[i] = schemas.Point{
			X: omt*omt*start.X + 2*omt*t*ctrl.X + t*t*end.X,
			Y: omt*omt*start.Y + 2*omt*t*ctrl.Y + t*t*end.Y,
		}
	}
	path[steps-1] = end
	return path
}

// stepDelay draws a per-waypoint pause from the configured window.
func stepDelay(cfg config.MotionConfig, rng *rand.Rand) time.Duration {
	return randDelay(cfg.StepDelayMin, cfg.StepDelayMax, rng)
}

// keyDelay draws the inter-keystroke pause from the configured window.
func keyDelay(cfg config.MotionConfig, rng *rand.Rand) time.Duration {
	return randDelay(cfg.KeyDelayMin, cfg.KeyDelayMax, rng)
}

func randDelay(minMs, maxMs int, rng *rand.Rand) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	ms := minMs + rng.Intn(maxMs-minMs+1)
	return time.Duration(ms) * time.Millisecond
}
