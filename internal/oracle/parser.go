package oracle

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/Imetomi/bugninja-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Regex definitions use \x60 for backticks because Go raw strings cannot
// contain backticks.
var fencedObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

// ParseDecision turns a model response into a Decision. Markdown fences and
// conversational padding around the JSON object are tolerated; anything that
// does not yield a valid decision maps to ErrOracleMalformed.
func ParseDecision(response string) (schemas.Decision, error) {
	var dec schemas.Decision

	raw := strings.TrimSpace(response)
	if raw == "" {
		return dec, fmt.Errorf("%w: empty response", schemas.ErrOracleMalformed)
	}

	payload := raw
	if strings.HasPrefix(raw, "```") {
		if m := fencedObjectRegex.FindStringSubmatch(raw); len(m) > 1 {
			payload = m[1]
		}
	} else if !strings.HasPrefix(raw, "{") {
		fb := strings.Index(raw, "{")
		lb := strings.LastIndex(raw, "}")
		if fb == -1 || lb <= fb {
			return dec, fmt.Errorf("%w: no JSON object in response", schemas.ErrOracleMalformed)
		}
		payload = raw[fb : lb+1]
	}

	if err := json.Unmarshal([]byte(payload), &dec); err != nil {
		return dec, fmt.Errorf("%w: %v", schemas.ErrOracleMalformed, err)
	}
	if err := validateDecision(dec); err != nil {
		return dec, err
	}
	return dec, nil
}

func validateDecision(dec schemas.Decision) error {
	switch dec.Action {
	case schemas.ActionClick, schemas.ActionType:
	default:
		return fmt.Errorf("%w: unknown action %q", schemas.ErrOracleMalformed, dec.Action)
	}
	if dec.Confidence < 0 || dec.Confidence > 1 {
		return fmt.Errorf("%w: confidence %g out of range", schemas.ErrOracleMalformed, dec.Confidence)
	}
	// A goal-achieved claim may stand alone; anything else must reference
	// an element one way or another.
	if !dec.GoalAchieved && dec.ElementIndex == nil && dec.ElementDescription == "" && dec.Coordinates == nil {
		return fmt.Errorf("%w: decision carries no element reference", schemas.ErrOracleMalformed)
	}
	if dec.Action == schemas.ActionType && dec.InputText == "" {
		return fmt.Errorf("%w: type action without input_text", schemas.ErrOracleMalformed)
	}
	return nil
}
