package executor

import (
	"fmt"
	"strings"

	"github.com/Imetomi/bugninja-cli/api/schemas"
)

// Resolution names the strategy that located the target, in ladder order.
const (
	StrategyIndex       = "index"
	StrategyHTMLID      = "html_id"
	StrategyPlaceholder = "placeholder"
	StrategyName        = "name"
	StrategyText        = "text"
	StrategyHeuristic   = "heuristic"
	StrategyCoordinates = "coordinates"
)

// resolved is the outcome of the resolution ladder: either a concrete
// element or, on the last rung, a bare coordinate.
type resolved struct {
	element  *schemas.Element
	point    schemas.Point
	strategy string
}

// resolveTarget walks the strategy ladder until one rung produces a target.
// The ladder deliberately degrades from exact references down to raw
// coordinates so a slightly-off oracle answer still lands on something
// useful.
func resolveTarget(dec schemas.Decision, elements []schemas.Element) (resolved, error) {
	// 1. Exact index.
	if dec.ElementIndex != nil {
		if i := *dec.ElementIndex; i >= 0 && i < len(elements) {
			el := elements[i]
			return resolved{element: &el, point: el.Center(), strategy: StrategyIndex}, nil
		}
	}

	desc := strings.TrimSpace(dec.ElementDescription)
	lowDesc := strings.ToLower(desc)

	// 2. HTML id, tolerating a leading "#".
	if desc != "" {
		id := strings.TrimPrefix(desc, "#")
		for _, el := range elements {
			if el.HTMLID != "" && strings.EqualFold(el.HTMLID, id) {
				el := el
				return resolved{element: &el, point: el.Center(), strategy: StrategyHTMLID}, nil
			}
		}
	}

	// 3. Placeholder.
	if lowDesc != "" {
		for _, el := range elements {
			if el.Placeholder != "" && containsFold(el.Placeholder, lowDesc) {
				el := el
				return resolved{element: &el, point: el.Center(), strategy: StrategyPlaceholder}, nil
			}
		}
	}

	// 4. Name attribute.
	if lowDesc != "" {
		for _, el := range elements {
			if el.Name != "" && strings.EqualFold(el.Name, desc) {
				el := el
				return resolved{element: &el, point: el.Center(), strategy: StrategyName}, nil
			}
		}
	}

	// 5. Visible text or aria label.
	if lowDesc != "" {
		for _, el := range elements {
			if (el.Text != "" && containsFold(el.Text, lowDesc)) ||
				(el.AriaLabel != "" && containsFold(el.AriaLabel, lowDesc)) {
				el := el
				return resolved{element: &el, point: el.Center(), strategy: StrategyText}, nil
			}
		}
	}

	// 6. Intent heuristics.
	if el := heuristicMatch(dec, elements); el != nil {
		return resolved{element: el, point: el.Center(), strategy: StrategyHeuristic}, nil
	}

	// 7. Raw coordinates.
	if dec.Coordinates != nil {
		return resolved{point: *dec.Coordinates, strategy: StrategyCoordinates}, nil
	}

	return resolved{}, fmt.Errorf("%w: no strategy matched %q", schemas.ErrElementNotResolved, desc)
}

// heuristicMatch guesses a target from the decision's intent: type actions
// fall back to the first text input (search boxes first when the intent
// smells like a search), clicks fall back to a submit-looking button.
func heuristicMatch(dec schemas.Decision, elements []schemas.Element) *schemas.Element {
	lowDesc := strings.ToLower(dec.ElementDescription)

	if dec.Action == schemas.ActionType {
		wantSearch := strings.Contains(lowDesc, "search") || strings.Contains(strings.ToLower(dec.InputText), "search")
		var firstInput *schemas.Element
		for i := range elements {
			el := &elements[i]
			if !el.IsTextInput() || el.Disabled {
				continue
			}
			if isSearchBox(*el) && wantSearch {
				return el
			}
			if firstInput == nil {
				firstInput = el
			}
		}
		return firstInput
	}

	// Click: look for a submit-ish control.
	for i := range elements {
		el := &elements[i]
		if el.Disabled {
			continue
		}
		if el.Type == "submit" {
			return el
		}
		if el.Tag == "button" || el.Role == "button" {
			low := strings.ToLower(el.Text)
			for _, kw := range []string{"submit", "log in", "login", "sign in", "continue", "search", "go", "next"} {
				if strings.Contains(low, kw) {
					return el
				}
			}
		}
	}
	return nil
}

func isSearchBox(el schemas.Element) bool {
	return el.Type == "search" || el.Role == "searchbox" ||
		containsFold(el.Placeholder, "search") ||
		containsFold(el.AriaLabel, "search") ||
		containsFold(el.Name, "search") ||
		strings.EqualFold(el.Name, "q")
}

func containsFold(haystack, lowNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), lowNeedle)
}
