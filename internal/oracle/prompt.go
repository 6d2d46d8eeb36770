package oracle

import (
	"fmt"
	"strings"

	"github.com/Imetomi/bugninja-cli/api/schemas"
)

const systemPrompt = `You are a browser automation agent driving a real web page toward a user goal.

Each turn you receive a screenshot of the page plus a numbered digest of its interactive elements. Respond with a single JSON object and nothing else:

{
  "action": "click" | "type",
  "element_index": <index from the digest, if you chose one>,
  "element_description": "<short description of the target, always>",
  "coordinates": {"x": <px>, "y": <px>} (only if no digest entry fits),
  "input_text": "<text to type, required for type actions>",
  "reasoning": "<one sentence on why this step advances the goal>",
  "goal_achieved": true | false,
  "confidence": <0.0 to 1.0>
}

Rules:
- Prefer element_index over coordinates. Coordinates are a last resort.
- To use a stored secret, write its NAME in input_text exactly as listed
  under "Available secrets" (for example EMAIL or PASSWORD). Never invent
  credential values.
- Handle cookie banners and consent dialogs before anything else.
- Set goal_achieved true only when the current page already shows the goal
  is complete. State your evidence in reasoning.
- If asked to re-verify a previous goal claim, confirm it only if the page
  still supports it.`

// buildUserPrompt renders the observation into the turn prompt that
// accompanies the screenshot.
func buildUserPrompt(obs schemas.Observation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Goal: %s\n", obs.Goal)
	fmt.Fprintf(&b, "Step %d of %d\n", obs.StepIndex+1, obs.MaxSteps)
	fmt.Fprintf(&b, "Current URL: %s\nPage title: %s\n", obs.URL, obs.Title)

	if obs.PendingClaim != nil {
		fmt.Fprintf(&b, "\nYou previously claimed the goal was achieved (step %d, confidence %.2f): %s\n",
			obs.PendingClaim.Step+1, obs.PendingClaim.Confidence, obs.PendingClaim.Reasoning)
		b.WriteString("Re-verify that claim against the current page before deciding.\n")
	}

	if len(obs.OpenTabs) > 0 {
		b.WriteString("\nOpen tabs:\n")
		for _, tab := range obs.OpenTabs {
			marker := " "
			if tab.Active {
				marker = "*"
			}
			fmt.Fprintf(&b, "%s %s - %s\n", marker, tab.URL, tab.Title)
		}
	}

	b.WriteString("\nInteractive elements:\n")
	if len(obs.Elements) == 0 {
		b.WriteString("(none detected)\n")
	}
	writeElementGroups(&b, obs.Elements)

	if len(obs.Secrets) > 0 {
		b.WriteString("\nAvailable secrets (reference by NAME, values are withheld):\n")
		for _, s := range obs.Secrets {
			fmt.Fprintf(&b, "- %s (%s)\n", s.Name, s.Category)
		}
	}

	if len(obs.History) > 0 {
		b.WriteString("\nRecent steps:\n")
		for _, h := range obs.History {
			status := "ok"
			if !h.Outcome.Success {
				status = "failed"
			}
			fmt.Fprintf(&b, "%d. %s %q (%s) at %s\n",
				h.Step+1, h.Decision.Action, h.Decision.ElementDescription, status, h.URL)
		}
	}

	return b.String()
}

var elementGroups = []struct {
	header string
	match  func(schemas.Element) bool
}{
	{"Search fields", isSearchField},
	{"Input fields", schemas.Element.IsTextInput},
	{"Buttons", func(el schemas.Element) bool {
		return el.Tag == "button" || el.Role == "button" || el.Type == "submit"
	}},
	{"Links", func(el schemas.Element) bool {
		return el.Tag == "a" || el.Role == "link"
	}},
	{"Other", func(schemas.Element) bool { return true }},
}

// writeElementGroups renders the digest in search/input/button/link
// sections so the model scans the likeliest targets first. Every element
// lands in exactly one section; indexes stay globally unique.
func writeElementGroups(b *strings.Builder, elements []schemas.Element) {
	used := make([]bool, len(elements))
	for _, g := range elementGroups {
		header := false
		for i, el := range elements {
			if used[i] || !g.match(el) {
				continue
			}
			used[i] = true
			if !header {
				fmt.Fprintf(b, "%s:\n", g.header)
				header = true
			}
			b.WriteString(describeElement(el))
			b.WriteByte('\n')
		}
	}
}

func isSearchField(el schemas.Element) bool {
	if !el.IsTextInput() {
		return false
	}
	if el.Type == "search" || el.Role == "searchbox" || el.Name == "q" {
		return true
	}
	for _, label := range []string{el.Placeholder, el.AriaLabel, el.Name} {
		if strings.Contains(strings.ToLower(label), "search") {
			return true
		}
	}
	return false
}

// describeElement renders one digest line the oracle can refer back to by
// index.
func describeElement(el schemas.Element) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%d] <%s>", el.Index, el.Tag))
	if el.Type != "" {
		parts = append(parts, "type="+el.Type)
	}
	if el.Role != "" {
		parts = append(parts, "role="+el.Role)
	}
	if el.Text != "" {
		parts = append(parts, fmt.Sprintf("text=%q", truncate(el.Text, 60)))
	}
	if el.Placeholder != "" {
		parts = append(parts, fmt.Sprintf("placeholder=%q", el.Placeholder))
	}
	if el.AriaLabel != "" {
		parts = append(parts, fmt.Sprintf("aria=%q", el.AriaLabel))
	}
	if el.HTMLID != "" {
		parts = append(parts, "id=#"+el.HTMLID)
	}
	if el.Name != "" {
		parts = append(parts, "name="+el.Name)
	}
	if el.Disabled {
		parts = append(parts, "disabled")
	}
	parts = append(parts, fmt.Sprintf("at(%.0f,%.0f)", el.CenterX, el.CenterY))
	return strings.Join(parts, " ")
}

// truncate shortens on rune boundaries so multi-byte text stays valid.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
