package schemas

import "time"

// ActionKind defines the kind of browser action the agent can take.
type ActionKind string

const (
	ActionClick ActionKind = "click"
	ActionType  ActionKind = "type"
)

// RunStatus describes how an agent run ended.
type RunStatus string

const (
	StatusSuccess   RunStatus = "success"
	StatusExhausted RunStatus = "exhausted"
	StatusFatal     RunStatus = "fatal"
)

// ElementTier orders elements by interaction priority on a 1..5 scale.
// Lower is better. Elements inside a modal overlay are promoted one tier,
// since the overlay blocks interaction with everything behind it.
type ElementTier int

const (
	TierCallToAction ElementTier = iota + 1 // native control carrying action text
	TierControl                             // buttons, links, inputs
	TierSecondary                           // selects, textareas, lesser widgets
	TierGeneric                             // clickable containers
	TierInert                               // disabled controls
)

// BoundingBox is an element's layout rectangle in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a viewport coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Element is a single interactive element harvested from the live page.
type Element struct {
	Index       int         `json:"index"`
	Tag         string      `json:"tag"`
	Role        string      `json:"role,omitempty"`
	Type        string      `json:"type,omitempty"`
	Box         BoundingBox `json:"box"`
	CenterX     float64     `json:"center_x"`
	CenterY     float64     `json:"center_y"`
	Text        string      `json:"text,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
	AriaLabel   string      `json:"aria_label,omitempty"`
	HTMLID      string      `json:"html_id,omitempty"`
	Classes     string      `json:"classes,omitempty"`
	Name        string      `json:"name,omitempty"`
	Value       string      `json:"value,omitempty"`
	Href        string      `json:"href,omitempty"`
	Disabled    bool        `json:"disabled,omitempty"`
	InOverlay   bool        `json:"in_overlay,omitempty"`
	Tier        ElementTier `json:"tier"`
}

// Center returns the element's midpoint in viewport coordinates.
func (e Element) Center() Point {
	return Point{X: e.CenterX, Y: e.CenterY}
}

// IsTextInput reports whether typing into the element makes sense.
func (e Element) IsTextInput() bool {
	switch e.Tag {
	case "input", "textarea":
		return true
	}
	return e.Role == "textbox" || e.Role == "searchbox" || e.Role == "combobox"
}

// Observation is everything the oracle sees for one decision: the visual
// state, the structured element digest, and the run context.
type Observation struct {
	Goal         string         `json:"goal"`
	StepIndex    int            `json:"step_index"`
	MaxSteps     int            `json:"max_steps"`
	URL          string         `json:"url"`
	Title        string         `json:"title"`
	Screenshot   []byte         `json:"-"`
	Elements     []Element      `json:"elements"`
	OpenTabs     []TabDigest    `json:"open_tabs,omitempty"`
	History      []HistoryEntry `json:"history,omitempty"`
	Secrets      []SecretHint   `json:"secrets,omitempty"`
	PendingClaim *PendingGoalClaim `json:"pending_claim,omitempty"`
}

// TabDigest is a one-line summary of an open tab.
type TabDigest struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// SecretHint names an available credential without exposing its value.
// The oracle requests a secret by name; the executor substitutes the value.
type SecretHint struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Decision is the oracle's answer for one step.
type Decision struct {
	Action             ActionKind `json:"action"`
	ElementIndex       *int       `json:"element_index,omitempty"`
	ElementDescription string     `json:"element_description,omitempty"`
	Coordinates        *Point     `json:"coordinates,omitempty"`
	InputText          string     `json:"input_text,omitempty"`
	Reasoning          string     `json:"reasoning"`
	GoalAchieved       bool       `json:"goal_achieved"`
	Confidence         float64    `json:"confidence"`
}

// PendingGoalClaim is the one-slot buffer for delayed goal confirmation.
// A goal_achieved answer is held for one step and committed only when
// the following observation still supports it.
type PendingGoalClaim struct {
	Step       int       `json:"step"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

// ExecutionOutcome reports how an action landed on the page.
type ExecutionOutcome struct {
	Success  bool   `json:"success"`
	Resolved bool   `json:"resolved"`
	Strategy string `json:"strategy,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// HistoryEntry is one completed step in the conversation history.
type HistoryEntry struct {
	Step      int              `json:"step"`
	URL       string           `json:"url"`
	Decision  Decision         `json:"decision"`
	Outcome   ExecutionOutcome `json:"outcome"`
	Timestamp time.Time        `json:"timestamp"`
}

// RunReport is the final artifact written to the output directory.
type RunReport struct {
	RunID       string         `json:"run_id"`
	Goal        string         `json:"goal"`
	StartURL    string         `json:"start_url"`
	Status      RunStatus      `json:"status"`
	StepsTaken  int            `json:"steps_taken"`
	MaxSteps    int            `json:"max_steps"`
	FinalURL    string         `json:"final_url,omitempty"`
	Confidence  float64        `json:"confidence,omitempty"`
	Error       string         `json:"error,omitempty"`
	History     []HistoryEntry `json:"history"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	OutputDir   string         `json:"output_dir"`
	VideoFiles  []string       `json:"video_files,omitempty"`
	Screenshots []string       `json:"screenshots,omitempty"`
	// FinalScreenshot is the post-run capture, taken after the loop ends
	// on every terminal path.
	FinalScreenshot string `json:"final_screenshot,omitempty"`
}

// ExitCode maps a run status to the process exit code.
func (s RunStatus) ExitCode() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusExhausted:
		return 2
	default:
		return 1
	}
}
