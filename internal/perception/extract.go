package perception

import (
	"strings"

	"github.com/Imetomi/bugninja-cli/api/schemas"
)

// elementHarvestJS collects the candidate interactive elements from the live
// DOM. Visibility is decided in-page: zero-sized rects, display:none,
// visibility:hidden, zero opacity and fully off-viewport elements are
// filtered before anything crosses the CDP boundary. Password values are
// never read.
const elementHarvestJS = `(() => {
	const out = [];
	const nodes = document.querySelectorAll(
		'a, button, input, select, textarea, summary, [role], [onclick], [tabindex], [contenteditable="true"]'
	);
	for (const el of nodes) {
		// A throwing geometry or attribute query skips the element, never
		// the whole harvest.
		try {
			const rect = el.getBoundingClientRect();
			if (rect.width === 0 || rect.height === 0) continue;
			const style = window.getComputedStyle(el);
			if (style.display === 'none' || style.visibility === 'hidden') continue;
			if (parseFloat(style.opacity) === 0) continue;
			if (rect.bottom < 0 || rect.right < 0 ||
				rect.top > window.innerHeight || rect.left > window.innerWidth) continue;
			let value = '';
			if ('value' in el && el.type !== 'password') {
				value = String(el.value || '').slice(0, 120);
			}
			out.push({
				tag: el.tagName.toLowerCase(),
				role: el.getAttribute('role') || '',
				type: el.getAttribute('type') || '',
				x: rect.x, y: rect.y, w: rect.width, h: rect.height,
				text: (el.innerText || '').trim().replace(/\s+/g, ' ').slice(0, 120),
				placeholder: el.getAttribute('placeholder') || '',
				aria: el.getAttribute('aria-label') || '',
				id: el.id || '',
				classes: typeof el.className === 'string' ? el.className.slice(0, 120) : '',
				name: el.getAttribute('name') || '',
				value: value,
				href: el.getAttribute('href') || '',
				disabled: !!el.disabled,
				overlay: !!el.closest('dialog, [role="dialog"], [aria-modal="true"], .modal, .popup, .overlay')
			});
		} catch (err) {
			continue;
		}
	}
	return out;
})()`

// rawElement mirrors the JSON shape produced by elementHarvestJS.
type rawElement struct {
	Tag         string  `json:"tag"`
	Role        string  `json:"role"`
	Type        string  `json:"type"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	W           float64 `json:"w"`
	H           float64 `json:"h"`
	Text        string  `json:"text"`
	Placeholder string  `json:"placeholder"`
	Aria        string  `json:"aria"`
	ID          string  `json:"id"`
	Classes     string  `json:"classes"`
	Name        string  `json:"name"`
	Value       string  `json:"value"`
	Href        string  `json:"href"`
	Disabled    bool    `json:"disabled"`
	Overlay     bool    `json:"overlay"`
}

func (r rawElement) toElement() schemas.Element {
	return schemas.Element{
		Tag:  r.Tag,
		Role: r.Role,
		Type: r.Type,
		Box: schemas.BoundingBox{
			X: r.X, Y: r.Y, Width: r.W, Height: r.H,
		},
		CenterX:     r.X + r.W/2,
		CenterY:     r.Y + r.H/2,
		Text:        r.Text,
		Placeholder: r.Placeholder,
		AriaLabel:   r.Aria,
		HTMLID:      r.ID,
		Classes:     r.Classes,
		Name:        r.Name,
		Value:       r.Value,
		Href:        r.Href,
		Disabled:    r.Disabled,
		InOverlay:   r.Overlay,
		Tier:        classifyTier(r),
	}
}

var actionWords = []string{
	"submit", "log in", "login", "sign in", "sign up", "continue", "search",
	"next", "accept", "agree", "buy", "checkout", "add to cart", "save",
	"send", "apply", "confirm", "ok",
}

// hasActionText reports whether the element's visible text or aria-label
// reads like a call to action.
func hasActionText(r rawElement) bool {
	for _, label := range []string{r.Text, r.Aria} {
		if label == "" || len(label) > 40 {
			continue
		}
		lower := strings.ToLower(label)
		for _, w := range actionWords {
			if strings.Contains(lower, w) {
				return true
			}
		}
	}
	return false
}

// classifyTier scores an element 1..5. Kind sets the base tier, action
// text lifts a native control to tier 1, overlay containment promotes one
// tier, disabled controls sink to the bottom.
func classifyTier(r rawElement) schemas.ElementTier {
	if r.Disabled {
		return schemas.TierInert
	}

	tier := schemas.TierGeneric
	switch r.Tag {
	case "a", "button", "input":
		tier = schemas.TierControl
	case "select", "textarea", "summary":
		tier = schemas.TierSecondary
	default:
		switch r.Role {
		case "button", "link", "textbox", "searchbox", "checkbox", "radio", "tab", "menuitem", "combobox":
			tier = schemas.TierControl
		case "switch", "slider", "option", "listbox":
			tier = schemas.TierSecondary
		}
	}

	if tier == schemas.TierControl && hasActionText(r) {
		tier = schemas.TierCallToAction
	}
	if r.Overlay && tier > schemas.TierCallToAction {
		tier--
	}
	return tier
}
