package perception

import (
	"sort"

	"github.com/Imetomi/bugninja-cli/api/schemas"
)

// rank orders elements tier-first, breaks ties inside a tier by on-screen
// area (larger first) and finally by DOM order via sort stability, then
// truncates to the cap and assigns stable indexes. The index an element
// carries here is the index the oracle refers back to. The order is
// advisory: it feeds the fallback default and the prompt digest, never
// overrides an explicit oracle target.
func rank(elements []schemas.Element, limit int) []schemas.Element {
	sort.SliceStable(elements, func(i, j int) bool {
		a, b := elements[i], elements[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		return a.Box.Width*a.Box.Height > b.Box.Width*b.Box.Height
	})
	if limit > 0 && len(elements) > limit {
		elements = elements[:limit]
	}
	for i := range elements {
		elements[i].Index = i
	}
	return elements
}
