package browser

import (
	"sync"

	"github.com/Imetomi/bugninja-cli/api/schemas"
)

// tabEntry is the registry's view of a single tab.
type tabEntry struct {
	id        string
	url       string
	title     string
	createSeq uint64
	activeSeq uint64
}

// registry tracks open tabs and which one is active. It is pure
// bookkeeping; the Session owns the CDP side of each tab.
type registry struct {
	mu       sync.Mutex
	tabs     map[string]*tabEntry
	seq      uint64
	activeID string
}

func newRegistry() *registry {
	return &registry{tabs: make(map[string]*tabEntry)}
}

// add registers a tab. New tabs become active immediately, mirroring how
// the browser foregrounds a freshly opened page.
func (r *registry) add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tabs[id]; exists {
		return
	}
	r.seq++
	r.tabs[id] = &tabEntry{id: id, createSeq: r.seq, activeSeq: r.seq}
	r.activeID = id
}

// remove drops a tab. If it was the active one, the most recently active
// remaining tab is promoted. Returns the new active id ("" when the
// session is now empty) and whether a promotion happened.
func (r *registry) remove(id string) (newActive string, promoted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tabs[id]; !exists {
		return r.activeID, false
	}
	delete(r.tabs, id)
	if r.activeID != id {
		return r.activeID, false
	}

	r.activeID = ""
	var best *tabEntry
	for _, t := range r.tabs {
		if best == nil || t.activeSeq > best.activeSeq {
			best = t
		}
	}
	if best != nil {
		r.activeID = best.id
		return best.id, true
	}
	return "", true
}

// activate marks a tab as the active one.
func (r *registry) activate(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, exists := r.tabs[id]
	if !exists {
		return false
	}
	r.seq++
	t.activeSeq = r.seq
	r.activeID = id
	return true
}

// setLocation records the last known URL and title of a tab.
func (r *registry) setLocation(id, url, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, exists := r.tabs[id]; exists {
		t.url = url
		t.title = title
	}
}

// active returns the current active tab id, or "" for an empty session.
func (r *registry) active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// contains reports whether the tab is still registered.
func (r *registry) contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.tabs[id]
	return exists
}

// empty reports whether no tabs remain.
func (r *registry) empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs) == 0
}

// digest lists the open tabs in creation order.
func (r *registry) digest() []schemas.TabDigest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.TabDigest, 0, len(r.tabs))
	for _, t := range r.tabs {
		out = append(out, schemas.TabDigest{
			ID:     t.id,
			URL:    t.url,
			Title:  t.title,
			Active: t.id == r.activeID,
		})
	}
	// Insertion-order sort over the small tab set.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && r.tabs[out[j-1].ID].createSeq > r.tabs[out[j].ID].createSeq; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
