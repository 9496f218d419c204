package auth

import (
	"sort"
	"sync"

	"isotope/internal/form"
)

// Drafts holds unsaved settings overrides per console session and section.
// Nothing here is persisted.
type Drafts struct {
	mu sync.Mutex
	m  map[string]map[string]form.Overrides
}

func NewDrafts() *Drafts {
	return &Drafts{m: make(map[string]map[string]form.Overrides)}
}

// Get returns a copy of the overrides for section, possibly empty.
func (d *Drafts) Get(sessionID, section string) form.Overrides {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.m[sessionID][section].Clone()
}

// Put stores o. Empty overrides remove the draft.
func (d *Drafts) Put(sessionID, section string, o form.Overrides) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(o) == 0 {
		d.discard(sessionID, section)
		return
	}
	byID, ok := d.m[sessionID]
	if !ok {
		byID = make(map[string]form.Overrides)
		d.m[sessionID] = byID
	}
	byID[section] = o.Clone()
}

func (d *Drafts) Discard(sessionID, section string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.discard(sessionID, section)
}

func (d *Drafts) discard(sessionID, section string) {
	delete(d.m[sessionID], section)
	if len(d.m[sessionID]) == 0 {
		delete(d.m, sessionID)
	}
}

// Drop forgets every draft of a session.
func (d *Drafts) Drop(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.m, sessionID)
}

// Sections lists the sections with pending edits, sorted.
func (d *Drafts) Sections(sessionID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.m[sessionID]))
	for s := range d.m[sessionID] {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Sweep drops the drafts of sessions for which live reports false and
// returns how many sessions were dropped.
func (d *Drafts) Sweep(live func(sessionID string) bool) int {
	d.mu.Lock()
	ids := make([]string, 0, len(d.m))
	for id := range d.m {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	n := 0
	for _, id := range ids {
		if !live(id) {
			d.Drop(id)
			n++
		}
	}
	return n
}
