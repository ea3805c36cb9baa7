// Package pool implements the Pool (C8): a mutex-guarded registry of
// runners tracked by idle/busy state and capability tags.
package pool

import (
	"sort"
	"sync"

	"github.com/tzervas/embeddenator/internal/runner"
)

// Entry is one pool member: a runner plus the capability tags it was
// registered with.
type Entry struct {
	Runner       *runner.Runner
	Capabilities map[string]bool
}

// Pool tracks runners by idle/busy state and capability tag, mirroring
// the platform's authoritative busy bit rather than local job-dispatch
// bookkeeping.
type Pool struct {
	mu      sync.Mutex
	entries map[int]*Entry // keyed by runner.Spec.ID
	idle    map[int]bool
	busy    map[int]bool
}

// New constructs an empty Pool.
func New() *Pool {
	return &Pool{
		entries: map[int]*Entry{},
		idle:    map[int]bool{},
		busy:    map[int]bool{},
	}
}

// Add registers a runner as idle with the given capability tags.
func (p *Pool) Add(id int, r *runner.Runner, capabilities []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	caps := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}
	p.entries[id] = &Entry{Runner: r, Capabilities: caps}
	p.idle[id] = true
}

// Remove drops a runner from the pool entirely.
func (p *Pool) Remove(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
	delete(p.idle, id)
	delete(p.busy, id)
}

// MarkBusy moves a runner from idle to busy.
func (p *Pool) MarkBusy(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[id]; !ok {
		return
	}
	delete(p.idle, id)
	p.busy[id] = true
}

// MarkIdle moves a runner from busy to idle.
func (p *Pool) MarkIdle(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[id]; !ok {
		return
	}
	delete(p.busy, id)
	p.idle[id] = true
}

// PickIdle returns the id of the oldest idle runner satisfying every
// required capability tag, or false if none qualifies. Required being
// empty matches the first available idle runner (§4.8 pick_idle
// semantics). Runner ids are assigned monotonically, so the lowest
// qualifying id is the oldest-idle one.
func (p *Pool) PickIdle(required []string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range sortedIDs(p.idle) {
		entry := p.entries[id]
		if entry == nil {
			continue
		}
		if hasAllCapabilities(entry.Capabilities, required) {
			return id, true
		}
	}
	return 0, false
}

func hasAllCapabilities(have map[string]bool, required []string) bool {
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}

// Counts returns the current (total, idle, busy) runner counts.
func (p *Pool) Counts() (total, idle, busy int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries), len(p.idle), len(p.busy)
}

// IdleIDs returns the ids of every idle runner, oldest (lowest id) first.
func (p *Pool) IdleIDs() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedIDs(p.idle)
}

// sortedIDs returns the keys of a bool-set map in ascending order. Caller
// must hold p.mu.
func sortedIDs(set map[int]bool) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Get returns the entry for id, or nil if absent.
func (p *Pool) Get(id int) *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[id]
}

// IDs returns every runner id currently tracked by the pool.
func (p *Pool) IDs() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	return ids
}
