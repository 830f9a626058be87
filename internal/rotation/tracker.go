// Package rotation tracks recently used personas, generational segments, and
// highlight personas so selection can apply anti-repeat pressure across
// program generations. State is process lifetime only.
package rotation

import "sync"

// Log capacities. When a log is full the oldest entry is evicted.
const (
	PersonaCapacity      = 200
	GenerationalCapacity = 60
	HighlightCapacity    = 40
)

// ringLog is a bounded dedup log: registering a name already present is a
// no-op, and the oldest entry is dropped when the log is full.
type ringLog struct {
	names []string
	index map[string]bool
	cap   int
}

func newRingLog(capacity int) *ringLog {
	return &ringLog{index: make(map[string]bool), cap: capacity}
}

func (l *ringLog) add(name string) {
	if name == "" || l.index[name] {
		return
	}
	if len(l.names) >= l.cap {
		delete(l.index, l.names[0])
		l.names = l.names[1:]
	}
	l.names = append(l.names, name)
	l.index[name] = true
}

func (l *ringLog) has(name string) bool {
	return l.index[name]
}

// position returns the index of a name in the log, oldest first, or -1.
func (l *ringLog) position(name string) int {
	if !l.index[name] {
		return -1
	}
	for i, n := range l.names {
		if n == name {
			return i
		}
	}
	return -1
}

func (l *ringLog) reset() {
	l.names = l.names[:0]
	l.index = make(map[string]bool)
}

// Tracker holds the three rotation logs. Safe for concurrent use.
type Tracker struct {
	mu           sync.Mutex
	personas     *ringLog
	generational *ringLog
	highlights   *ringLog
}

// NewTracker returns a Tracker with empty logs at the standard capacities.
func NewTracker() *Tracker {
	return &Tracker{
		personas:     newRingLog(PersonaCapacity),
		generational: newRingLog(GenerationalCapacity),
		highlights:   newRingLog(HighlightCapacity),
	}
}

// RegisterPersonas records personas that just shipped in a program.
func (t *Tracker) RegisterPersonas(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range names {
		t.personas.add(n)
	}
}

// RegisterGenerational records generational segments that just shipped.
func (t *Tracker) RegisterGenerational(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range names {
		t.generational.add(n)
	}
}

// RegisterHighlights records personas used as highlights. The highlight log
// is separate from the persona log so highlight freshness is judged on its
// own horizon.
func (t *Tracker) RegisterHighlights(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range names {
		t.highlights.add(n)
	}
}

// IsRecentPersona reports whether a persona is in the persona log.
func (t *Tracker) IsRecentPersona(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.personas.has(name)
}

// IsRecentGenerational reports whether a segment is in the generational log.
func (t *Tracker) IsRecentGenerational(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generational.has(name)
}

// IsRecentHighlight reports whether a persona is in the highlight log.
func (t *Tracker) IsRecentHighlight(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.highlights.has(name)
}

// HighlightPosition returns the persona's position in the highlight log,
// oldest first, or -1 when absent. The position feeds the recency tiers of
// the rotation weight.
func (t *Tracker) HighlightPosition(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.highlights.position(name)
}

// PersonaPosition returns the persona's position in the persona log, oldest
// first, or -1 when absent.
func (t *Tracker) PersonaPosition(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.personas.position(name)
}

// Reset clears all three logs.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.personas.reset()
	t.generational.reset()
	t.highlights.reset()
}
