package patch

import (
	"sync"
	"time"

	"pubkey-quest/engine/logging"
)

const defaultJournalCapacity = 32
const defaultJournalMaxAge = 30 * time.Second

// Entry is one applied delta kept for diagnostics.
type Entry struct {
	Seq     uint64    `json:"seq"`
	Time    time.Time `json:"time"`
	Tick    uint64    `json:"tick"`
	Regions []string  `json:"regions"`
	Delta   Delta     `json:"delta"`
}

// Journal keeps a rolling buffer of recently applied deltas so the
// observer and diagnostics endpoints can replay what changed. Entries
// age out by count and by retention window.
type Journal struct {
	mu       sync.RWMutex
	entries  []Entry
	nextSeq  uint64
	capacity int
	maxAge   time.Duration
	wall     logging.Clock
}

// NewJournal constructs a journal with the given capacity and
// retention window. Zero or negative values fall back to defaults.
func NewJournal(capacity int, maxAge time.Duration, wall logging.Clock) *Journal {
	if capacity <= 0 {
		capacity = defaultJournalCapacity
	}
	if maxAge <= 0 {
		maxAge = defaultJournalMaxAge
	}
	if wall == nil {
		wall = logging.SystemClock{}
	}
	return &Journal{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		maxAge:   maxAge,
		wall:     wall,
	}
}

// Record appends an applied delta and evicts anything past the
// retention limits.
func (j *Journal) Record(tick uint64, d Delta, regions []string) Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.wall.Now()
	j.nextSeq++
	entry := Entry{
		Seq:     j.nextSeq,
		Time:    now,
		Tick:    tick,
		Regions: append([]string(nil), regions...),
		Delta:   d,
	}
	j.entries = append(j.entries, entry)
	j.evictLocked(now)
	return entry
}

// Snapshot returns a copy of the retained entries, oldest first.
func (j *Journal) Snapshot() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	copied := make([]Entry, len(j.entries))
	copy(copied, j.entries)
	return copied
}

// Drain returns the retained entries, oldest first, and empties the
// journal. Sequence numbers keep counting across drains.
func (j *Journal) Drain() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.entries) == 0 {
		return nil
	}
	drained := make([]Entry, len(j.entries))
	copy(drained, j.entries)
	j.entries = j.entries[:0]
	return drained
}

// Len reports how many entries are retained.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

func (j *Journal) evictLocked(now time.Time) {
	cutoff := now.Add(-j.maxAge)
	firstLive := 0
	for firstLive < len(j.entries) && j.entries[firstLive].Time.Before(cutoff) {
		firstLive++
	}
	if over := len(j.entries) - firstLive - j.capacity; over > 0 {
		firstLive += over
	}
	if firstLive > 0 {
		j.entries = append(j.entries[:0], j.entries[firstLive:]...)
	}
}
