package telemetry

import (
	"sync/atomic"
	"time"
)

// Counters aggregates engine activity for the diagnostics endpoint.
// All fields are atomics so hot paths never take a lock.
type Counters struct {
	ticksFired            atomic.Uint64
	ticksApplied          atomic.Uint64
	ticksSkippedPending   atomic.Uint64
	ticksSkippedPaused    atomic.Uint64
	ticksSkippedNoSession atomic.Uint64
	ticksFailed           atomic.Uint64
	ticksRejected         atomic.Uint64
	lastTickMillis        atomic.Int64

	resyncsSmooth atomic.Uint64
	resyncsForced atomic.Uint64
	rollovers     atomic.Uint64

	patchesApplied  atomic.Uint64
	patchesRejected atomic.Uint64

	combatInputs      atomic.Uint64
	combatRejected    atomic.Uint64
	combatTransitions atomic.Uint64
}

// Snapshot is the JSON shape served by /diagnostics.
type Snapshot struct {
	TicksFired            uint64 `json:"ticksFired"`
	TicksApplied          uint64 `json:"ticksApplied"`
	TicksSkippedPending   uint64 `json:"ticksSkippedPending"`
	TicksSkippedPaused    uint64 `json:"ticksSkippedPaused"`
	TicksSkippedNoSession uint64 `json:"ticksSkippedNoSession"`
	TicksFailed           uint64 `json:"ticksFailed"`
	TicksRejected         uint64 `json:"ticksRejected"`
	LastTickMillis        int64  `json:"lastTickMillis"`
	ResyncsSmooth         uint64 `json:"resyncsSmooth"`
	ResyncsForced         uint64 `json:"resyncsForced"`
	Rollovers             uint64 `json:"rollovers"`
	PatchesApplied        uint64 `json:"patchesApplied"`
	PatchesRejected       uint64 `json:"patchesRejected"`
	CombatInputs          uint64 `json:"combatInputs"`
	CombatRejected        uint64 `json:"combatRejected"`
	CombatTransitions     uint64 `json:"combatTransitions"`
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) RecordTickFired() {
	c.ticksFired.Add(1)
}

func (c *Counters) RecordTickApplied(duration time.Duration) {
	c.ticksApplied.Add(1)
	millis := duration.Milliseconds()
	if millis < 0 {
		millis = 0
	}
	c.lastTickMillis.Store(millis)
}

func (c *Counters) RecordTickSkipped(reason string) {
	switch reason {
	case "paused":
		c.ticksSkippedPaused.Add(1)
	case "no_session":
		c.ticksSkippedNoSession.Add(1)
	default:
		c.ticksSkippedPending.Add(1)
	}
}

func (c *Counters) RecordTickFailed() {
	c.ticksFailed.Add(1)
}

func (c *Counters) RecordTickRejected() {
	c.ticksRejected.Add(1)
}

func (c *Counters) RecordResync(forced bool) {
	if forced {
		c.resyncsForced.Add(1)
		return
	}
	c.resyncsSmooth.Add(1)
}

func (c *Counters) RecordRollover() {
	c.rollovers.Add(1)
}

func (c *Counters) RecordPatch(applied bool) {
	if applied {
		c.patchesApplied.Add(1)
		return
	}
	c.patchesRejected.Add(1)
}

func (c *Counters) RecordCombatInput(accepted bool) {
	c.combatInputs.Add(1)
	if !accepted {
		c.combatRejected.Add(1)
	}
}

func (c *Counters) RecordCombatTransition() {
	c.combatTransitions.Add(1)
}

// Add routes string-keyed increments onto the named counters so callers
// can stay on the Metrics interface.
func (c *Counters) Add(key string, delta uint64) {
	if c == nil {
		return
	}
	switch key {
	case "ticks_fired":
		c.ticksFired.Add(delta)
	case "ticks_applied":
		c.ticksApplied.Add(delta)
	case "ticks_failed":
		c.ticksFailed.Add(delta)
	case "ticks_rejected":
		c.ticksRejected.Add(delta)
	case "patches_applied":
		c.patchesApplied.Add(delta)
	case "patches_rejected":
		c.patchesRejected.Add(delta)
	case "combat_inputs":
		c.combatInputs.Add(delta)
	case "combat_rejected":
		c.combatRejected.Add(delta)
	case "combat_transitions":
		c.combatTransitions.Add(delta)
	}
}

// Store routes string-keyed gauges onto the named counters.
func (c *Counters) Store(key string, value uint64) {
	if c == nil {
		return
	}
	switch key {
	case "last_tick_millis":
		c.lastTickMillis.Store(int64(value))
	}
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		TicksFired:            c.ticksFired.Load(),
		TicksApplied:          c.ticksApplied.Load(),
		TicksSkippedPending:   c.ticksSkippedPending.Load(),
		TicksSkippedPaused:    c.ticksSkippedPaused.Load(),
		TicksSkippedNoSession: c.ticksSkippedNoSession.Load(),
		TicksFailed:           c.ticksFailed.Load(),
		TicksRejected:         c.ticksRejected.Load(),
		LastTickMillis:        c.lastTickMillis.Load(),
		ResyncsSmooth:        c.resyncsSmooth.Load(),
		ResyncsForced:        c.resyncsForced.Load(),
		Rollovers:            c.rollovers.Load(),
		PatchesApplied:       c.patchesApplied.Load(),
		PatchesRejected:      c.patchesRejected.Load(),
		CombatInputs:         c.combatInputs.Load(),
		CombatRejected:       c.combatRejected.Load(),
		CombatTransitions:    c.combatTransitions.Load(),
	}
}
