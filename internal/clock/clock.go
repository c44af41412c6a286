package clock

import (
	"fmt"
	"sync"
	"time"

	"pubkey-quest/engine/logging"
)

// GameMinute is the wall-clock duration of one in-game minute. The
// synchronizer fires on this same constant; if the two ever diverged,
// interpolation would run ahead of or behind authoritative corrections.
const GameMinute = 417 * time.Millisecond

const (
	MinutesPerDay = 1440
	NoonMinute    = 720
)

// snapToleranceMinutes is the drift beyond which a smooth correction
// gives up and snaps to the server value.
const snapToleranceMinutes = 3

// maxLeadMinutes bounds how far interpolation may run past the last
// authoritative value when corrections stop arriving.
const maxLeadMinutes = 5

// Clock holds the authoritative in-game time and produces interpolated
// readings between server corrections. All methods are safe for
// concurrent use.
type Clock struct {
	mu   sync.Mutex
	wall logging.Clock

	synced     bool
	baseAbs    int64 // (day-1)*1440 + minutes at capture
	capturedAt time.Time

	paused   bool
	pausedAt time.Time

	// displayFloor keeps the rendered value monotonic across smooth
	// corrections; a force resync resets it.
	displayFloor float64
}

// Snapshot is the renderable clock view.
type Snapshot struct {
	Hours       int     `json:"hours"`
	Minutes     int     `json:"minutes"`
	TimeOfDay   int     `json:"time_of_day"`
	CurrentDay  int     `json:"current_day"`
	DayFraction float64 `json:"day_fraction"`
	Synced      bool    `json:"synced"`
	Paused      bool    `json:"paused"`
}

// New constructs an unsynced clock. A nil wall source falls back to
// the system clock.
func New(wall logging.Clock) *Clock {
	if wall == nil {
		wall = logging.SystemClock{}
	}
	return &Clock{wall: wall}
}

// Reconcile accepts an authoritative minutes/day pair. Smooth
// corrections (force=false) keep the displayed value from jumping
// backward and snap only when drift exceeds tolerance; force=true
// adopts the server value immediately. The first correction always
// snaps and flips the clock to synced.
func (c *Clock) Reconcile(minutes, day int, force bool) {
	abs := normalizeAbs(minutes, day)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.wall.Now()

	if !c.synced || force {
		c.synced = true
		c.baseAbs = abs
		c.capturedAt = now
		c.displayFloor = float64(abs)
		if c.paused {
			c.pausedAt = now
		}
		return
	}

	displayed := c.displayLocked(now)
	drift := float64(abs) - displayed
	if drift > snapToleranceMinutes || drift < -snapToleranceMinutes {
		c.baseAbs = abs
		c.capturedAt = now
		c.displayFloor = float64(abs)
		if c.paused {
			c.pausedAt = now
		}
		return
	}

	c.baseAbs = abs
	c.capturedAt = now
	if c.paused {
		c.pausedAt = now
	}
	if displayed > c.displayFloor {
		c.displayFloor = displayed
	}
}

// Drift reports how far the displayed value currently leads (positive)
// or trails the last authoritative capture, in game minutes.
func (c *Clock) Drift() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.synced {
		return 0
	}
	return c.displayLocked(c.wall.Now()) - float64(c.baseAbs)
}

// Pause freezes the displayed time. Wall capture continues, so the
// authoritative base is untouched and a later Unpause resumes from the
// frozen value without a jump.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	c.pausedAt = c.wall.Now()
}

// Unpause resumes the display from the frozen value by shifting the
// capture instant forward over the paused span.
func (c *Clock) Unpause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.capturedAt = c.capturedAt.Add(c.wall.Now().Sub(c.pausedAt))
	c.paused = false
}

// TogglePause flips the pause state and reports the new value.
func (c *Clock) TogglePause() bool {
	c.mu.Lock()
	paused := c.paused
	c.mu.Unlock()
	if paused {
		c.Unpause()
		return false
	}
	c.Pause()
	return true
}

// Paused reports whether the display is frozen.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Synced reports whether any authoritative correction has arrived.
func (c *Clock) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}

// Snapshot returns the interpolated view. Before the first correction
// it renders the neutral noon placeholder rather than a fabricated
// time.
func (c *Clock) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.synced {
		return Snapshot{
			Hours:       NoonMinute / 60,
			Minutes:     0,
			TimeOfDay:   NoonMinute,
			CurrentDay:  1,
			DayFraction: float64(NoonMinute) / float64(MinutesPerDay),
			Synced:      false,
			Paused:      c.paused,
		}
	}

	displayed := c.displayLocked(c.wall.Now())
	if displayed > c.displayFloor {
		c.displayFloor = displayed
	} else {
		displayed = c.displayFloor
	}

	total := int(displayed)
	timeOfDay := total % MinutesPerDay
	day := total/MinutesPerDay + 1

	return Snapshot{
		Hours:       timeOfDay / 60,
		Minutes:     timeOfDay % 60,
		TimeOfDay:   timeOfDay,
		CurrentDay:  day,
		DayFraction: float64(timeOfDay) / float64(MinutesPerDay),
		Synced:      true,
		Paused:      c.paused,
	}
}

// SendView returns the minutes/day pair a tick request should carry.
// Unsynced clocks report the noon placeholder; the server's response
// supplies the real value.
func (c *Clock) SendView() (int, int) {
	snap := c.Snapshot()
	return snap.TimeOfDay, snap.CurrentDay
}

// displayLocked computes the raw interpolated absolute minute count,
// clamped so a stalled synchronizer cannot run the display arbitrarily
// far past the authoritative base.
func (c *Clock) displayLocked(now time.Time) float64 {
	reference := now
	if c.paused {
		reference = c.pausedAt
	}
	elapsed := reference.Sub(c.capturedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	lead := float64(elapsed) / float64(GameMinute)
	if lead > maxLeadMinutes {
		lead = maxLeadMinutes
	}
	return float64(c.baseAbs) + lead
}

// normalizeAbs folds out-of-range minutes into the day and converts
// the pair into absolute minutes since day one, midnight.
func normalizeAbs(minutes, day int) int64 {
	for minutes < 0 {
		minutes += MinutesPerDay
		day--
	}
	day += minutes / MinutesPerDay
	minutes %= MinutesPerDay
	if day < 1 {
		day = 1
	}
	return int64(day-1)*MinutesPerDay + int64(minutes)
}

// Format renders the 12-hour clock string, e.g. "12:00 PM".
func (s Snapshot) Format() string {
	suffix := "AM"
	if s.Hours >= 12 {
		suffix = "PM"
	}
	hour := s.Hours % 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%02d %s", hour, s.Minutes, suffix)
}
