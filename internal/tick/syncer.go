package tick

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"pubkey-quest/engine/internal/clock"
	"pubkey-quest/engine/internal/netclient"
	"pubkey-quest/engine/internal/patch"
	"pubkey-quest/engine/internal/state"
	"pubkey-quest/engine/internal/telemetry"
	"pubkey-quest/engine/internal/wire"
	"pubkey-quest/engine/logging"
	"pubkey-quest/engine/logging/clocksync"
	sessionlog "pubkey-quest/engine/logging/session"
)

// Skip reasons reported through hooks and telemetry.
const (
	// SkipPending indicates the previous round-trip is still in flight.
	SkipPending = "pending"
	// SkipPaused indicates the clock is paused so no time should pass.
	SkipPaused = "paused"
	// SkipNoSession indicates the transport has no identity bound yet.
	SkipNoSession = "no_session"
)

// ErrRejected wraps a success=false answer from the quest server.
var ErrRejected = errors.New("tick rejected")

// Transport is the slice of the HTTP client the synchronizer needs.
type Transport interface {
	Tick(ctx context.Context, req wire.TickRequestV1) (wire.TickResponseV1, error)
}

// Config tunes the firing cadence.
type Config struct {
	// Period between firings. Zero or negative falls back to one game
	// minute, which keeps interpolation and correction on the same beat.
	Period time.Duration
}

// Deps carries the injected collaborators.
type Deps struct {
	Transport Transport
	Clock     *clock.Clock
	Store     *state.Store
	Journal   *patch.Journal
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Counters  *telemetry.Counters
	Wall      logging.Clock
	Actor     logging.EntityRef
}

// Hooks let the engine observe firings without the synchronizer knowing
// about view-models. All callbacks are optional and must not block.
type Hooks struct {
	OnApplied   func(Result)
	OnArrival   func()
	OnAutoPause func()
	OnSkip      func(reason string)
	OnError     func(error)
}

// Result summarizes one applied sync cycle.
type Result struct {
	Tick     uint64
	Duration time.Duration
	Response wire.TickResponseV1
	View     state.SaveView
	Regions  []string
	Clock    clock.Snapshot
}

// Syncer drives the periodic tick round-trip. Each firing either
// dispatches exactly one request or is skipped; firings are never
// queued behind a slow response.
type Syncer struct {
	transport Transport
	clock     *clock.Clock
	store     *state.Store
	journal   *patch.Journal
	hooks     Hooks
	config    Config
	pub       logging.Publisher
	logger    telemetry.Logger
	counters  *telemetry.Counters
	wall      logging.Clock
	actor     logging.EntityRef

	flight *semaphore.Weighted
	ticks  atomic.Uint64

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSyncer wires the synchronizer. Clock, store and transport are
// required; everything else degrades to no-ops when absent.
func NewSyncer(deps Deps, cfg Config, hooks Hooks) *Syncer {
	if deps.Transport == nil || deps.Clock == nil || deps.Store == nil {
		return nil
	}
	wall := deps.Wall
	if wall == nil {
		wall = logging.SystemClock{}
	}
	counters := deps.Counters
	if counters == nil {
		counters = telemetry.NewCounters()
	}
	return &Syncer{
		transport: deps.Transport,
		clock:     deps.Clock,
		store:     deps.Store,
		journal:   deps.Journal,
		hooks:     hooks,
		config:    cfg,
		pub:       deps.Publisher,
		logger:    deps.Logger,
		counters:  counters,
		wall:      wall,
		actor:     deps.Actor,
		flight:    semaphore.NewWeighted(1),
	}
}

// Start launches the firing loop. Calling Start on a running syncer is
// a no-op.
func (s *Syncer) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop = stop
	s.done = done
	s.mu.Unlock()

	go s.run(ctx, stop, done)
}

// Stop halts the firing loop and waits for it to exit. An in-flight
// round-trip is not interrupted; it finishes on its own goroutine.
// Stop is idempotent.
func (s *Syncer) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop := s.stop
	done := s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

// Running reports whether the firing loop is active.
func (s *Syncer) Running() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pause freezes the clock; subsequent firings skip until Resume.
func (s *Syncer) Pause() {
	if s == nil {
		return
	}
	s.clock.Pause()
}

// Resume unfreezes the clock so firings flow again.
func (s *Syncer) Resume() {
	if s == nil {
		return
	}
	s.clock.Unpause()
}

// ForceTick fires immediately on the caller's goroutine, bypassing the
// pause check but not the single-flight guard. It reports whether the
// response was applied.
func (s *Syncer) ForceTick(ctx context.Context) bool {
	if s == nil {
		return false
	}
	tick := s.ticks.Add(1)
	s.counters.RecordTickFired()
	if !s.flight.TryAcquire(1) {
		s.skip(ctx, tick, SkipPending)
		return false
	}
	defer s.flight.Release(1)
	return s.roundTrip(ctx, tick, true)
}

// Ticks reports how many firings have been attempted.
func (s *Syncer) Ticks() uint64 {
	if s == nil {
		return 0
	}
	return s.ticks.Load()
}

func (s *Syncer) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	period := s.config.Period
	if period <= 0 {
		period = clock.GameMinute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

// fire dispatches one scheduled firing. The round-trip runs on its own
// goroutine so a slow response never stalls the ticker; the semaphore
// keeps at most one alive.
func (s *Syncer) fire(ctx context.Context) {
	tick := s.ticks.Add(1)
	s.counters.RecordTickFired()

	if s.clock.Paused() {
		s.skip(ctx, tick, SkipPaused)
		return
	}
	if !s.flight.TryAcquire(1) {
		s.skip(ctx, tick, SkipPending)
		return
	}
	go func() {
		defer s.flight.Release(1)
		s.roundTrip(ctx, tick, false)
	}()
}

func (s *Syncer) roundTrip(ctx context.Context, tick uint64, forced bool) bool {
	prevMinutes, prevDay := s.clock.SendView()

	start := s.wall.Now()
	resp, err := s.transport.Tick(ctx, wire.TickRequestV1{
		TimeOfDayMinutes: prevMinutes,
		CurrentDay:       prevDay,
	})
	elapsed := s.wall.Now().Sub(start)

	if err != nil {
		if errors.Is(err, netclient.ErrNoSession) {
			s.skip(ctx, tick, SkipNoSession)
			return false
		}
		s.counters.RecordTickFailed()
		clocksync.TickFailed(ctx, s.pub, tick, clocksync.FailurePayload{Error: err.Error()})
		if s.logger != nil {
			s.logger.Printf("[sync] tick %d failed: %v", tick, err)
		}
		if s.hooks.OnError != nil {
			s.hooks.OnError(err)
		}
		return false
	}
	if !resp.Success {
		s.counters.RecordTickRejected()
		clocksync.TickRejected(ctx, s.pub, tick, clocksync.RejectPayload{Message: resp.Message})
		if s.hooks.OnError != nil {
			s.hooks.OnError(fmt.Errorf("%w: %s", ErrRejected, resp.Message))
		}
		return false
	}

	s.apply(ctx, tick, resp, forced, prevMinutes, prevDay, elapsed)
	return true
}

func (s *Syncer) apply(ctx context.Context, tick uint64, resp wire.TickResponseV1, forced bool, prevMinutes, prevDay int, elapsed time.Duration) {
	arrived := resp.Data != nil && resp.Data.Arrived
	autoPause := resp.Data != nil && resp.Data.AutoPause

	s.reconcile(ctx, tick, resp, forced || arrived, prevMinutes, prevDay)

	delta := resp.Delta
	if delta != nil && delta.IsEmpty() {
		delta = nil
	}
	supplement := supplementDelta(resp.Data)

	var view state.SaveView
	var regions []string
	if delta != nil || supplement != nil {
		view = s.store.Mutate(func(v state.SaveView) state.SaveView {
			next := v
			if delta != nil {
				var touched []string
				next, touched = patch.Apply(next, *delta)
				regions = append(regions, touched...)
			}
			if supplement != nil {
				var touched []string
				next, touched = patch.Apply(next, *supplement)
				regions = append(regions, touched...)
			}
			return next
		})
		s.counters.RecordPatch(true)
		if s.journal != nil {
			if delta != nil {
				s.journal.Record(tick, *delta, patch.Regions(*delta))
			}
			if supplement != nil {
				s.journal.Record(tick, *supplement, patch.Regions(*supplement))
			}
		}
	} else {
		view = s.store.View()
	}

	if arrived {
		sessionlog.Arrival(ctx, s.pub, tick, s.actor)
		if s.hooks.OnArrival != nil {
			s.hooks.OnArrival()
		}
	}
	if autoPause {
		s.clock.Pause()
		sessionlog.AutoPause(ctx, s.pub, tick, s.actor)
		if s.hooks.OnAutoPause != nil {
			s.hooks.OnAutoPause()
		}
	}

	s.counters.RecordTickApplied(elapsed)
	clocksync.TickApplied(ctx, s.pub, tick, s.actor, clocksync.AppliedPayload{
		DurationMs: elapsed.Milliseconds(),
		HasDelta:   delta != nil,
		Arrived:    arrived,
		AutoPause:  autoPause,
	})
	if s.hooks.OnApplied != nil {
		s.hooks.OnApplied(Result{
			Tick:     tick,
			Duration: elapsed,
			Response: resp,
			View:     view,
			Regions:  regions,
			Clock:    s.clock.Snapshot(),
		})
	}
}

// reconcile feeds any time correction in the response to the clock.
// The data block wins over the delta when both carry time fields.
func (s *Syncer) reconcile(ctx context.Context, tick uint64, resp wire.TickResponseV1, force bool, prevMinutes, prevDay int) {
	var minutesPtr, dayPtr *patch.FlexInt
	if resp.Delta != nil {
		minutesPtr = resp.Delta.TimeOfDay
		dayPtr = resp.Delta.CurrentDay
	}
	if resp.Data != nil {
		if resp.Data.TimeOfDay != nil {
			minutesPtr = resp.Data.TimeOfDay
		}
		if resp.Data.CurrentDay != nil {
			dayPtr = resp.Data.CurrentDay
		}
	}
	if minutesPtr == nil {
		return
	}

	minutes := minutesPtr.Int()
	day := prevDay
	if dayPtr != nil {
		day = dayPtr.Int()
	}

	s.clock.Reconcile(minutes, day, force)
	s.counters.RecordResync(force)

	drift := (day-prevDay)*clock.MinutesPerDay + minutes - prevMinutes
	clocksync.Resync(ctx, s.pub, tick, clocksync.ResyncPayload{
		PreviousMinutes: prevMinutes,
		Minutes:         minutes,
		Day:             day,
		DriftMinutes:    drift,
		Forced:          force,
	})

	if day > prevDay {
		s.counters.RecordRollover()
		clocksync.Rollover(ctx, s.pub, tick, clocksync.RolloverPayload{Day: day})
	}
}

func (s *Syncer) skip(ctx context.Context, tick uint64, reason string) {
	s.counters.RecordTickSkipped(reason)
	clocksync.TickSkipped(ctx, s.pub, tick, clocksync.SkipPayload{Reason: reason})
	if s.hooks.OnSkip != nil {
		s.hooks.OnSkip(reason)
	}
}

// supplementDelta lifts the vitals block of a tick response into a
// patch so data corrections flow through the same appliers as deltas.
func supplementDelta(data *wire.TickDataV1) *patch.Delta {
	if data == nil {
		return nil
	}
	d := patch.Delta{
		HP:              data.HP,
		Fatigue:         data.Fatigue,
		Hunger:          data.Hunger,
		TravelProgress:  data.TravelProgress,
		ActiveEffects:   data.ActiveEffects,
		EnrichedEffects: data.EnrichedEffects,
	}
	if d.IsEmpty() {
		return nil
	}
	return &d
}
