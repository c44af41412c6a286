package game

import (
	"context"
	"log"
	"sync"
	"time"

	"pubkey-quest/engine/internal/clock"
	"pubkey-quest/engine/internal/combat"
	"pubkey-quest/engine/internal/patch"
	"pubkey-quest/engine/internal/state"
	"pubkey-quest/engine/internal/telemetry"
	"pubkey-quest/engine/internal/tick"
	"pubkey-quest/engine/logging"
	"pubkey-quest/engine/logging/clocksync"
	sessionlog "pubkey-quest/engine/logging/session"
)

// DefaultFrameInterval paces the render loop at roughly sixty frames
// per second. The clock emits a new view only when the displayed
// minute actually changes, so the loop itself stays cheap.
const DefaultFrameInterval = 16 * time.Millisecond

// combatRefreshTimeout bounds the full-state refresh that follows a
// dismissed combat session.
const combatRefreshTimeout = 10 * time.Second

// Transport is everything the engine needs from the quest server: the
// tick endpoint plus the combat contract.
type Transport interface {
	tick.Transport
	combat.Transport
}

// Config tunes the engine's loops. Zero values use the defaults.
type Config struct {
	// TickPeriod overrides the sync cadence; zero keeps one firing per
	// game minute.
	TickPeriod time.Duration
	// FrameInterval overrides the render cadence.
	FrameInterval time.Duration
}

// Deps carries the engine's collaborators.
type Deps struct {
	Transport Transport
	Store     *state.Store
	Journal   *patch.Journal
	Publisher logging.Publisher
	Counters  *telemetry.Counters
	Weapons   combat.WeaponSource
	Logger    *log.Logger
	Wall      logging.Clock
	Actor     logging.EntityRef
}

// Hooks surface the engine's outputs to the presentation layer. All
// callbacks are optional and must not block.
type Hooks struct {
	// OnClock fires when the displayed clock changes, at most once per
	// frame.
	OnClock func(clock.Snapshot)
	// OnTick fires after every applied sync cycle.
	OnTick func(tick.Result)
	// OnCombat fires whenever the combat view-model should re-render.
	OnCombat func(combat.View)
	// OnCombatEnd fires when a combat session is dismissed or closed.
	OnCombatEnd func(combat.Outcome)
	// OnNotice carries transient user-facing messages.
	OnNotice func(message string)
	// OnLogLine receives staggered combat log lines.
	OnLogLine func(combat.RevealedLine)
}

// Engine composes the interpolating clock, the tick synchronizer, and
// the combat controller into one service. Start brings the session up
// in order: resume any live combat, force an initial sync, then run
// the periodic and render loops.
type Engine struct {
	cfg      Config
	hooks    Hooks
	logger   *log.Logger
	pub      logging.Publisher
	counters *telemetry.Counters
	actor    logging.EntityRef

	clock    *clock.Clock
	store    *state.Store
	syncer   *tick.Syncer
	combat   *combat.Controller
	revealer *combat.Revealer

	mu      sync.Mutex
	running bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// New wires the engine. Transport and Store are required; everything
// else falls back to a usable default.
func New(deps Deps, cfg Config, hooks Hooks) *Engine {
	if deps.Transport == nil || deps.Store == nil {
		return nil
	}
	counters := deps.Counters
	if counters == nil {
		counters = telemetry.NewCounters()
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	e := &Engine{
		cfg:      cfg,
		hooks:    hooks,
		logger:   logger,
		pub:      deps.Publisher,
		counters: counters,
		actor:    deps.Actor,
		clock:    clock.New(deps.Wall),
		store:    deps.Store,
	}

	e.revealer = combat.NewRevealer(e.emitLogLine, nil)

	e.syncer = tick.NewSyncer(tick.Deps{
		Transport: deps.Transport,
		Clock:     e.clock,
		Store:     deps.Store,
		Journal:   deps.Journal,
		Publisher: deps.Publisher,
		Logger:    logger,
		Counters:  counters,
		Wall:      deps.Wall,
		Actor:     deps.Actor,
	}, tick.Config{
		Period: cfg.TickPeriod,
	}, tick.Hooks{
		OnApplied:   e.emitTick,
		OnArrival:   e.noticeArrival,
		OnAutoPause: e.noticeAutoPause,
	})

	e.combat = combat.NewController(combat.Deps{
		Transport: deps.Transport,
		Weapons:   deps.Weapons,
		Revealer:  e.revealer,
		Publisher: deps.Publisher,
		Counters:  counters,
		Actor:     deps.Actor,
		Ticks:     e.syncer.Ticks,
	}, combat.Hooks{
		OnRender: e.emitCombat,
		OnNotice: e.emitNotice,
		OnEnded:  e.combatEnded,
	})

	return e
}

// Start brings the session up. It resumes a live combat session if the
// server reports one, forces the initial authoritative sync, then
// starts the periodic synchronizer and the render loop. Calling Start
// on a running or closed engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.running || e.closed {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	stop, done := e.stop, e.done
	e.mu.Unlock()

	found, err := e.combat.Resume(ctx)
	if err != nil && e.logger != nil {
		e.logger.Printf("[game] combat resume check failed: %v", err)
	}
	sessionlog.ResumeChecked(ctx, e.pub, e.actor, sessionlog.ResumePayload{ActiveCombat: found})

	e.syncer.ForceTick(ctx)
	e.syncer.Start(ctx)
	go e.frameLoop(stop, done)
}

// Stop halts the render loop and the synchronizer. The engine can be
// started again; queued log lines keep revealing. Safe to call more
// than once or before Start.
func (e *Engine) Stop() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stop, done := e.stop, e.done
	e.mu.Unlock()

	close(stop)
	<-done
	e.syncer.Stop()
}

// Close stops the engine and tears down the log revealer. A closed
// engine cannot be restarted. Safe to call more than once.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.Stop()
	e.revealer.Stop()
	return nil
}

// Running reports whether the loops are live.
func (e *Engine) Running() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Combat exposes the combat controller for input dispatch.
func (e *Engine) Combat() *combat.Controller {
	if e == nil {
		return nil
	}
	return e.combat
}

// ClockSnapshot returns the current interpolated clock view.
func (e *Engine) ClockSnapshot() clock.Snapshot {
	if e == nil {
		return clock.Snapshot{}
	}
	return e.clock.Snapshot()
}

// View returns the current save state.
func (e *Engine) View() state.SaveView {
	if e == nil {
		return state.SaveView{}
	}
	return e.store.View()
}

// ForceTick runs one immediate sync cycle, sharing the single-flight
// guard with the periodic loop.
func (e *Engine) ForceTick(ctx context.Context) bool {
	if e == nil {
		return false
	}
	return e.syncer.ForceTick(ctx)
}

// TogglePause flips the display freeze and reports the new state.
func (e *Engine) TogglePause() bool {
	if e == nil {
		return false
	}
	return e.clock.TogglePause()
}

// Ticks returns the synchronizer's firing ordinal.
func (e *Engine) Ticks() uint64 {
	if e == nil {
		return 0
	}
	return e.syncer.Ticks()
}

// frameLoop polls the clock at render cadence and emits a view only
// when the displayed minute, day, or pause state changes. Interpolation
// crossing midnight publishes the rollover here; correction-driven day
// jumps are published by the synchronizer, which sees them first.
func (e *Engine) frameLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := e.cfg.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last clock.Snapshot
	emitted := false
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := e.clock.Snapshot()
			if emitted && snap == last {
				continue
			}
			if emitted && last.Synced && snap.Synced &&
				snap.CurrentDay > last.CurrentDay &&
				last.TimeOfDay >= clock.MinutesPerDay-2 {
				e.counters.RecordRollover()
				clocksync.Rollover(context.Background(), e.pub, e.syncer.Ticks(),
					clocksync.RolloverPayload{Day: snap.CurrentDay})
			}
			last, emitted = snap, true
			e.emitClock(snap)
		}
	}
}

func (e *Engine) combatEnded(outcome combat.Outcome) {
	if e.hooks.OnCombatEnd != nil {
		e.hooks.OnCombatEnd(outcome)
	}
	// Combat outcomes change vitals, XP, and inventory server-side;
	// refresh the full state rather than waiting for the next firing.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), combatRefreshTimeout)
		defer cancel()
		e.syncer.ForceTick(ctx)
	}()
}

func (e *Engine) noticeArrival() {
	e.emitNotice("You have arrived at your destination.")
}

func (e *Engine) noticeAutoPause() {
	e.emitNotice("Time paused while you were away.")
}

func (e *Engine) emitClock(snap clock.Snapshot) {
	if e.hooks.OnClock != nil {
		e.hooks.OnClock(snap)
	}
}

func (e *Engine) emitTick(result tick.Result) {
	if e.hooks.OnTick != nil {
		e.hooks.OnTick(result)
	}
}

func (e *Engine) emitCombat(view combat.View) {
	if e.hooks.OnCombat != nil {
		e.hooks.OnCombat(view)
	}
}

func (e *Engine) emitNotice(message string) {
	if e.hooks.OnNotice != nil {
		e.hooks.OnNotice(message)
	}
}

func (e *Engine) emitLogLine(line combat.RevealedLine) {
	if e.hooks.OnLogLine != nil {
		e.hooks.OnLogLine(line)
	}
}
