package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"pubkey-quest/engine/internal/clock"
	"pubkey-quest/engine/internal/combat"
	"pubkey-quest/engine/internal/patch"
	"pubkey-quest/engine/internal/state"
	"pubkey-quest/engine/internal/telemetry"
	"pubkey-quest/engine/internal/tick"
	"pubkey-quest/engine/internal/wire"
	"pubkey-quest/engine/logging"
	"pubkey-quest/engine/logging/clocksync"
	sessionlog "pubkey-quest/engine/logging/session"
)

type manualWall struct {
	mu  sync.Mutex
	now time.Time
}

func (w *manualWall) Now() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now
}

func (w *manualWall) Advance(d time.Duration) {
	w.mu.Lock()
	w.now = w.now.Add(d)
	w.mu.Unlock()
}

type fakeServer struct {
	mu          sync.Mutex
	tickResp    wire.TickResponseV1
	tickCalls   int
	ticked      chan struct{}
	active      wire.ActiveCombatResponseV1
	combatQueue []wire.CombatResponseV1
}

func newFakeServer() *fakeServer {
	return &fakeServer{ticked: make(chan struct{}, 16)}
}

func (f *fakeServer) Tick(ctx context.Context, req wire.TickRequestV1) (wire.TickResponseV1, error) {
	f.mu.Lock()
	f.tickCalls++
	resp := f.tickResp
	f.mu.Unlock()
	select {
	case f.ticked <- struct{}{}:
	default:
	}
	return resp, nil
}

func (f *fakeServer) tickCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickCalls
}

func (f *fakeServer) pushCombat(resps ...wire.CombatResponseV1) {
	f.mu.Lock()
	f.combatQueue = append(f.combatQueue, resps...)
	f.mu.Unlock()
}

func (f *fakeServer) popCombat() wire.CombatResponseV1 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.combatQueue) == 0 {
		return wire.CombatResponseV1{Success: true}
	}
	resp := f.combatQueue[0]
	f.combatQueue = f.combatQueue[1:]
	return resp
}

func (f *fakeServer) CombatStart(ctx context.Context) (wire.CombatResponseV1, error) {
	return f.popCombat(), nil
}

func (f *fakeServer) CombatAction(ctx context.Context, action string) (wire.CombatResponseV1, error) {
	return f.popCombat(), nil
}

func (f *fakeServer) CombatMove(ctx context.Context, dir int) (wire.CombatResponseV1, error) {
	return f.popCombat(), nil
}

func (f *fakeServer) CombatPass(ctx context.Context) (wire.CombatResponseV1, error) {
	return f.popCombat(), nil
}

func (f *fakeServer) CombatDeathSave(ctx context.Context) (wire.CombatResponseV1, error) {
	return f.popCombat(), nil
}

func (f *fakeServer) CombatEnd(ctx context.Context) (wire.CombatResponseV1, error) {
	return f.popCombat(), nil
}

func (f *fakeServer) ActiveCombat(ctx context.Context) (wire.ActiveCombatResponseV1, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

type recorder struct {
	mu     sync.Mutex
	events []logging.Event
}

func (r *recorder) Publish(_ context.Context, event logging.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) count(eventType logging.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, event := range r.events {
		if event.Type == eventType {
			n++
		}
	}
	return n
}

func timeResponse(minutes, day int) wire.TickResponseV1 {
	m := patch.FlexInt(minutes)
	d := patch.FlexInt(day)
	return wire.TickResponseV1{
		Success: true,
		Delta:   &patch.Delta{TimeOfDay: &m, CurrentDay: &d},
	}
}

type engineRig struct {
	engine   *Engine
	server   *fakeServer
	wall     *manualWall
	counters *telemetry.Counters
	events   *recorder

	clocks  chan clock.Snapshot
	ticks   chan tick.Result
	combats chan combat.View
	ends    chan combat.Outcome
	notices chan string
}

func newEngineRig(t *testing.T) *engineRig {
	t.Helper()
	rig := &engineRig{
		server:   newFakeServer(),
		wall:     &manualWall{now: time.Unix(1_700_000_000, 0)},
		counters: telemetry.NewCounters(),
		events:   &recorder{},
		clocks:   make(chan clock.Snapshot, 64),
		ticks:    make(chan tick.Result, 16),
		combats:  make(chan combat.View, 16),
		ends:     make(chan combat.Outcome, 4),
		notices:  make(chan string, 16),
	}
	rig.engine = New(Deps{
		Transport: rig.server,
		Store:     state.NewStore(),
		Journal:   patch.NewJournal(8, time.Minute, rig.wall),
		Publisher: rig.events,
		Counters:  rig.counters,
		Wall:      rig.wall,
		Actor:     logging.EntityRef{ID: "npub1test", Kind: logging.EntityKindPlayer},
	}, Config{
		TickPeriod:    time.Hour,
		FrameInterval: time.Millisecond,
	}, Hooks{
		OnClock:     func(s clock.Snapshot) { rig.clocks <- s },
		OnTick:      func(r tick.Result) { rig.ticks <- r },
		OnCombat:    func(v combat.View) { rig.combats <- v },
		OnCombatEnd: func(o combat.Outcome) { rig.ends <- o },
		OnNotice: func(msg string) {
			select {
			case rig.notices <- msg:
			default:
			}
		},
	})
	if rig.engine == nil {
		t.Fatalf("expected engine to construct")
	}
	return rig
}

func awaitClock(t *testing.T, ch <-chan clock.Snapshot, pred func(clock.Snapshot) bool) clock.Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if pred(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for clock emission")
		}
	}
}

func awaitSignal[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func TestStartPerformsInitialSync(t *testing.T) {
	rig := newEngineRig(t)
	rig.server.mu.Lock()
	rig.server.tickResp = timeResponse(700, 2)
	rig.server.mu.Unlock()

	rig.engine.Start(context.Background())
	defer rig.engine.Close()

	result := awaitSignal(t, rig.ticks, "initial sync")
	if result.Tick != 1 {
		t.Fatalf("expected first firing, got %d", result.Tick)
	}

	snap := rig.engine.ClockSnapshot()
	if !snap.Synced || snap.TimeOfDay != 700 || snap.CurrentDay != 2 {
		t.Fatalf("unexpected clock after initial sync: %+v", snap)
	}
	emitted := awaitClock(t, rig.clocks, func(s clock.Snapshot) bool { return s.Synced })
	if emitted.TimeOfDay != 700 || emitted.CurrentDay != 2 {
		t.Fatalf("unexpected emitted clock: %+v", emitted)
	}

	if got := rig.events.count(sessionlog.EventResumeChecked); got != 1 {
		t.Fatalf("expected one resume check event, got %d", got)
	}
	if rig.engine.Combat().Active() {
		t.Fatalf("no combat should be active")
	}
}

func TestStartResumesLiveCombat(t *testing.T) {
	rig := newEngineRig(t)
	rig.server.mu.Lock()
	rig.server.tickResp = timeResponse(700, 1)
	rig.server.active = wire.ActiveCombatResponseV1{CombatStateV1: wire.CombatStateV1{
		Phase:     "active",
		TurnPhase: "move",
		Range:     2,
		Monsters:  []wire.CombatMonsterV1{{ID: "rat-1", Name: "Dire Rat", HP: 7, MaxHP: 7}},
		Player:    wire.CombatPlayerV1{HP: 14, MaxHP: 20},
	}}
	rig.server.mu.Unlock()

	rig.engine.Start(context.Background())
	defer rig.engine.Close()

	view := awaitSignal(t, rig.combats, "resumed combat render")
	if view.Session.Phase != combat.PhaseActive || view.Session.Range != 2 {
		t.Fatalf("unexpected resumed session: %+v", view.Session)
	}
	if !view.Buttons.Advance || !view.Buttons.Retreat || view.Buttons.Attack {
		t.Fatalf("unexpected resumed buttons: %+v", view.Buttons)
	}
	if !rig.engine.Combat().Active() {
		t.Fatalf("expected live combat after resume")
	}
}

func TestCombatDismissalForcesRefresh(t *testing.T) {
	rig := newEngineRig(t)
	rig.server.mu.Lock()
	rig.server.tickResp = timeResponse(700, 1)
	rig.server.active = wire.ActiveCombatResponseV1{CombatStateV1: wire.CombatStateV1{
		Phase:    "loot",
		XPEarned: 35,
	}}
	rig.server.mu.Unlock()

	rig.engine.Start(context.Background())
	defer rig.engine.Close()

	awaitSignal(t, rig.ticks, "initial sync")
	rig.server.pushCombat(wire.CombatResponseV1{Success: true})

	if err := rig.engine.Combat().End(context.Background()); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	outcome := awaitSignal(t, rig.ends, "combat outcome")
	if outcome.Phase != combat.PhaseLoot || outcome.XPEarned != 35 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	awaitSignal(t, rig.ticks, "post-combat refresh")
	if rig.server.tickCount() < 2 {
		t.Fatalf("dismissing combat must force a refresh, got %d ticks", rig.server.tickCount())
	}
}

func TestTogglePauseFreezesDisplay(t *testing.T) {
	rig := newEngineRig(t)
	rig.server.mu.Lock()
	rig.server.tickResp = timeResponse(700, 1)
	rig.server.mu.Unlock()

	rig.engine.Start(context.Background())
	defer rig.engine.Close()
	awaitSignal(t, rig.ticks, "initial sync")

	if !rig.engine.TogglePause() {
		t.Fatalf("expected pause to engage")
	}
	rig.wall.Advance(3 * clock.GameMinute)
	snap := rig.engine.ClockSnapshot()
	if !snap.Paused || snap.TimeOfDay != 700 {
		t.Fatalf("paused display must hold, got %+v", snap)
	}
	if rig.engine.TogglePause() {
		t.Fatalf("expected pause to release")
	}
}

func TestInterpolationRolloverPublishes(t *testing.T) {
	rig := newEngineRig(t)
	rig.server.mu.Lock()
	rig.server.tickResp = timeResponse(clock.MinutesPerDay-1, 1)
	rig.server.mu.Unlock()

	rig.engine.Start(context.Background())
	defer rig.engine.Close()

	awaitClock(t, rig.clocks, func(s clock.Snapshot) bool {
		return s.Synced && s.TimeOfDay == clock.MinutesPerDay-1
	})

	rig.wall.Advance(2 * clock.GameMinute)
	crossed := awaitClock(t, rig.clocks, func(s clock.Snapshot) bool { return s.CurrentDay == 2 })
	if crossed.TimeOfDay != 1 {
		t.Fatalf("expected one minute past midnight, got %+v", crossed)
	}

	if got := rig.events.count(clocksync.EventRollover); got != 1 {
		t.Fatalf("expected one rollover event, got %d", got)
	}
	if rollovers := rig.counters.Snapshot().Rollovers; rollovers != 1 {
		t.Fatalf("expected one rollover counted, got %d", rollovers)
	}
}

func TestArrivalSurfacesNotice(t *testing.T) {
	rig := newEngineRig(t)
	minutes := patch.FlexInt(700)
	day := patch.FlexInt(1)
	rig.server.mu.Lock()
	rig.server.tickResp = wire.TickResponseV1{
		Success: true,
		Data:    &wire.TickDataV1{TimeOfDay: &minutes, CurrentDay: &day, Arrived: true},
	}
	rig.server.mu.Unlock()

	rig.engine.Start(context.Background())
	defer rig.engine.Close()

	awaitSignal(t, rig.ticks, "initial sync")
	notice := awaitSignal(t, rig.notices, "arrival notice")
	if notice != "You have arrived at your destination." {
		t.Fatalf("unexpected notice: %q", notice)
	}
	if got := rig.events.count(sessionlog.EventArrival); got < 1 {
		t.Fatalf("expected an arrival event, got %d", got)
	}
}

func TestLifecycleIsIdempotent(t *testing.T) {
	rig := newEngineRig(t)
	rig.server.mu.Lock()
	rig.server.tickResp = timeResponse(700, 1)
	rig.server.mu.Unlock()

	rig.engine.Stop()

	rig.engine.Start(context.Background())
	if !rig.engine.Running() {
		t.Fatalf("expected running after start")
	}
	rig.engine.Start(context.Background())
	rig.engine.Stop()
	rig.engine.Stop()
	if rig.engine.Running() {
		t.Fatalf("expected stopped")
	}

	rig.engine.Start(context.Background())
	if !rig.engine.Running() {
		t.Fatalf("expected restart to work")
	}

	if err := rig.engine.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := rig.engine.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	rig.engine.Start(context.Background())
	if rig.engine.Running() {
		t.Fatalf("closed engine must not restart")
	}
}
