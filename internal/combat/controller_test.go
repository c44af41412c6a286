package combat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"pubkey-quest/engine/internal/patch"
	"pubkey-quest/engine/internal/wire"
)

func patchFlex(v int) *patch.FlexInt {
	fv := patch.FlexInt(v)
	return &fv
}

type fakeCombatTransport struct {
	mu        sync.Mutex
	calls     []string
	queue     []wire.CombatResponseV1
	err       error
	active    wire.ActiveCombatResponseV1
	activeErr error

	entered chan struct{}
	release chan struct{}
}

func (f *fakeCombatTransport) record(call string) (wire.CombatResponseV1, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	var resp wire.CombatResponseV1
	if len(f.queue) > 0 {
		resp = f.queue[0]
		f.queue = f.queue[1:]
	}
	err := f.err
	entered := f.entered
	release := f.release
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if release != nil {
		<-release
	}
	return resp, err
}

func (f *fakeCombatTransport) push(resps ...wire.CombatResponseV1) {
	f.mu.Lock()
	f.queue = append(f.queue, resps...)
	f.mu.Unlock()
}

func (f *fakeCombatTransport) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCombatTransport) CombatStart(ctx context.Context) (wire.CombatResponseV1, error) {
	return f.record("start")
}

func (f *fakeCombatTransport) CombatAction(ctx context.Context, action string) (wire.CombatResponseV1, error) {
	return f.record("action:" + action)
}

func (f *fakeCombatTransport) CombatMove(ctx context.Context, dir int) (wire.CombatResponseV1, error) {
	return f.record(fmt.Sprintf("move:%d", dir))
}

func (f *fakeCombatTransport) CombatPass(ctx context.Context) (wire.CombatResponseV1, error) {
	return f.record("pass")
}

func (f *fakeCombatTransport) CombatDeathSave(ctx context.Context) (wire.CombatResponseV1, error) {
	return f.record("death-save")
}

func (f *fakeCombatTransport) CombatEnd(ctx context.Context) (wire.CombatResponseV1, error) {
	return f.record("end")
}

func (f *fakeCombatTransport) ActiveCombat(ctx context.Context) (wire.ActiveCombatResponseV1, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "active")
	resp := f.active
	err := f.activeErr
	f.mu.Unlock()
	return resp, err
}

func okState(phase, turnPhase string, rng int) wire.CombatResponseV1 {
	return wire.CombatResponseV1{
		Success: true,
		CombatStateV1: wire.CombatStateV1{
			Phase:     phase,
			TurnPhase: turnPhase,
			Range:     rng,
			Monsters:  []wire.CombatMonsterV1{{ID: "rat-1", Name: "Dire Rat", HP: 7, MaxHP: 7}},
			Player:    wire.CombatPlayerV1{HP: 20, MaxHP: 20},
		},
	}
}

type renderLog struct {
	mu      sync.Mutex
	views   []View
	notices []string
	ended   []Outcome
}

func (r *renderLog) hooks() Hooks {
	return Hooks{
		OnRender: func(v View) {
			r.mu.Lock()
			r.views = append(r.views, v)
			r.mu.Unlock()
		},
		OnNotice: func(msg string) {
			r.mu.Lock()
			r.notices = append(r.notices, msg)
			r.mu.Unlock()
		},
		OnEnded: func(o Outcome) {
			r.mu.Lock()
			r.ended = append(r.ended, o)
			r.mu.Unlock()
		},
	}
}

func (r *renderLog) lastView(t *testing.T) View {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		t.Fatalf("expected at least one render")
	}
	return r.views[len(r.views)-1]
}

func (r *renderLog) viewCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func newTestController(t *testing.T, transport Transport, weapon WeaponProfile, rl *renderLog) *Controller {
	t.Helper()
	ctrl := NewController(Deps{
		Transport: transport,
		Weapons:   StaticWeapon(weapon),
	}, rl.hooks())
	if ctrl == nil {
		t.Fatalf("expected controller to construct")
	}
	return ctrl
}

func mustStart(t *testing.T, ctrl *Controller, transport *fakeCombatTransport, resp wire.CombatResponseV1) {
	t.Helper()
	transport.push(resp)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
}

func TestAdvanceRejectedAtContact(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)
	mustStart(t, ctrl, transport, okState("active", "move", 0))

	err := ctrl.Move(context.Background(), wire.MoveAdvance)
	if !errors.Is(err, ErrIllegalInput) {
		t.Fatalf("expected illegal input, got %v", err)
	}
	if calls := transport.callLog(); len(calls) != 1 || calls[0] != "start" {
		t.Fatalf("guard must reject before the network, calls: %v", calls)
	}
	if view := rl.lastView(t); view.Buttons.Advance {
		t.Fatalf("advance button must be grayed at contact")
	}
}

func TestRetreatRejectedAtMaxRange(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)
	mustStart(t, ctrl, transport, okState("active", "move", 6))

	err := ctrl.Move(context.Background(), wire.MoveRetreat)
	if !errors.Is(err, ErrIllegalInput) {
		t.Fatalf("expected illegal input, got %v", err)
	}
	if view := rl.lastView(t); view.Buttons.Retreat {
		t.Fatalf("retreat button must be grayed at max range")
	}
}

func TestMoveResolvesThroughServer(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)
	mustStart(t, ctrl, transport, okState("active", "move", 3))

	transport.push(okState("active", "action", 2))
	if err := ctrl.Move(context.Background(), wire.MoveAdvance); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	calls := transport.callLog()
	if calls[len(calls)-1] != "move:-1" {
		t.Fatalf("expected advance dispatch, got %v", calls)
	}
	view := rl.lastView(t)
	if view.Session.TurnPhase != TurnPhaseAction || view.Session.Range != 2 {
		t.Fatalf("expected action phase at range 2, got %+v", view.Session)
	}
}

func TestMeleeAttackRejectedBeyondReach(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, WeaponProfile{Name: "Rusty Sword", Reach: 1}, rl)
	mustStart(t, ctrl, transport, okState("active", "action", 3))

	err := ctrl.Attack(context.Background())
	if !errors.Is(err, ErrIllegalInput) {
		t.Fatalf("expected illegal input, got %v", err)
	}
	if view := rl.lastView(t); view.Buttons.Attack {
		t.Fatalf("attack button must be grayed beyond reach")
	}
}

func TestRangedAttackRejectedWithoutAmmo(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, WeaponProfile{Name: "Shortbow", Ranged: true}, rl)

	resp := okState("active", "action", 4)
	resp.AmmoRemaining = patchFlex(0)
	mustStart(t, ctrl, transport, resp)

	err := ctrl.Attack(context.Background())
	if !errors.Is(err, ErrIllegalInput) {
		t.Fatalf("expected illegal input, got %v", err)
	}
	if view := rl.lastView(t); view.Buttons.Attack {
		t.Fatalf("attack button must be grayed without ammo")
	}
}

func TestRangedAttackAllowedWithAmmo(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, WeaponProfile{Name: "Shortbow", Ranged: true}, rl)

	resp := okState("active", "action", 4)
	resp.AmmoRemaining = patchFlex(3)
	mustStart(t, ctrl, transport, resp)

	transport.push(okState("active", "move", 4))
	if err := ctrl.Attack(context.Background()); err != nil {
		t.Fatalf("attack failed: %v", err)
	}
	calls := transport.callLog()
	if calls[len(calls)-1] != "action:attack" {
		t.Fatalf("expected attack dispatch, got %v", calls)
	}
}

func TestBonusAttackRequiresAvailability(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)
	mustStart(t, ctrl, transport, okState("active", "action", 0))

	if err := ctrl.BonusAttack(context.Background()); !errors.Is(err, ErrIllegalInput) {
		t.Fatalf("expected illegal input, got %v", err)
	}

	resp := okState("active", "action", 0)
	resp.BonusAttackAvailable = true
	transport.push(resp)
	if err := ctrl.Pass(context.Background()); err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	transport.push(okState("active", "move", 0))
	if err := ctrl.BonusAttack(context.Background()); err != nil {
		t.Fatalf("bonus attack failed: %v", err)
	}
	calls := transport.callLog()
	if calls[len(calls)-1] != "action:bonus_attack" {
		t.Fatalf("expected bonus attack dispatch, got %v", calls)
	}
}

func TestFleeRequiresDistance(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)
	mustStart(t, ctrl, transport, okState("active", "action", 1))

	if err := ctrl.Flee(context.Background()); !errors.Is(err, ErrIllegalInput) {
		t.Fatalf("expected illegal input at range 1, got %v", err)
	}
	if view := rl.lastView(t); view.Buttons.Flee {
		t.Fatalf("flee button must be grayed at range 1")
	}
}

func TestSuccessfulFleeClosesSession(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)
	mustStart(t, ctrl, transport, okState("active", "action", 3))

	transport.push(wire.CombatResponseV1{
		Success:       true,
		CombatStateV1: wire.CombatStateV1{NewLog: []string{"You slip away into the alleys."}},
	})
	if err := ctrl.Flee(context.Background()); err != nil {
		t.Fatalf("flee failed: %v", err)
	}
	if ctrl.Active() {
		t.Fatalf("expected session closed after flee")
	}
	rl.mu.Lock()
	endCount := len(rl.ended)
	rl.mu.Unlock()
	if endCount != 1 {
		t.Fatalf("expected one ended callback, got %d", endCount)
	}
}

func TestServerRejectionRerendersCachedState(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)
	mustStart(t, ctrl, transport, okState("active", "move", 2))
	before := rl.lastView(t)

	transport.push(wire.CombatResponseV1{Success: false, Error: "the rat blocks your path"})
	err := ctrl.Move(context.Background(), wire.MoveAdvance)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}

	after := rl.lastView(t)
	if after.Buttons != before.Buttons {
		t.Fatalf("rejected action must re-render the cached buttons")
	}
	if after.Session.Range != before.Session.Range || after.Session.TurnPhase != before.Session.TurnPhase {
		t.Fatalf("rejected action must not mutate the session")
	}
	rl.mu.Lock()
	notices := append([]string(nil), rl.notices...)
	rl.mu.Unlock()
	if len(notices) == 0 || notices[len(notices)-1] != "the rat blocks your path" {
		t.Fatalf("expected server message surfaced, got %v", notices)
	}
}

func TestTransportFailureKeepsSessionUsable(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)
	mustStart(t, ctrl, transport, okState("active", "move", 2))

	transport.mu.Lock()
	transport.err = errors.New("connection reset")
	transport.mu.Unlock()
	if err := ctrl.Move(context.Background(), wire.MoveAdvance); err == nil {
		t.Fatalf("expected transport error to surface")
	}

	transport.mu.Lock()
	transport.err = nil
	transport.mu.Unlock()
	transport.push(okState("active", "action", 1))
	if err := ctrl.Move(context.Background(), wire.MoveAdvance); err != nil {
		t.Fatalf("retry after failure must work, got %v", err)
	}
}

func TestDeathSavesStabilizeOnThirdSuccess(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)

	dying := okState("death_saves", "", 0)
	dying.Player = wire.CombatPlayerV1{HP: 0, MaxHP: 20}
	mustStart(t, ctrl, transport, dying)

	if view := rl.lastView(t); !view.Buttons.DeathSave || view.Buttons.Attack {
		t.Fatalf("death saves phase must only offer the save, got %+v", view.Buttons)
	}

	for i := 1; i <= 2; i++ {
		next := okState("death_saves", "", 0)
		next.Player = wire.CombatPlayerV1{HP: 0, MaxHP: 20, DeathSaveSuccesses: i}
		transport.push(next)
		if err := ctrl.DeathSave(context.Background()); err != nil {
			t.Fatalf("death save %d failed: %v", i, err)
		}
		session, _ := ctrl.Session()
		if session.Phase != PhaseDeathSaves || session.Player.DeathSaveSuccesses != i {
			t.Fatalf("expected %d successes in death_saves, got %+v", i, session)
		}
	}

	stabilized := okState("active", "move", 1)
	stabilized.Player = wire.CombatPlayerV1{HP: 1, MaxHP: 20}
	transport.push(stabilized)
	if err := ctrl.DeathSave(context.Background()); err != nil {
		t.Fatalf("third death save failed: %v", err)
	}
	session, _ := ctrl.Session()
	if session.Phase != PhaseActive {
		t.Fatalf("third success must stabilize back to active, got %q", session.Phase)
	}
}

func TestDeathSavesDefeatOnThirdFailure(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)

	dying := okState("death_saves", "", 0)
	mustStart(t, ctrl, transport, dying)

	for i := 1; i <= 2; i++ {
		next := okState("death_saves", "", 0)
		next.Player = wire.CombatPlayerV1{HP: 0, MaxHP: 20, DeathSaveFailures: i}
		transport.push(next)
		if err := ctrl.DeathSave(context.Background()); err != nil {
			t.Fatalf("death save %d failed: %v", i, err)
		}
	}

	defeated := okState("defeat", "", 0)
	defeated.Player = wire.CombatPlayerV1{HP: 0, MaxHP: 20, DeathSaveFailures: 3}
	transport.push(defeated)
	if err := ctrl.DeathSave(context.Background()); err != nil {
		t.Fatalf("third death save failed: %v", err)
	}
	session, _ := ctrl.Session()
	if session.Phase != PhaseDefeat {
		t.Fatalf("third failure must defeat, got %q", session.Phase)
	}
	if view := rl.lastView(t); !view.Buttons.End || view.Buttons.DeathSave {
		t.Fatalf("defeat must only offer dismissal, got %+v", view.Buttons)
	}
}

func TestAttackRejectedDuringDeathSaves(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)
	mustStart(t, ctrl, transport, okState("death_saves", "", 0))

	if err := ctrl.Attack(context.Background()); !errors.Is(err, ErrIllegalInput) {
		t.Fatalf("expected illegal input, got %v", err)
	}
}

func TestEndDismissesVictory(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)

	victory := okState("victory", "", 0)
	victory.XPEarned = 40
	mustStart(t, ctrl, transport, victory)

	transport.push(wire.CombatResponseV1{Success: true})
	if err := ctrl.End(context.Background()); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if ctrl.Active() {
		t.Fatalf("expected session torn down after end")
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.ended) != 1 || rl.ended[0].Phase != PhaseVictory || rl.ended[0].XPEarned != 40 {
		t.Fatalf("unexpected outcome: %+v", rl.ended)
	}
}

func TestResumeRebuildsIdenticalButtons(t *testing.T) {
	combatState := wire.CombatStateV1{
		Phase:     "active",
		TurnPhase: "action",
		Range:     2,
		Monsters:  []wire.CombatMonsterV1{{Name: "Dire Rat", HP: 4, MaxHP: 7}},
		Player:    wire.CombatPlayerV1{HP: 12, MaxHP: 20},
	}

	startTransport := &fakeCombatTransport{}
	startLog := &renderLog{}
	started := newTestController(t, startTransport, Unarmed, startLog)
	mustStart(t, started, startTransport, wire.CombatResponseV1{Success: true, CombatStateV1: combatState})

	resumeTransport := &fakeCombatTransport{active: wire.ActiveCombatResponseV1{CombatStateV1: combatState}}
	resumeLog := &renderLog{}
	resumed := newTestController(t, resumeTransport, Unarmed, resumeLog)
	found, err := resumed.Resume(context.Background())
	if err != nil || !found {
		t.Fatalf("expected resume to find the session, got found=%v err=%v", found, err)
	}

	fresh := startLog.lastView(t)
	rebuilt := resumeLog.lastView(t)
	if fresh.Buttons != rebuilt.Buttons {
		t.Fatalf("resume must rebuild identical buttons: fresh %+v rebuilt %+v", fresh.Buttons, rebuilt.Buttons)
	}
	if fresh.Session.Phase != rebuilt.Session.Phase || fresh.Session.Range != rebuilt.Session.Range {
		t.Fatalf("resume must rebuild the same session state")
	}
}

func TestResumeWithoutSession(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)

	found, err := ctrl.Resume(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found || ctrl.Active() {
		t.Fatalf("expected no combat to resume")
	}
	if rl.viewCount() != 0 {
		t.Fatalf("no render expected without a session")
	}
}

func TestSecondSubmissionWhilePendingIsRefused(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)
	mustStart(t, ctrl, transport, okState("active", "action", 0))

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	transport.mu.Lock()
	transport.entered = entered
	transport.release = release
	transport.mu.Unlock()
	transport.push(okState("active", "move", 0))

	errs := make(chan error, 1)
	go func() { errs <- ctrl.Pass(context.Background()) }()
	<-entered

	if err := ctrl.Attack(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy refusal, got %v", err)
	}

	close(release)
	if err := <-errs; err != nil {
		t.Fatalf("pending pass failed: %v", err)
	}
}

func TestStartWhileActiveRefused(t *testing.T) {
	transport := &fakeCombatTransport{}
	rl := &renderLog{}
	ctrl := newTestController(t, transport, Unarmed, rl)
	mustStart(t, ctrl, transport, okState("active", "move", 2))

	if err := ctrl.Start(context.Background()); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected already-active refusal, got %v", err)
	}
}

func TestSubmitWithoutSession(t *testing.T) {
	transport := &fakeCombatTransport{}
	ctrl := NewController(Deps{Transport: transport}, Hooks{})

	if err := ctrl.Pass(context.Background()); !errors.Is(err, ErrNoCombat) {
		t.Fatalf("expected no-combat refusal, got %v", err)
	}
}
