package combat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pubkey-quest/engine/internal/state"
	"pubkey-quest/engine/internal/telemetry"
	"pubkey-quest/engine/internal/wire"
	"pubkey-quest/engine/logging"
	"pubkey-quest/engine/logging/combatlog"
)

// Input is one player intent the controller can submit.
type Input string

const (
	InputAdvance     Input = "advance"
	InputHold        Input = "hold"
	InputRetreat     Input = "retreat"
	InputAttack      Input = "attack"
	InputBonusAttack Input = "bonus_attack"
	InputFlee        Input = "flee"
	InputPass        Input = "pass"
	InputDeathSave   Input = "death_save"
	InputEnd         Input = "end"
)

var (
	// ErrBusy means a combat round-trip is already outstanding.
	ErrBusy = errors.New("combat action pending")
	// ErrNoCombat means no session is active.
	ErrNoCombat = errors.New("no active combat")
	// ErrAlreadyActive means Start was called with a live session.
	ErrAlreadyActive = errors.New("combat already active")
	// ErrIllegalInput means the current phase does not admit the input.
	ErrIllegalInput = errors.New("illegal combat input")
	// ErrRejected wraps a success=false server answer.
	ErrRejected = errors.New("combat action rejected")
)

// Transport is the slice of the HTTP client the controller needs.
type Transport interface {
	CombatStart(ctx context.Context) (wire.CombatResponseV1, error)
	CombatAction(ctx context.Context, action string) (wire.CombatResponseV1, error)
	CombatMove(ctx context.Context, dir int) (wire.CombatResponseV1, error)
	CombatPass(ctx context.Context) (wire.CombatResponseV1, error)
	CombatDeathSave(ctx context.Context) (wire.CombatResponseV1, error)
	CombatEnd(ctx context.Context) (wire.CombatResponseV1, error)
	ActiveCombat(ctx context.Context) (wire.ActiveCombatResponseV1, error)
}

// View is the renderable combat view-model.
type View struct {
	Session Session
	Buttons Buttons
	Weapon  WeaponProfile
}

// Outcome summarizes a dismissed session.
type Outcome struct {
	Phase    Phase
	XPEarned int
	Loot     []state.Item
}

// Hooks let the presentation layer observe the controller. Callbacks
// are optional and must not block.
type Hooks struct {
	OnRender func(View)
	OnNotice func(message string)
	OnEnded  func(Outcome)
}

// Deps carries the injected collaborators.
type Deps struct {
	Transport Transport
	Weapons   WeaponSource
	Revealer  *Revealer
	Publisher logging.Publisher
	Counters  *telemetry.Counters
	Actor     logging.EntityRef
	// Ticks, when set, stamps combat events with the synchronizer's
	// firing ordinal so combat and sync logs correlate.
	Ticks func() uint64
}

// Controller drives the combat session. The server is the sole source
// of truth: the cached session only derives buttons and re-renders
// after a rejected input, never predicts outcomes. One round-trip runs
// at a time; a second submission while one is outstanding returns
// ErrBusy instead of double-sending.
type Controller struct {
	transport Transport
	weapons   WeaponSource
	revealer  *Revealer
	pub       logging.Publisher
	counters  *telemetry.Counters
	actor     logging.EntityRef
	ticks     func() uint64
	hooks     Hooks

	mu      sync.Mutex
	active  bool
	busy    bool
	session Session
}

// NewController wires the combat state machine. Transport is required.
func NewController(deps Deps, hooks Hooks) *Controller {
	if deps.Transport == nil {
		return nil
	}
	counters := deps.Counters
	if counters == nil {
		counters = telemetry.NewCounters()
	}
	return &Controller{
		transport: deps.Transport,
		weapons:   deps.Weapons,
		revealer:  deps.Revealer,
		pub:       deps.Publisher,
		counters:  counters,
		actor:     deps.Actor,
		ticks:     deps.Ticks,
		hooks:     hooks,
	}
}

// Active reports whether a session is live.
func (c *Controller) Active() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Session returns a copy of the cached session.
func (c *Controller) Session() (Session, bool) {
	if c == nil {
		return Session{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return Session{}, false
	}
	return cloneSession(c.session), true
}

// View returns the current renderable view-model.
func (c *Controller) View() (View, bool) {
	if c == nil {
		return View{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return View{}, false
	}
	return c.viewLocked(), true
}

// Start opens a new encounter. The response's full log is revealed at
// the fast initial pace.
func (c *Controller) Start(ctx context.Context) error {
	if c == nil {
		return ErrNoCombat
	}
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.active {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.busy = true
	c.mu.Unlock()

	resp, err := c.transport.CombatStart(ctx)

	c.mu.Lock()
	c.busy = false
	if err != nil {
		c.mu.Unlock()
		c.notice(fmt.Sprintf("Could not start combat: %v", err))
		return err
	}
	if !resp.Success {
		msg := responseMessage(resp)
		c.mu.Unlock()
		c.notice(msg)
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	session, convErr := sessionFromWire(resp.CombatStateV1)
	if convErr != nil {
		c.mu.Unlock()
		c.notice(fmt.Sprintf("Malformed combat state: %v", convErr))
		return convErr
	}
	c.session = session
	c.active = true
	view := c.viewLocked()
	c.mu.Unlock()

	monster, _ := session.PrimaryMonster()
	combatlog.Started(ctx, c.pub, c.tick(), c.actor,
		logging.EntityRef{ID: monster.ID, Kind: logging.EntityKindMonster},
		combatlog.StartPayload{Monster: monster.Name, Range: session.Range})
	c.reveal(resp.Log, PaceInitial)
	c.render(view)
	return nil
}

// Resume rebuilds a live session found on the server, typically on
// page load. It reports whether a session was found. The rebuilt view
// derives the same buttons a fresh Start with the same state would.
func (c *Controller) Resume(ctx context.Context) (bool, error) {
	if c == nil {
		return false, ErrNoCombat
	}
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return false, ErrBusy
	}
	if c.active {
		c.mu.Unlock()
		return true, nil
	}
	c.busy = true
	c.mu.Unlock()

	resp, err := c.transport.ActiveCombat(ctx)

	c.mu.Lock()
	c.busy = false
	if err != nil {
		c.mu.Unlock()
		return false, err
	}
	if !resp.Active() {
		c.mu.Unlock()
		return false, nil
	}
	session, convErr := sessionFromWire(resp.CombatStateV1)
	if convErr != nil {
		c.mu.Unlock()
		return false, convErr
	}
	c.session = session
	c.active = true
	view := c.viewLocked()
	c.mu.Unlock()

	monster, _ := session.PrimaryMonster()
	combatlog.Resumed(ctx, c.pub, c.tick(), c.actor, combatlog.ResumePayload{
		Phase:   string(session.Phase),
		Monster: monster.Name,
		Range:   session.Range,
	})
	c.reveal(resp.Log, PaceInitial)
	c.render(view)
	return true, nil
}

// Submit runs one input through the guard table, the server, and the
// response application. Locally illegal inputs are rejected before any
// network call; server rejections re-render the last known-good view.
func (c *Controller) Submit(ctx context.Context, input Input) error {
	if c == nil {
		return ErrNoCombat
	}
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNoCombat
	}
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if err := c.guardLocked(input); err != nil {
		view := c.viewLocked()
		c.mu.Unlock()
		c.counters.RecordCombatInput(false)
		combatlog.Rejected(ctx, c.pub, c.tick(), c.actor, combatlog.RejectPayload{
			Input:   string(input),
			Message: err.Error(),
		})
		c.notice(err.Error())
		c.render(view)
		return err
	}
	c.busy = true
	c.mu.Unlock()

	resp, err := c.dispatch(ctx, input)
	return c.finish(ctx, input, resp, err)
}

// Attack submits the main-hand attack.
func (c *Controller) Attack(ctx context.Context) error {
	return c.Submit(ctx, InputAttack)
}

// BonusAttack submits the off-hand bonus attack.
func (c *Controller) BonusAttack(ctx context.Context) error {
	return c.Submit(ctx, InputBonusAttack)
}

// Flee submits a disengage attempt.
func (c *Controller) Flee(ctx context.Context) error {
	return c.Submit(ctx, InputFlee)
}

// Move submits a move-phase step: -1 advance, 0 hold, +1 retreat.
func (c *Controller) Move(ctx context.Context, dir int) error {
	switch dir {
	case wire.MoveAdvance:
		return c.Submit(ctx, InputAdvance)
	case wire.MoveHold:
		return c.Submit(ctx, InputHold)
	case wire.MoveRetreat:
		return c.Submit(ctx, InputRetreat)
	default:
		return fmt.Errorf("%w: move_dir %d", ErrIllegalInput, dir)
	}
}

// Pass forfeits the action phase.
func (c *Controller) Pass(ctx context.Context) error {
	return c.Submit(ctx, InputPass)
}

// DeathSave rolls one death save.
func (c *Controller) DeathSave(ctx context.Context) error {
	return c.Submit(ctx, InputDeathSave)
}

// End dismisses a finished session.
func (c *Controller) End(ctx context.Context) error {
	return c.Submit(ctx, InputEnd)
}

// guardLocked is the exhaustive phase-by-input legality table. The
// server remains authoritative; this only refuses requests that
// cannot possibly succeed.
func (c *Controller) guardLocked(input Input) error {
	s := c.session
	switch s.Phase {
	case PhaseActive:
		switch s.TurnPhase {
		case TurnPhaseMove:
			switch input {
			case InputAdvance:
				if s.Range <= MinRange {
					return fmt.Errorf("%w: already at contact", ErrIllegalInput)
				}
				return nil
			case InputRetreat:
				if s.Range >= MaxRange {
					return fmt.Errorf("%w: cannot retreat further", ErrIllegalInput)
				}
				return nil
			case InputHold:
				return nil
			default:
				return fmt.Errorf("%w: %s during move phase", ErrIllegalInput, input)
			}
		case TurnPhaseAction:
			switch input {
			case InputAttack:
				weapon := c.weaponProfile()
				if weapon.Ranged {
					if s.AmmoRemaining != nil && *s.AmmoRemaining <= 0 {
						return fmt.Errorf("%w: out of ammo", ErrIllegalInput)
					}
					return nil
				}
				if s.Range > weapon.Reach {
					return fmt.Errorf("%w: %s cannot reach range %d", ErrIllegalInput, weapon.Name, s.Range)
				}
				return nil
			case InputBonusAttack:
				if !s.BonusAttackAvailable {
					return fmt.Errorf("%w: no bonus attack available", ErrIllegalInput)
				}
				return nil
			case InputFlee:
				if s.Range < FleeMinRange {
					return fmt.Errorf("%w: too close to flee", ErrIllegalInput)
				}
				return nil
			case InputPass:
				return nil
			default:
				return fmt.Errorf("%w: %s during action phase", ErrIllegalInput, input)
			}
		default:
			return fmt.Errorf("%w: %s without a turn phase", ErrIllegalInput, input)
		}
	case PhaseDeathSaves:
		if input != InputDeathSave {
			return fmt.Errorf("%w: only death saves while dying", ErrIllegalInput)
		}
		return nil
	case PhaseLoot, PhaseVictory, PhaseDefeat:
		if input != InputEnd {
			return fmt.Errorf("%w: combat is over", ErrIllegalInput)
		}
		return nil
	default:
		return ErrNoCombat
	}
}

func (c *Controller) dispatch(ctx context.Context, input Input) (wire.CombatResponseV1, error) {
	switch input {
	case InputAdvance:
		return c.transport.CombatMove(ctx, wire.MoveAdvance)
	case InputHold:
		return c.transport.CombatMove(ctx, wire.MoveHold)
	case InputRetreat:
		return c.transport.CombatMove(ctx, wire.MoveRetreat)
	case InputAttack:
		return c.transport.CombatAction(ctx, wire.ActionAttack)
	case InputBonusAttack:
		return c.transport.CombatAction(ctx, wire.ActionBonusAttack)
	case InputFlee:
		return c.transport.CombatAction(ctx, wire.ActionFlee)
	case InputPass:
		return c.transport.CombatPass(ctx)
	case InputDeathSave:
		return c.transport.CombatDeathSave(ctx)
	case InputEnd:
		return c.transport.CombatEnd(ctx)
	default:
		return wire.CombatResponseV1{}, fmt.Errorf("%w: %s", ErrIllegalInput, input)
	}
}

func (c *Controller) finish(ctx context.Context, input Input, resp wire.CombatResponseV1, err error) error {
	c.mu.Lock()
	c.busy = false

	if err != nil {
		view := c.viewLocked()
		c.mu.Unlock()
		c.counters.RecordCombatInput(false)
		combatlog.Rejected(ctx, c.pub, c.tick(), c.actor, combatlog.RejectPayload{
			Input:   string(input),
			Message: err.Error(),
		})
		c.notice(fmt.Sprintf("Action failed: %v", err))
		c.render(view)
		return err
	}
	if !resp.Success {
		msg := responseMessage(resp)
		view := c.viewLocked()
		c.mu.Unlock()
		c.counters.RecordCombatInput(false)
		combatlog.Rejected(ctx, c.pub, c.tick(), c.actor, combatlog.RejectPayload{
			Input:   string(input),
			Message: msg,
		})
		c.notice(msg)
		c.render(view)
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}

	if input == InputEnd {
		outcome := Outcome{
			Phase:    c.session.Phase,
			XPEarned: c.session.XPEarned,
			Loot:     append([]state.Item(nil), c.session.Loot...),
		}
		c.active = false
		c.session = Session{}
		c.mu.Unlock()
		c.counters.RecordCombatInput(true)
		combatlog.Ended(ctx, c.pub, c.tick(), c.actor)
		c.ended(outcome)
		return nil
	}

	next, convErr := sessionFromWire(resp.CombatStateV1)
	if convErr != nil {
		view := c.viewLocked()
		c.mu.Unlock()
		c.counters.RecordCombatInput(false)
		c.notice(fmt.Sprintf("Malformed combat state: %v", convErr))
		c.render(view)
		return convErr
	}

	prev := c.session

	// An empty phase on a successful answer means the server closed
	// the session itself, which is how a successful flee resolves.
	if next.Phase == PhaseNone {
		outcome := Outcome{
			Phase:    prev.Phase,
			XPEarned: next.XPEarned,
			Loot:     append([]state.Item(nil), next.Loot...),
		}
		c.active = false
		c.session = Session{}
		c.mu.Unlock()
		c.counters.RecordCombatInput(true)
		combatlog.Ended(ctx, c.pub, c.tick(), c.actor)
		c.reveal(resp.NewLog, PaceIncremental)
		c.ended(outcome)
		return nil
	}

	c.session = next
	view := c.viewLocked()
	c.mu.Unlock()

	c.counters.RecordCombatInput(true)
	combatlog.Input(ctx, c.pub, c.tick(), c.actor, combatlog.InputPayload{
		Input:     string(input),
		TurnPhase: string(prev.TurnPhase),
		Range:     prev.Range,
	})
	if next.Phase != prev.Phase {
		c.counters.RecordCombatTransition()
		combatlog.Transition(ctx, c.pub, c.tick(), c.actor, combatlog.TransitionPayload{
			From: string(prev.Phase),
			To:   string(next.Phase),
		})
	}
	c.reveal(resp.NewLog, PaceIncremental)
	c.render(view)
	return nil
}

func (c *Controller) viewLocked() View {
	weapon := c.weaponProfile()
	return View{
		Session: cloneSession(c.session),
		Buttons: DeriveButtons(c.session, weapon),
		Weapon:  weapon,
	}
}

func (c *Controller) weaponProfile() WeaponProfile {
	if c.weapons == nil {
		return Unarmed
	}
	return c.weapons.MainHand()
}

func (c *Controller) tick() uint64 {
	if c.ticks == nil {
		return 0
	}
	return c.ticks()
}

func (c *Controller) render(view View) {
	if c.hooks.OnRender != nil {
		c.hooks.OnRender(view)
	}
}

func (c *Controller) notice(message string) {
	if c.hooks.OnNotice != nil {
		c.hooks.OnNotice(message)
	}
}

func (c *Controller) ended(outcome Outcome) {
	if c.hooks.OnEnded != nil {
		c.hooks.OnEnded(outcome)
	}
}

func (c *Controller) reveal(lines []string, pace Pace) {
	if c.revealer != nil {
		c.revealer.Reveal(lines, pace)
	}
}

func cloneSession(s Session) Session {
	cloned := s
	if s.Monsters != nil {
		cloned.Monsters = append([]Monster(nil), s.Monsters...)
	}
	if s.Loot != nil {
		cloned.Loot = append([]state.Item(nil), s.Loot...)
	}
	if s.AmmoRemaining != nil {
		ammo := *s.AmmoRemaining
		cloned.AmmoRemaining = &ammo
	}
	return cloned
}

func responseMessage(resp wire.CombatResponseV1) string {
	if resp.Error != "" {
		return resp.Error
	}
	if resp.Message != "" {
		return resp.Message
	}
	return "combat action rejected"
}
