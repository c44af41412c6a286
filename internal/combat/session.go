package combat

import (
	"fmt"

	"pubkey-quest/engine/internal/state"
	"pubkey-quest/engine/internal/wire"
)

// Phase is the combat session's top-level state.
type Phase string

const (
	PhaseNone       Phase = ""
	PhaseActive     Phase = "active"
	PhaseDeathSaves Phase = "death_saves"
	PhaseLoot       Phase = "loot"
	PhaseVictory    Phase = "victory"
	PhaseDefeat     Phase = "defeat"
)

// Terminal reports whether the phase only waits for the player to
// dismiss the session.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseLoot, PhaseVictory, PhaseDefeat:
		return true
	default:
		return false
	}
}

// TurnPhase is the sub-state of an active round.
type TurnPhase string

const (
	TurnPhaseNone   TurnPhase = ""
	TurnPhaseMove   TurnPhase = "move"
	TurnPhaseAction TurnPhase = "action"
)

// Range bounds. 0 is contact, 6 is extreme; moves adjust by one step.
const (
	MinRange = 0
	MaxRange = 6
)

// FleeMinRange is the distance at which disengaging becomes possible.
const FleeMinRange = 2

// Monster is one opposing combatant.
type Monster struct {
	ID    string
	Name  string
	HP    int
	MaxHP int
}

// Player is the player's block of a combat session.
type Player struct {
	HP                 int
	MaxHP              int
	DeathSaveSuccesses int
	DeathSaveFailures  int
}

// Session is the authoritative combat state as last returned by the
// server. The controller never predicts outcomes; it only caches this
// to derive buttons and to re-render after a rejected input.
type Session struct {
	Phase                Phase
	TurnPhase            TurnPhase
	Round                int
	Range                int
	Monsters             []Monster
	Player               Player
	BonusAttackAvailable bool
	// AmmoRemaining is nil when the server sent no ammo figure, which
	// reads as "not tracked" rather than "empty".
	AmmoRemaining *int
	XPEarned      int
	Loot          []state.Item
}

// PrimaryMonster returns the first opposing combatant, the one the
// range value is measured against.
func (s Session) PrimaryMonster() (Monster, bool) {
	if len(s.Monsters) == 0 {
		return Monster{}, false
	}
	return s.Monsters[0], true
}

func parsePhase(token string) (Phase, error) {
	switch token {
	case wire.PhaseActive:
		return PhaseActive, nil
	case wire.PhaseDeathSaves:
		return PhaseDeathSaves, nil
	case wire.PhaseLoot:
		return PhaseLoot, nil
	case wire.PhaseVictory:
		return PhaseVictory, nil
	case wire.PhaseDefeat:
		return PhaseDefeat, nil
	case "":
		return PhaseNone, nil
	default:
		return PhaseNone, fmt.Errorf("unknown combat phase %q", token)
	}
}

func parseTurnPhase(token string) (TurnPhase, error) {
	switch token {
	case wire.TurnPhaseMove:
		return TurnPhaseMove, nil
	case wire.TurnPhaseAction:
		return TurnPhaseAction, nil
	case "":
		return TurnPhaseNone, nil
	default:
		return TurnPhaseNone, fmt.Errorf("unknown turn phase %q", token)
	}
}

// sessionFromWire lifts the wire state into the typed session and
// clamps range into bounds so a misbehaving server cannot wedge the
// move guards.
func sessionFromWire(ws wire.CombatStateV1) (Session, error) {
	phase, err := parsePhase(ws.Phase)
	if err != nil {
		return Session{}, err
	}
	turnPhase, err := parseTurnPhase(ws.TurnPhase)
	if err != nil {
		return Session{}, err
	}

	rng := ws.Range
	if rng < MinRange {
		rng = MinRange
	}
	if rng > MaxRange {
		rng = MaxRange
	}

	session := Session{
		Phase:     phase,
		TurnPhase: turnPhase,
		Round:     ws.Round,
		Range:     rng,
		Player: Player{
			HP:                 ws.Player.HP,
			MaxHP:              ws.Player.MaxHP,
			DeathSaveSuccesses: ws.Player.DeathSaveSuccesses,
			DeathSaveFailures:  ws.Player.DeathSaveFailures,
		},
		BonusAttackAvailable: ws.BonusAttackAvailable,
		XPEarned:             ws.XPEarned,
	}
	if len(ws.Monsters) > 0 {
		session.Monsters = make([]Monster, 0, len(ws.Monsters))
		for _, m := range ws.Monsters {
			session.Monsters = append(session.Monsters, Monster{
				ID:    m.ID,
				Name:  m.Name,
				HP:    m.HP,
				MaxHP: m.MaxHP,
			})
		}
	}
	if ws.AmmoRemaining != nil {
		ammo := ws.AmmoRemaining.Int()
		session.AmmoRemaining = &ammo
	}
	if len(ws.LootRolled) > 0 {
		session.Loot = append([]state.Item(nil), ws.LootRolled...)
	}
	return session, nil
}
