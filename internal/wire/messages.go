package wire

import (
	"encoding/json"
	"fmt"

	"pubkey-quest/engine/internal/patch"
	"pubkey-quest/engine/internal/state"
)

// Version tracks the quest-server contract revision this engine speaks.
const Version = 1

// Endpoint paths on the quest server.
const (
	PathTick            = "/api/tick"
	PathCombatStart     = "/api/combat/start"
	PathCombatAction    = "/api/combat/action"
	PathCombatMove      = "/api/combat/move"
	PathCombatPass      = "/api/combat/pass"
	PathCombatDeathSave = "/api/combat/death-save"
	PathCombatEnd       = "/api/combat/end"
	PathCombatActive    = "/api/combat/active"
)

// Combat phase tokens as they appear on the wire.
const (
	PhaseActive     = "active"
	PhaseDeathSaves = "death_saves"
	PhaseLoot       = "loot"
	PhaseVictory    = "victory"
	PhaseDefeat     = "defeat"
)

// Turn phase tokens within an active round.
const (
	TurnPhaseMove   = "move"
	TurnPhaseAction = "action"
)

// Action tokens accepted by the combat action endpoint.
const (
	ActionAttack      = "attack"
	ActionBonusAttack = "bonus_attack"
	ActionFlee        = "flee"
)

// Move directions accepted by the combat move endpoint.
const (
	MoveAdvance = -1
	MoveHold    = 0
	MoveRetreat = 1
)

// TickRequestV1 is the body the synchronizer posts every cycle.
type TickRequestV1 struct {
	TimeOfDayMinutes int `json:"time_of_day_minutes" jsonschema:"minimum=0,maximum=1439,description=Client's interpolated minutes into the current day"`
	CurrentDay       int `json:"current_day" jsonschema:"minimum=1"`
}

// TickDataV1 is the side-channel block of a tick response. Vitals and
// effect lists present here are authoritative replacements, same as
// delta regions; time fields, when present, reconcile the clock.
type TickDataV1 struct {
	TimeOfDay       *patch.FlexInt          `json:"time_of_day,omitempty"`
	CurrentDay      *patch.FlexInt          `json:"current_day,omitempty"`
	TravelProgress  *float64                `json:"travel_progress,omitempty"`
	Arrived         bool                    `json:"arrived,omitempty"`
	AutoPause       bool                    `json:"auto_pause,omitempty"`
	Fatigue         *patch.FlexInt          `json:"fatigue,omitempty"`
	Hunger          *patch.FlexInt          `json:"hunger,omitempty"`
	HP              *patch.FlexInt          `json:"hp,omitempty"`
	EnrichedEffects *[]state.EnrichedEffect `json:"enriched_effects,omitempty"`
	ActiveEffects   *[]state.ActiveEffect   `json:"active_effects,omitempty"`
}

// TickResponseV1 is the server's answer to a tick request.
type TickResponseV1 struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Delta   *patch.Delta `json:"delta,omitempty"`
	Data    *TickDataV1  `json:"data,omitempty"`
}

// CombatRequestV1 carries the session identity every combat endpoint
// requires.
type CombatRequestV1 struct {
	Npub   string `json:"npub" jsonschema:"description=Player identity key"`
	SaveID string `json:"save_id"`
}

// CombatActionRequestV1 resolves the action turn phase.
type CombatActionRequestV1 struct {
	CombatRequestV1
	Action string `json:"action" jsonschema:"enum=attack,enum=bonus_attack,enum=flee"`
}

// CombatMoveRequestV1 resolves the move turn phase.
type CombatMoveRequestV1 struct {
	CombatRequestV1
	MoveDir int `json:"move_dir" jsonschema:"enum=-1,enum=0,enum=1,description=-1 advance toward the monster; 0 hold and ready; 1 retreat"`
}

// CombatMonsterV1 is one opposing combatant.
type CombatMonsterV1 struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	HP    int    `json:"hp"`
	MaxHP int    `json:"max_hp"`
}

// CombatPlayerV1 is the player's block in a combat state.
type CombatPlayerV1 struct {
	HP                 int `json:"hp"`
	MaxHP              int `json:"max_hp"`
	DeathSaveSuccesses int `json:"death_save_successes,omitempty"`
	DeathSaveFailures  int `json:"death_save_failures,omitempty"`
}

// CombatStateV1 is the authoritative combat session the server returns
// on every action. An empty Phase means no combat exists, which is how
// the resume query reports "nothing to restore".
type CombatStateV1 struct {
	Phase                string            `json:"phase,omitempty" jsonschema:"enum=active,enum=death_saves,enum=loot,enum=victory,enum=defeat"`
	TurnPhase            string            `json:"turn_phase,omitempty" jsonschema:"enum=move,enum=action"`
	Round                int               `json:"round,omitempty"`
	Range                int               `json:"range" jsonschema:"minimum=0,maximum=6"`
	Monsters             []CombatMonsterV1 `json:"monsters,omitempty"`
	Player               CombatPlayerV1    `json:"player"`
	Log                  []string          `json:"log,omitempty"`
	NewLog               []string          `json:"new_log,omitempty"`
	BonusAttackAvailable bool              `json:"bonus_attack_available,omitempty"`
	AmmoRemaining        *patch.FlexInt    `json:"ammo_remaining,omitempty"`
	XPEarned             int               `json:"xp_earned,omitempty"`
	LootRolled           []state.Item      `json:"loot_rolled,omitempty"`
}

// CombatResponseV1 is the envelope every combat endpoint returns: the
// full next combat state on success, or an error message.
type CombatResponseV1 struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	CombatStateV1
}

// ActiveCombatResponseV1 answers the resume query. Phase is empty when
// no session is active.
type ActiveCombatResponseV1 struct {
	CombatStateV1
}

// Active reports whether a combat session exists to resume.
func (r ActiveCombatResponseV1) Active() bool {
	return r.Phase != ""
}

// ValidPhase reports whether the token is a known combat phase.
func ValidPhase(phase string) bool {
	switch phase {
	case PhaseActive, PhaseDeathSaves, PhaseLoot, PhaseVictory, PhaseDefeat:
		return true
	default:
		return false
	}
}

// ValidTurnPhase reports whether the token is a known turn phase.
func ValidTurnPhase(turnPhase string) bool {
	switch turnPhase {
	case TurnPhaseMove, TurnPhaseAction:
		return true
	default:
		return false
	}
}

// DecodeTickResponse parses and sanity-checks a tick response body.
func DecodeTickResponse(payload []byte) (TickResponseV1, error) {
	var resp TickResponseV1
	if err := json.Unmarshal(payload, &resp); err != nil {
		return resp, fmt.Errorf("decode tick response: %w", err)
	}
	return resp, nil
}

// DecodeCombatResponse parses a combat response body and validates the
// phase tokens it carries.
func DecodeCombatResponse(payload []byte) (CombatResponseV1, error) {
	var resp CombatResponseV1
	if err := json.Unmarshal(payload, &resp); err != nil {
		return resp, fmt.Errorf("decode combat response: %w", err)
	}
	if resp.Success && resp.Phase != "" && !ValidPhase(resp.Phase) {
		return resp, fmt.Errorf("unknown combat phase %q", resp.Phase)
	}
	if resp.TurnPhase != "" && !ValidTurnPhase(resp.TurnPhase) {
		return resp, fmt.Errorf("unknown turn phase %q", resp.TurnPhase)
	}
	return resp, nil
}

// DecodeActiveCombat parses a resume query body.
func DecodeActiveCombat(payload []byte) (ActiveCombatResponseV1, error) {
	var resp ActiveCombatResponseV1
	if err := json.Unmarshal(payload, &resp); err != nil {
		return resp, fmt.Errorf("decode active combat: %w", err)
	}
	if resp.Phase != "" && !ValidPhase(resp.Phase) {
		return resp, fmt.Errorf("unknown combat phase %q", resp.Phase)
	}
	return resp, nil
}
