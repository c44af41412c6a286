package stub

import (
	"fmt"

	"pubkey-quest/engine/internal/patch"
	"pubkey-quest/engine/internal/state"
	"pubkey-quest/engine/internal/wire"
)

func refuse(msg string) wire.CombatResponseV1 {
	return wire.CombatResponseV1{Success: false, Error: msg}
}

// StartCombat opens the stock encounter: a dire rat at three steps.
func (w *World) StartCombat(npub, saveID string) wire.CombatResponseV1 {
	if npub == "" || saveID == "" {
		return refuse("missing identity")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	sv := w.save(npub, saveID)
	if sv.combat != nil {
		return refuse("combat already in progress")
	}

	hp := w.roll(4, 0) + w.roll(4, 0) + 3
	cs := &combatSession{
		phase:       wire.PhaseActive,
		turnPhase:   wire.TurnPhaseMove,
		round:       1,
		rangeSteps:  startRange,
		monsterName: "Dire Rat",
		monsterHP:   hp,
		monsterMax:  hp,
	}
	sv.combat = cs
	cs.say("A dire rat skitters out of the refuse, teeth bared!")
	cs.say("Round 1 begins.")
	return w.respond(sv, cs, 0)
}

// CombatMove resolves the move half of the player's round.
func (w *World) CombatMove(npub, saveID string, dir int) wire.CombatResponseV1 {
	w.mu.Lock()
	defer w.mu.Unlock()

	sv, cs, resp := w.session(npub, saveID)
	if cs == nil {
		return resp
	}
	if cs.phase != wire.PhaseActive || cs.turnPhase != wire.TurnPhaseMove {
		return refuse("not your move phase")
	}
	mark := len(cs.log)
	switch dir {
	case wire.MoveAdvance:
		if cs.rangeSteps <= 0 {
			return refuse("already at contact")
		}
		cs.rangeSteps--
		cs.say("You advance. %s", rangeLabel(cs.rangeSteps))
	case wire.MoveRetreat:
		if cs.rangeSteps >= 6 {
			return refuse("no more room to retreat")
		}
		cs.rangeSteps++
		cs.say("You fall back. %s", rangeLabel(cs.rangeSteps))
	case wire.MoveHold:
		cs.say("You hold your ground.")
	default:
		return refuse("unknown move direction")
	}
	cs.turnPhase = wire.TurnPhaseAction
	return w.respond(sv, cs, mark)
}

// CombatAction resolves attack, bonus_attack, or flee.
func (w *World) CombatAction(npub, saveID, action string) wire.CombatResponseV1 {
	w.mu.Lock()
	defer w.mu.Unlock()

	sv, cs, resp := w.session(npub, saveID)
	if cs == nil {
		return resp
	}
	if cs.phase != wire.PhaseActive || cs.turnPhase != wire.TurnPhaseAction {
		return refuse("not your action phase")
	}
	mark := len(cs.log)
	switch action {
	case wire.ActionAttack:
		if cs.rangeSteps > playerReach {
			return refuse("out of reach")
		}
		w.playerStrike(cs, 6)
	case wire.ActionBonusAttack:
		if !cs.bonusAvail {
			return refuse("no bonus attack available")
		}
		if cs.rangeSteps > playerReach {
			return refuse("out of reach")
		}
		cs.bonusAvail = false
		w.playerStrike(cs, 4)
	case wire.ActionFlee:
		if cs.rangeSteps < 2 {
			return refuse("too close to flee")
		}
		if w.roll(20, 2) >= fleeDC {
			cs.say("You break away and escape into the alleys!")
			newLines := cs.log[mark:]
			sv.combat = nil
			return wire.CombatResponseV1{
				Success: true,
				CombatStateV1: wire.CombatStateV1{
					Log:    cs.log,
					NewLog: newLines,
				},
			}
		}
		cs.say("You try to flee, but the dire rat cuts you off!")
	default:
		return refuse("unknown action")
	}
	if cs.phase == wire.PhaseActive {
		w.monsterTurn(sv, cs)
	}
	return w.respond(sv, cs, mark)
}

// CombatPass forfeits the action half of the round.
func (w *World) CombatPass(npub, saveID string) wire.CombatResponseV1 {
	w.mu.Lock()
	defer w.mu.Unlock()

	sv, cs, resp := w.session(npub, saveID)
	if cs == nil {
		return resp
	}
	if cs.phase != wire.PhaseActive || cs.turnPhase != wire.TurnPhaseAction {
		return refuse("not your action phase")
	}
	mark := len(cs.log)
	cs.say("You bide your time.")
	w.monsterTurn(sv, cs)
	return w.respond(sv, cs, mark)
}

// CombatDeathSave rolls one death save for a downed player.
func (w *World) CombatDeathSave(npub, saveID string) wire.CombatResponseV1 {
	w.mu.Lock()
	defer w.mu.Unlock()

	sv, cs, resp := w.session(npub, saveID)
	if cs == nil {
		return resp
	}
	if cs.phase != wire.PhaseDeathSaves {
		return refuse("not rolling death saves")
	}
	mark := len(cs.log)
	die := w.roll(20, 0)
	switch {
	case die == 20:
		cs.say("A surge of will! You stabilize instantly.")
		w.stabilize(sv, cs)
	case die >= deathSaveDC:
		cs.saveSucc++
		cs.say("Death save succeeded. (%d/3)", cs.saveSucc)
		if cs.saveSucc >= 3 {
			cs.say("You stabilize and drag yourself upright.")
			w.stabilize(sv, cs)
		}
	case die == 1:
		cs.saveFail += 2
		cs.say("Death save failed badly. (%d/3)", cs.saveFail)
	default:
		cs.saveFail++
		cs.say("Death save failed. (%d/3)", cs.saveFail)
	}
	if cs.saveFail >= 3 && cs.phase == wire.PhaseDeathSaves {
		cs.phase = wire.PhaseDefeat
		cs.say("Your wounds overcome you. Darkness takes hold.")
	}
	return w.respond(sv, cs, mark)
}

// CombatEnd dismisses a finished session and applies its rewards.
func (w *World) CombatEnd(npub, saveID string) wire.CombatResponseV1 {
	w.mu.Lock()
	defer w.mu.Unlock()

	sv, cs, resp := w.session(npub, saveID)
	if cs == nil {
		return resp
	}
	switch cs.phase {
	case wire.PhaseLoot, wire.PhaseVictory:
		w.applyRewards(sv, cs)
	case wire.PhaseDefeat:
		w.applyDefeat(sv)
	default:
		return refuse("combat still in progress")
	}
	sv.combat = nil
	return wire.CombatResponseV1{Success: true}
}

// ActiveCombat answers the resume query with the full session, or an
// empty state when none exists.
func (w *World) ActiveCombat(npub, saveID string) wire.ActiveCombatResponseV1 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if npub == "" || saveID == "" {
		return wire.ActiveCombatResponseV1{}
	}
	sv := w.save(npub, saveID)
	if sv.combat == nil {
		return wire.ActiveCombatResponseV1{}
	}
	return wire.ActiveCombatResponseV1{CombatStateV1: w.snapshot(sv, sv.combat, 0)}
}

func (w *World) session(npub, saveID string) (*saveState, *combatSession, wire.CombatResponseV1) {
	if npub == "" || saveID == "" {
		return nil, nil, refuse("missing identity")
	}
	sv := w.save(npub, saveID)
	if sv.combat == nil {
		return nil, nil, refuse("no active combat")
	}
	return sv, sv.combat, wire.CombatResponseV1{}
}

func (cs *combatSession) say(format string, args ...any) {
	cs.log = append(cs.log, fmt.Sprintf(format, args...))
}

func rangeLabel(steps int) string {
	switch {
	case steps <= 0:
		return "You are at contact."
	case steps == 1:
		return "The rat is a step away."
	default:
		return fmt.Sprintf("The rat is %d steps away.", steps)
	}
}

// playerStrike rolls one player attack with the given damage die.
func (w *World) playerStrike(cs *combatSession, die int) {
	attack := w.roll(20, 0)
	switch {
	case attack == 20:
		dmg := w.roll(die, 2) + w.roll(die, 0)
		cs.monsterHP -= dmg
		cs.hitThisRound = true
		cs.say("Critical hit! You slash the dire rat for %d damage.", dmg)
	case attack+playerToHit >= monsterAC:
		dmg := w.roll(die, 2)
		cs.monsterHP -= dmg
		cs.hitThisRound = true
		cs.say("You hit the dire rat for %d damage.", dmg)
	default:
		cs.say("You swing wide and miss.")
	}
	if cs.monsterHP <= 0 {
		cs.monsterHP = 0
		w.resolveVictory(cs)
	}
}

func (w *World) resolveVictory(cs *combatSession) {
	cs.xpEarned = encounterXP
	cs.say("The dire rat collapses! You gain %d XP.", encounterXP)
	coins := w.roll(6, -2)
	if coins > 0 {
		cs.loot = []state.Item{{ID: "gold-coins", Name: "Gold Coins", Quantity: coins}}
		cs.say("It was guarding a small stash: %d gold coins.", coins)
		cs.phase = wire.PhaseLoot
	} else {
		cs.phase = wire.PhaseVictory
	}
	cs.turnPhase = ""
}

// monsterTurn runs the rat's half of the round, then opens the next
// round if both sides still stand.
func (w *World) monsterTurn(sv *saveState, cs *combatSession) {
	if cs.rangeSteps > monsterReach {
		cs.rangeSteps--
		cs.say("The dire rat scurries closer.")
	} else if w.roll(20, monsterToHit) >= playerAC {
		dmg := w.roll(4, 1)
		sv.view.HP -= dmg
		cs.say("The dire rat bites you for %d damage.", dmg)
		if sv.view.HP <= 0 {
			sv.view.HP = 0
			cs.phase = wire.PhaseDeathSaves
			cs.turnPhase = ""
			cs.saveSucc = 0
			cs.saveFail = 0
			cs.say("You collapse! Your life hangs by a thread.")
			return
		}
	} else {
		cs.say("The dire rat snaps at the air and misses.")
	}
	w.nextRound(cs)
}

func (w *World) nextRound(cs *combatSession) {
	cs.round++
	cs.bonusAvail = cs.hitThisRound
	cs.hitThisRound = false
	cs.turnPhase = wire.TurnPhaseMove
	cs.say("Round %d begins.", cs.round)
}

func (w *World) stabilize(sv *saveState, cs *combatSession) {
	sv.view.HP = 1
	cs.phase = wire.PhaseActive
	cs.saveSucc = 0
	cs.saveFail = 0
	cs.hitThisRound = false
	cs.bonusAvail = false
	w.nextRound(cs)
}

// applyRewards folds a won encounter back into the save and flags the
// changed regions for the next tick's delta.
func (w *World) applyRewards(sv *saveState, cs *combatSession) {
	sv.view.XP += cs.xpEarned
	pending := patch.Delta{
		XP: flexOf(sv.view.XP),
		HP: flexOf(sv.view.HP),
	}
	for _, item := range cs.loot {
		if item.ID == "gold-coins" {
			sv.view.Gold += item.Quantity
			pending.Gold = flexOf(sv.view.Gold)
		}
	}
	sv.pending = &pending
}

// applyDefeat leaves the player alive at one hit point, lighter by a
// tenth of their coin.
func (w *World) applyDefeat(sv *saveState) {
	sv.view.HP = 1
	sv.view.Gold -= sv.view.Gold / 10
	sv.pending = &patch.Delta{
		HP:   flexOf(sv.view.HP),
		Gold: flexOf(sv.view.Gold),
	}
}

func (w *World) respond(sv *saveState, cs *combatSession, mark int) wire.CombatResponseV1 {
	return wire.CombatResponseV1{Success: true, CombatStateV1: w.snapshot(sv, cs, mark)}
}

// snapshot renders the session as wire state. mark is the log length
// before this call; everything after it goes out as NewLog.
func (w *World) snapshot(sv *saveState, cs *combatSession, mark int) wire.CombatStateV1 {
	st := wire.CombatStateV1{
		Phase:     cs.phase,
		TurnPhase: cs.turnPhase,
		Round:     cs.round,
		Range:     cs.rangeSteps,
		Monsters: []wire.CombatMonsterV1{{
			ID:    "dire-rat",
			Name:  cs.monsterName,
			HP:    cs.monsterHP,
			MaxHP: cs.monsterMax,
		}},
		Player: wire.CombatPlayerV1{
			HP:                 sv.view.HP,
			MaxHP:              sv.view.MaxHP,
			DeathSaveSuccesses: cs.saveSucc,
			DeathSaveFailures:  cs.saveFail,
		},
		BonusAttackAvailable: cs.bonusAvail,
		Log:                  append([]string(nil), cs.log...),
		XPEarned:             cs.xpEarned,
	}
	if mark < len(cs.log) {
		st.NewLog = append([]string(nil), cs.log[mark:]...)
	}
	if len(cs.loot) > 0 {
		st.LootRolled = append([]state.Item(nil), cs.loot...)
	}
	return st
}
