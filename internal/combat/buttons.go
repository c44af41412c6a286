package combat

// Buttons is the renderable availability of every combat input. It is
// derived purely from the cached session and the equipped weapon, so
// a resumed session yields the same buttons as a fresh one.
type Buttons struct {
	Advance bool `json:"advance"`
	Hold    bool `json:"hold"`
	Retreat bool `json:"retreat"`

	Attack      bool `json:"attack"`
	BonusAttack bool `json:"bonusAttack"`
	Flee        bool `json:"flee"`
	Pass        bool `json:"pass"`

	DeathSave bool `json:"deathSave"`
	End       bool `json:"end"`
}

// DeriveButtons computes which inputs the current state admits.
func DeriveButtons(s Session, weapon WeaponProfile) Buttons {
	var b Buttons
	switch s.Phase {
	case PhaseActive:
		switch s.TurnPhase {
		case TurnPhaseMove:
			b.Advance = s.Range > MinRange
			b.Retreat = s.Range < MaxRange
			b.Hold = true
		case TurnPhaseAction:
			b.Attack = attackReady(s, weapon)
			b.BonusAttack = s.BonusAttackAvailable
			b.Flee = s.Range >= FleeMinRange
			b.Pass = true
		}
	case PhaseDeathSaves:
		b.DeathSave = true
	case PhaseLoot, PhaseVictory, PhaseDefeat:
		b.End = true
	}
	return b
}
