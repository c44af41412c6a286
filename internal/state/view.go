package state

// ActiveEffect stores only runtime state for an effect; template data
// (name, category, modifiers) arrives separately as EnrichedEffect.
type ActiveEffect struct {
	EffectID          string  `json:"effect_id"`
	EffectIndex       int     `json:"effect_index"`
	DurationRemaining float64 `json:"duration_remaining"`
	TotalDuration     float64 `json:"total_duration"`
	DelayRemaining    float64 `json:"delay_remaining,omitempty"`
	AppliedAt         int     `json:"applied_at"`
}

// EnrichedEffect combines runtime state with template data for display.
type EnrichedEffect struct {
	ActiveEffect
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Category      string         `json:"category"`
	StatModifiers map[string]int `json:"stat_modifiers,omitempty"`
	TickInterval  float64        `json:"tick_interval,omitempty"`
}

// Item is one vault or inventory stack.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Quantity int    `json:"quantity"`
}

// SaveView is the client-side cache of the server's save state. Each
// field group is an independently patchable region; the patcher
// replaces regions wholesale and never merges inside one.
type SaveView struct {
	HP      int `json:"hp"`
	MaxHP   int `json:"max_hp"`
	Mana    int `json:"mana"`
	MaxMana int `json:"max_mana"`
	Fatigue int `json:"fatigue"`
	Hunger  int `json:"hunger"`
	Gold    int `json:"gold"`
	XP      int `json:"xp"`

	TimeOfDay  int `json:"time_of_day"`
	CurrentDay int `json:"current_day"`

	Location string `json:"location"`
	District string `json:"district,omitempty"`
	Building string `json:"building,omitempty"`

	TravelProgress float64 `json:"travel_progress,omitempty"`
	TravelStopped  bool    `json:"travel_stopped,omitempty"`

	NPCs            []string         `json:"npcs,omitempty"`
	Buildings       map[string]bool  `json:"buildings,omitempty"`
	ActiveEffects   []ActiveEffect   `json:"active_effects,omitempty"`
	EnrichedEffects []EnrichedEffect `json:"enriched_effects,omitempty"`
	Vault           []Item           `json:"vault,omitempty"`
}

// Clone deep-copies the view so callers can mutate freely.
func (v SaveView) Clone() SaveView {
	cloned := v
	if v.NPCs != nil {
		cloned.NPCs = append([]string(nil), v.NPCs...)
	}
	if v.Buildings != nil {
		cloned.Buildings = make(map[string]bool, len(v.Buildings))
		for k, open := range v.Buildings {
			cloned.Buildings[k] = open
		}
	}
	if v.ActiveEffects != nil {
		cloned.ActiveEffects = append([]ActiveEffect(nil), v.ActiveEffects...)
	}
	if v.EnrichedEffects != nil {
		cloned.EnrichedEffects = make([]EnrichedEffect, len(v.EnrichedEffects))
		for i, effect := range v.EnrichedEffects {
			cloned.EnrichedEffects[i] = effect.clone()
		}
	}
	if v.Vault != nil {
		cloned.Vault = append([]Item(nil), v.Vault...)
	}
	return cloned
}

func (e EnrichedEffect) clone() EnrichedEffect {
	cloned := e
	if e.StatModifiers != nil {
		cloned.StatModifiers = make(map[string]int, len(e.StatModifiers))
		for k, mod := range e.StatModifiers {
			cloned.StatModifiers[k] = mod
		}
	}
	return cloned
}
