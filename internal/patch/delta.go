package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"pubkey-quest/engine/internal/state"
)

// FlexInt is an int that unmarshals from both JSON numbers and their
// string forms. The quest backend stringifies numerics on some paths.
type FlexInt int

// UnmarshalJSON accepts 2, "2", and null (left at zero).
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == "" {
			return nil
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("flex int %q: %w", raw, err)
		}
		*f = FlexInt(parsed)
		return nil
	}
	var parsed int
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	*f = FlexInt(parsed)
	return nil
}

// MarshalJSON always emits the numeric form.
func (f FlexInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(f))
}

// Int returns the plain value.
func (f FlexInt) Int() int {
	return int(f)
}

// Delta is a partial-state diff. A nil field means the region is
// untouched; JSON null decodes to nil too. A present field replaces
// the region wholesale, so a pointer to an empty slice clears it.
type Delta struct {
	HP      *FlexInt `json:"hp,omitempty"`
	MaxHP   *FlexInt `json:"max_hp,omitempty"`
	Mana    *FlexInt `json:"mana,omitempty"`
	MaxMana *FlexInt `json:"max_mana,omitempty"`
	Fatigue *FlexInt `json:"fatigue,omitempty"`
	Hunger  *FlexInt `json:"hunger,omitempty"`
	Gold    *FlexInt `json:"gold,omitempty"`
	XP      *FlexInt `json:"xp,omitempty"`

	TimeOfDay  *FlexInt `json:"time_of_day,omitempty"`
	CurrentDay *FlexInt `json:"current_day,omitempty"`

	Location *string `json:"location,omitempty"`
	District *string `json:"district,omitempty"`
	Building *string `json:"building,omitempty"`

	TravelProgress *float64 `json:"travel_progress,omitempty"`
	TravelStopped  *bool    `json:"travel_stopped,omitempty"`

	NPCs            *[]string               `json:"npcs,omitempty"`
	Buildings       *map[string]bool        `json:"buildings,omitempty"`
	ActiveEffects   *[]state.ActiveEffect   `json:"active_effects,omitempty"`
	EnrichedEffects *[]state.EnrichedEffect `json:"enriched_effects,omitempty"`
	Vault           *[]state.Item           `json:"vault,omitempty"`
}

// IsEmpty reports whether no region is present.
func (d Delta) IsEmpty() bool {
	return len(Regions(d)) == 0
}

// Regions lists the region names present in the delta, in declaration
// order. Used for logging and the journal.
func Regions(d Delta) []string {
	regions := make([]string, 0, 4)
	if d.HP != nil {
		regions = append(regions, "hp")
	}
	if d.MaxHP != nil {
		regions = append(regions, "max_hp")
	}
	if d.Mana != nil {
		regions = append(regions, "mana")
	}
	if d.MaxMana != nil {
		regions = append(regions, "max_mana")
	}
	if d.Fatigue != nil {
		regions = append(regions, "fatigue")
	}
	if d.Hunger != nil {
		regions = append(regions, "hunger")
	}
	if d.Gold != nil {
		regions = append(regions, "gold")
	}
	if d.XP != nil {
		regions = append(regions, "xp")
	}
	if d.TimeOfDay != nil {
		regions = append(regions, "time_of_day")
	}
	if d.CurrentDay != nil {
		regions = append(regions, "current_day")
	}
	if d.Location != nil {
		regions = append(regions, "location")
	}
	if d.District != nil {
		regions = append(regions, "district")
	}
	if d.Building != nil {
		regions = append(regions, "building")
	}
	if d.TravelProgress != nil {
		regions = append(regions, "travel_progress")
	}
	if d.TravelStopped != nil {
		regions = append(regions, "travel_stopped")
	}
	if d.NPCs != nil {
		regions = append(regions, "npcs")
	}
	if d.Buildings != nil {
		regions = append(regions, "buildings")
	}
	if d.ActiveEffects != nil {
		regions = append(regions, "active_effects")
	}
	if d.EnrichedEffects != nil {
		regions = append(regions, "enriched_effects")
	}
	if d.Vault != nil {
		regions = append(regions, "vault")
	}
	return regions
}

// Apply patches the present regions onto a copy of the view and
// returns it together with the region names touched. Absent regions
// are never cleared; applying the same delta twice yields the same
// view.
func Apply(view state.SaveView, d Delta) (state.SaveView, []string) {
	next := view.Clone()

	if d.HP != nil {
		next.HP = d.HP.Int()
	}
	if d.MaxHP != nil {
		next.MaxHP = d.MaxHP.Int()
	}
	if d.Mana != nil {
		next.Mana = d.Mana.Int()
	}
	if d.MaxMana != nil {
		next.MaxMana = d.MaxMana.Int()
	}
	if d.Fatigue != nil {
		next.Fatigue = d.Fatigue.Int()
	}
	if d.Hunger != nil {
		next.Hunger = d.Hunger.Int()
	}
	if d.Gold != nil {
		next.Gold = d.Gold.Int()
	}
	if d.XP != nil {
		next.XP = d.XP.Int()
	}
	if d.TimeOfDay != nil {
		next.TimeOfDay = d.TimeOfDay.Int()
	}
	if d.CurrentDay != nil {
		next.CurrentDay = d.CurrentDay.Int()
	}
	if d.Location != nil {
		next.Location = *d.Location
	}
	if d.District != nil {
		next.District = *d.District
	}
	if d.Building != nil {
		next.Building = *d.Building
	}
	if d.TravelProgress != nil {
		next.TravelProgress = *d.TravelProgress
	}
	if d.TravelStopped != nil {
		next.TravelStopped = *d.TravelStopped
	}
	if d.NPCs != nil {
		next.NPCs = append([]string(nil), (*d.NPCs)...)
	}
	if d.Buildings != nil {
		next.Buildings = make(map[string]bool, len(*d.Buildings))
		for k, open := range *d.Buildings {
			next.Buildings[k] = open
		}
	}
	if d.ActiveEffects != nil {
		next.ActiveEffects = append([]state.ActiveEffect(nil), (*d.ActiveEffects)...)
	}
	if d.EnrichedEffects != nil {
		next.EnrichedEffects = append([]state.EnrichedEffect(nil), (*d.EnrichedEffects)...)
	}
	if d.Vault != nil {
		next.Vault = append([]state.Item(nil), (*d.Vault)...)
	}

	return next, Regions(d)
}
