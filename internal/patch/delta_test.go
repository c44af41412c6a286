package patch

import (
	"encoding/json"
	"testing"

	"pubkey-quest/engine/internal/state"
)

func intPtr(v int) *FlexInt {
	f := FlexInt(v)
	return &f
}

func TestApplyLeavesAbsentRegionsUntouched(t *testing.T) {
	base := state.SaveView{
		HP:        12,
		Hunger:    3,
		Fatigue:   4,
		TimeOfDay: 700,
		NPCs:      []string{"bard", "guard"},
	}

	next, regions := Apply(base, Delta{Hunger: intPtr(1)})

	if next.Hunger != 1 {
		t.Fatalf("expected hunger 1, got %d", next.Hunger)
	}
	if next.HP != 12 || next.Fatigue != 4 || next.TimeOfDay != 700 {
		t.Fatalf("expected untouched regions preserved, got %+v", next)
	}
	if len(next.NPCs) != 2 {
		t.Fatalf("expected NPC list untouched, got %v", next.NPCs)
	}
	if len(regions) != 1 || regions[0] != "hunger" {
		t.Fatalf("expected regions [hunger], got %v", regions)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	base := state.SaveView{Hunger: 3, NPCs: []string{"bard"}}
	npcs := []string{"innkeeper"}

	Apply(base, Delta{Hunger: intPtr(0), NPCs: &npcs})

	if base.Hunger != 3 {
		t.Fatalf("expected input hunger untouched, got %d", base.Hunger)
	}
	if base.NPCs[0] != "bard" {
		t.Fatalf("expected input NPCs untouched, got %v", base.NPCs)
	}
}

func TestApplyExplicitEmptyCollectionClears(t *testing.T) {
	base := state.SaveView{
		ActiveEffects: []state.ActiveEffect{{EffectID: "tipsy"}},
		NPCs:          []string{"bard"},
	}
	empty := []state.ActiveEffect{}

	next, _ := Apply(base, Delta{ActiveEffects: &empty})

	if len(next.ActiveEffects) != 0 {
		t.Fatalf("expected effects cleared, got %v", next.ActiveEffects)
	}
	if len(next.NPCs) != 1 {
		t.Fatalf("expected NPCs untouched, got %v", next.NPCs)
	}
}

func TestApplyIsIdempotentPerDelta(t *testing.T) {
	base := state.SaveView{Gold: 5, Buildings: map[string]bool{"inn": true}}
	buildings := map[string]bool{"inn": false, "forge": true}
	d := Delta{Gold: intPtr(9), Buildings: &buildings}

	once, _ := Apply(base, d)
	twice, _ := Apply(once, d)

	if twice.Gold != 9 {
		t.Fatalf("expected gold 9 after reapply, got %d", twice.Gold)
	}
	if len(twice.Buildings) != 2 || twice.Buildings["inn"] {
		t.Fatalf("unexpected buildings after reapply: %v", twice.Buildings)
	}
}

func TestDeltaDecodeNullMeansUntouched(t *testing.T) {
	var d Delta
	if err := json.Unmarshal([]byte(`{"hunger":null,"hp":7,"active_effects":null}`), &d); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if d.Hunger != nil {
		t.Fatalf("expected null hunger to decode as absent, got %v", *d.Hunger)
	}
	if d.ActiveEffects != nil {
		t.Fatalf("expected null effects to decode as absent")
	}
	if d.HP == nil || d.HP.Int() != 7 {
		t.Fatalf("expected hp present with value 7")
	}
	if regions := Regions(d); len(regions) != 1 || regions[0] != "hp" {
		t.Fatalf("expected regions [hp], got %v", regions)
	}
}

func TestDeltaDecodeEmptyCollectionStaysPresent(t *testing.T) {
	var d Delta
	if err := json.Unmarshal([]byte(`{"npcs":[]}`), &d); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if d.NPCs == nil {
		t.Fatalf("expected empty NPC list to decode as present")
	}
	if len(*d.NPCs) != 0 {
		t.Fatalf("expected empty NPC list, got %v", *d.NPCs)
	}
}

func TestFlexIntAcceptsStringForm(t *testing.T) {
	var d Delta
	if err := json.Unmarshal([]byte(`{"hunger":"2","gold":150}`), &d); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if d.Hunger == nil || d.Hunger.Int() != 2 {
		t.Fatalf("expected stringly hunger 2, got %v", d.Hunger)
	}
	if d.Gold == nil || d.Gold.Int() != 150 {
		t.Fatalf("expected numeric gold 150, got %v", d.Gold)
	}
}

func TestFlexIntRejectsGarbage(t *testing.T) {
	var d Delta
	if err := json.Unmarshal([]byte(`{"hunger":"full"}`), &d); err == nil {
		t.Fatalf("expected decode error for non-numeric string")
	}
}
