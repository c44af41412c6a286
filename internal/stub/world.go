package stub

import (
	"math/rand"
	"sync"
	"time"

	"pubkey-quest/engine/internal/clock"
	"pubkey-quest/engine/internal/patch"
	"pubkey-quest/engine/internal/state"
	"pubkey-quest/engine/internal/wire"
	"pubkey-quest/engine/logging"
)

// Combat tuning for the stub encounter. The numbers are small on
// purpose; fights resolve in a handful of rounds.
const (
	playerAC      = 12
	playerToHit   = 4
	playerReach   = 1
	monsterAC     = 11
	monsterToHit  = 3
	monsterReach  = 0
	fleeDC        = 10
	deathSaveDC   = 10
	encounterXP   = 35
	startRange    = 3
	fatiguePerMin = 30
	hungerPerMin  = 45
	idlePauseGap  = 10 * clock.GameMinute
)

// Config seeds the stub world.
type Config struct {
	Seed           int64
	StartTimeOfDay int
	StartDay       int
}

// World is an in-process quest server: real time advance, partial
// deltas, and a dice-driven combat encounter. It exists so the engine
// can run end to end without a backend; every roll comes from one
// seeded source, so a fixed seed replays a fixed session.
type World struct {
	mu    sync.Mutex
	cfg   Config
	wall  logging.Clock
	rng   *rand.Rand
	saves map[string]*saveState
}

type saveState struct {
	view         state.SaveView
	anchor       time.Time
	anchorAbs    int
	baselineSent bool
	lastTick     time.Time
	baseFatigue  int
	baseHunger   int
	pending      *patch.Delta
	combat       *combatSession
}

type combatSession struct {
	phase        string
	turnPhase    string
	round        int
	rangeSteps   int
	monsterName  string
	monsterHP    int
	monsterMax   int
	saveSucc     int
	saveFail     int
	bonusAvail   bool
	hitThisRound bool
	xpEarned     int
	loot         []state.Item
	log          []string
}

// NewWorld constructs the stub world. A nil wall falls back to the
// system clock; a zero start time begins at 08:00 on day one.
func NewWorld(cfg Config, wall logging.Clock) *World {
	if wall == nil {
		wall = logging.SystemClock{}
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	if cfg.StartTimeOfDay <= 0 {
		cfg.StartTimeOfDay = 480
	}
	if cfg.StartDay <= 0 {
		cfg.StartDay = 1
	}
	return &World{
		cfg:   cfg,
		wall:  wall,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		saves: make(map[string]*saveState),
	}
}

func flexOf(v int) *patch.FlexInt {
	f := patch.FlexInt(v)
	return &f
}

func (w *World) save(npub, saveID string) *saveState {
	key := npub + "|" + saveID
	if sv, ok := w.saves[key]; ok {
		return sv
	}
	now := w.wall.Now()
	sv := &saveState{
		view: state.SaveView{
			HP:       20,
			MaxHP:    20,
			Mana:     10,
			MaxMana:  10,
			Fatigue:  10,
			Hunger:   15,
			Gold:     200,
			XP:       120,
			Location: "Copperhill",
			District: "Market Ward",
			NPCs:     []string{"Maren the Broker", "Old Tychus"},
			Buildings: map[string]bool{
				"bathhouse": true,
				"tavern":    true,
				"vault":     false,
			},
			Vault: []state.Item{
				{ID: "torch", Name: "Torch", Quantity: 3},
				{ID: "ration", Name: "Trail Ration", Quantity: 5},
			},
		},
		anchor:      now,
		anchorAbs:   (w.cfg.StartDay-1)*clock.MinutesPerDay + w.cfg.StartTimeOfDay,
		lastTick:    now,
		baseFatigue: 10,
		baseHunger:  15,
	}
	w.saves[key] = sv
	return sv
}

func (sv *saveState) absMinutes(now time.Time) int {
	elapsed := now.Sub(sv.anchor)
	if elapsed < 0 {
		elapsed = 0
	}
	return sv.anchorAbs + int(elapsed/clock.GameMinute)
}

// Tick advances the session to the current instant and answers with
// the delta accumulated since the last tick. The first tick for a save
// carries the full baseline.
func (w *World) Tick(npub, saveID string, req wire.TickRequestV1) wire.TickResponseV1 {
	if npub == "" || saveID == "" {
		return wire.TickResponseV1{Success: false, Message: "missing identity"}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	sv := w.save(npub, saveID)
	now := w.wall.Now()
	abs := sv.absMinutes(now)
	timeOfDay := abs % clock.MinutesPerDay
	day := abs/clock.MinutesPerDay + 1

	data := &wire.TickDataV1{
		TimeOfDay:  flexOf(timeOfDay),
		CurrentDay: flexOf(day),
	}
	if !sv.lastTick.IsZero() && now.Sub(sv.lastTick) > idlePauseGap {
		data.AutoPause = true
	}
	sv.lastTick = now

	var delta *patch.Delta
	if !sv.baselineSent {
		sv.baselineSent = true
		sv.pending = nil
		sv.view.TimeOfDay = timeOfDay
		sv.view.CurrentDay = day
		delta = w.baselineDelta(sv)
	} else {
		delta = w.progressDelta(sv, abs)
	}
	sv.view.TimeOfDay = timeOfDay
	sv.view.CurrentDay = day

	return wire.TickResponseV1{Success: true, Delta: delta, Data: data}
}

// baselineDelta replays the whole save so a fresh client converges in
// one tick.
func (w *World) baselineDelta(sv *saveState) *patch.Delta {
	v := sv.view
	npcs := append([]string(nil), v.NPCs...)
	buildings := make(map[string]bool, len(v.Buildings))
	for k, open := range v.Buildings {
		buildings[k] = open
	}
	vault := append([]state.Item(nil), v.Vault...)
	location := v.Location
	district := v.District
	return &patch.Delta{
		HP:        flexOf(v.HP),
		MaxHP:     flexOf(v.MaxHP),
		Mana:      flexOf(v.Mana),
		MaxMana:   flexOf(v.MaxMana),
		Fatigue:   flexOf(v.Fatigue),
		Hunger:    flexOf(v.Hunger),
		Gold:      flexOf(v.Gold),
		XP:        flexOf(v.XP),
		Location:  &location,
		District:  &district,
		NPCs:      &npcs,
		Buildings: &buildings,
		Vault:     &vault,
	}
}

// progressDelta drips fatigue and hunger as game minutes pass, folding
// in any regions combat resolution left pending.
func (w *World) progressDelta(sv *saveState, abs int) *patch.Delta {
	elapsed := abs - sv.anchorAbs
	if elapsed < 0 {
		elapsed = 0
	}
	delta := patch.Delta{}
	changed := false
	if sv.pending != nil {
		delta = *sv.pending
		sv.pending = nil
		changed = true
	}

	fatigue := sv.baseFatigue + elapsed/fatiguePerMin
	if fatigue > 100 {
		fatigue = 100
	}
	if fatigue != sv.view.Fatigue {
		sv.view.Fatigue = fatigue
		delta.Fatigue = flexOf(fatigue)
		changed = true
	}

	hunger := sv.baseHunger + elapsed/hungerPerMin
	if hunger > 100 {
		hunger = 100
	}
	if hunger != sv.view.Hunger {
		sv.view.Hunger = hunger
		delta.Hunger = flexOf(hunger)
		changed = true
	}

	if !changed {
		return nil
	}
	return &delta
}

func (w *World) roll(sides, bonus int) int {
	return w.rng.Intn(sides) + 1 + bonus
}
