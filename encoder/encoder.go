package encoder

import (
	"errors"
	"fmt"
	"sort"

	"pokezero/dex"
	"pokezero/game"
	"pokezero/meta"
	"pokezero/utils"
)

// LookupError reports a name in the battle document that is missing from its reference table.
// The whole turn is unencodable.
type LookupError struct {
	Path string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Encoder turns battle documents into fixed-length vectors. It only reads its tables, so one
// Encoder can serve any number of goroutines.
type Encoder struct {
	tables *dex.Tables
	schema *Schema
}

func New(tables *dex.Tables) *Encoder {
	return &Encoder{tables: tables, schema: NewSchema(tables)}
}

func (e *Encoder) Schema() *Schema {
	return e.schema
}

// EncodeRaw decodes a battle document and encodes it.
func (e *Encoder) EncodeRaw(raw []byte) ([]float64, error) {
	battle, err := game.ParseBattle(raw)
	if err != nil {
		return nil, err
	}
	return e.Encode(battle)
}

// Encode builds the vector for one turn. Fields the document does not address stay at the
// sentinel. On error no vector is returned.
func (e *Encoder) Encode(battle *game.Battle) ([]float64, error) {
	if err := battle.Validate(); err != nil {
		return nil, err
	}

	w := &writer{schema: e.schema, vec: e.schema.NewVector()}
	for side := range battle.Sides {
		if err := e.encodeSide(w, side, &battle.Sides[side]); err != nil {
			return nil, err
		}
	}
	if err := e.encodeField(w, &battle.Field); err != nil {
		return nil, err
	}
	return w.vec, nil
}

func (e *Encoder) encodeSide(w *writer, side int, s *game.Side) error {
	if len(s.Pokemon) > meta.PARTY_SIZE {
		return sideError(side, "%d pokemon, at most %d fit", len(s.Pokemon), meta.PARTY_SIZE)
	}

	// slots follow species id order, not document order
	party := make([]*game.Pokemon, len(s.Pokemon))
	for i := range s.Pokemon {
		party[i] = &s.Pokemon[i]
	}
	sort.SliceStable(party, func(i, j int) bool {
		return party[i].SpeciesState.ID < party[j].SpeciesState.ID
	})
	for i := 1; i < len(party); i++ {
		if party[i].SpeciesState.ID == party[i-1].SpeciesState.ID {
			return sideError(side, "species %q appears twice", party[i].SpeciesState.ID)
		}
	}

	for slot, p := range party {
		if err := e.encodePokemon(w, side, slot, p); err != nil {
			return err
		}
	}

	e.encodeSideConditions(w, side, s.SideConditions)
	e.encodeSlotConditions(w, side, s.SlotConditions)
	return nil
}

func (e *Encoder) encodePokemon(w *writer, side, slot int, p *game.Pokemon) error {
	path := fmt.Sprintf("sides[%d].pokemon[%s]", side, p.SpeciesState.ID)

	w.set(PokemonField(side, slot, "active"), flag(*p.IsActive))

	if *p.Ability != "" {
		id, err := e.tables.ID(dex.Abilities, *p.Ability)
		if err != nil {
			return &LookupError{Path: path + ".ability", Err: err}
		}
		w.set(PokemonField(side, slot, "ability"), float64(id))
	}
	if *p.Item != "" {
		id, err := e.tables.ID(dex.Items, *p.Item)
		if err != nil {
			return &LookupError{Path: path + ".item", Err: err}
		}
		w.set(PokemonField(side, slot, "item"), float64(id))
	}

	for _, name := range p.Types {
		if id, err := e.tables.ID(dex.Types, name); err == nil {
			w.hot(PokemonField(side, slot, "types"), id)
		}
	}

	if err := e.encodeMoves(w, side, slot, path, p.MoveSlots); err != nil {
		return err
	}

	if *p.Status != "" {
		id, err := e.tables.ID(dex.Statuses, *p.Status)
		if err != nil {
			return &LookupError{Path: path + ".status", Err: err}
		}
		w.hot(PokemonField(side, slot, "status"), id)
	}

	base := p.BaseStoredStats
	maxHP := p.MaxHP
	if maxHP <= 0 {
		maxHP = base.HP
	}
	if maxHP <= 0 {
		return &game.ProtocolError{Doc: "battle", Reason: path + ": max hp must be positive"}
	}
	stats := PokemonField(side, slot, "stats")
	for i, v := range []float64{statRatio(*p.HP, maxHP), normStat(base.HP), normStat(base.Atk), normStat(base.Def), normStat(base.Spa), normStat(base.Spd), normStat(base.Spe)} {
		w.setAt(stats, i, v)
	}

	b := p.Boosts
	boosts := PokemonField(side, slot, "boosts")
	for i, v := range []float64{b.Atk, b.Def, b.Spa, b.Spd, b.Spe, b.Accuracy, b.Evasion} {
		w.setAt(boosts, i, normBoost(v))
	}

	w.set(PokemonField(side, slot, "trapped"), p.Trapped.Value())

	if *p.IsActive {
		for _, vol := range p.Volatiles.IDs() {
			if id, err := e.tables.ID(dex.Volatiles, vol); err == nil {
				w.hot(SideField(side, "volatiles"), id)
			}
		}
	}
	return nil
}

type rankedMove struct {
	id   int
	slot *game.MoveSlot
}

func (e *Encoder) encodeMoves(w *writer, side, slot int, path string, slots []game.MoveSlot) error {
	if len(slots) > meta.MOVE_SLOTS {
		return &game.ProtocolError{Doc: "battle", Reason: fmt.Sprintf("%s: %d moves, at most %d fit", path, len(slots), meta.MOVE_SLOTS)}
	}

	moves := make([]rankedMove, 0, len(slots))
	for i := range slots {
		id, err := e.tables.ID(dex.Moves, slots[i].ID)
		if err != nil {
			return &LookupError{Path: fmt.Sprintf("%s.moveSlots[%d]", path, i), Err: err}
		}
		moves = append(moves, rankedMove{id: id, slot: &slots[i]})
	}
	sort.Slice(moves, func(i, j int) bool { return moves[i].id < moves[j].id })

	for i, m := range moves {
		if i > 0 && moves[i-1].id == m.id {
			return &game.ProtocolError{Doc: "battle", Reason: fmt.Sprintf("%s: move %q appears twice", path, m.slot.ID)}
		}
		if m.slot.MaxPP <= 0 {
			return &game.ProtocolError{Doc: "battle", Reason: fmt.Sprintf("%s: move %q has no max pp", path, m.slot.ID)}
		}
		w.set(MoveField(side, slot, i, "id"), float64(m.id))
		w.set(MoveField(side, slot, i, "pp"), 2*(m.slot.PP/m.slot.MaxPP)-1)
		w.set(MoveField(side, slot, i, "disabled"), m.slot.Disabled.Value())
	}
	return nil
}

func (e *Encoder) encodeSideConditions(w *writer, side int, conds game.Effects) {
	for _, key := range conds.IDs() {
		if !e.tables.Has(dex.SideConditions, key) {
			continue
		}
		cond := conds[key]
		switch utils.ToID(key) {
		case "stealthrock":
			w.set(SideField(side, "stealthrock"), 1)
		case "stickyweb":
			w.set(SideField(side, "stickyweb"), 1)
		case "spikes":
			w.set(SideField(side, "spikes_ctr"), cond.Layers/3*2-1)
		case "toxicspikes":
			w.set(SideField(side, "tspikes_ctr"), cond.Layers-1)
		case "reflect":
			w.set(SideField(side, "ref_ctr"), durationRatio(cond.Duration))
		case "lightscreen":
			w.set(SideField(side, "ls_ctr"), durationRatio(cond.Duration))
		case "auroraveil":
			w.set(SideField(side, "av_ctr"), durationRatio(cond.Duration))
		case "tailwind":
			w.set(SideField(side, "tw_ctr"), durationRatio(cond.Duration))
		}
	}
}

func (e *Encoder) encodeSlotConditions(w *writer, side int, conds game.Effects) {
	for _, key := range conds.IDs() {
		if !e.tables.Has(dex.SlotConditions, key) {
			continue
		}
		cond := conds[key]
		switch utils.ToID(key) {
		case "wish":
			w.set(SideField(side, "wish_ctr"), cond.Duration*2-1)
			w.set(SideField(side, "wish_hp"), normStat(cond.HP))
		case "futuremove":
			w.set(SideField(side, "future_move"), 1)
			w.set(SideField(side, "future_ctr"), cond.Duration-1)
		}
	}
}

func (e *Encoder) encodeField(w *writer, f *game.Field) error {
	if f.WeatherState.ID != "" {
		id, err := e.tables.ID(dex.Weathers, f.WeatherState.ID)
		if err != nil {
			return &LookupError{Path: "field.weatherState", Err: err}
		}
		w.hot("weather", id)
		w.set("weather_ctr", durationRatio(f.WeatherState.Duration))
	}

	if f.TerrainState.ID != "" {
		id, err := e.tables.ID(dex.Terrains, f.TerrainState.ID)
		if err != nil {
			return &LookupError{Path: "field.terrainState", Err: err}
		}
		w.hot("terrain", id)
		w.set("terrain_ctr", durationRatio(f.TerrainState.Duration))
	}

	for _, key := range f.PseudoWeather.IDs() {
		if utils.ToID(key) == "trickroom" {
			w.set("trick_room", 1)
			w.set("tr_ctr", f.PseudoWeather[key].Duration)
		}
	}
	return nil
}

func sideError(side int, format string, args ...any) error {
	return &game.ProtocolError{Doc: "battle", Reason: fmt.Sprintf("sides[%d]: ", side) + fmt.Sprintf(format, args...)}
}

// IsLookupError reports whether err came from a reference-table miss.
func IsLookupError(err error) bool {
	var lerr *LookupError
	return errors.As(err, &lerr)
}

type writer struct {
	schema *Schema
	vec    []float64
}

func (w *writer) set(name string, v float64) {
	w.vec[w.schema.Offset(name, 0)] = v
}

func (w *writer) setAt(name string, i int, v float64) {
	w.vec[w.schema.Offset(name, i)] = v
}

func (w *writer) hot(name string, i int) {
	w.vec[w.schema.Offset(name, i)] = 1
}

func flag(b bool) float64 {
	return game.Flag(b).Value()
}

// statRatio maps current/max hp to [-1, 1].
func statRatio(hp, maxHP float64) float64 {
	return 2*(hp/maxHP) - 1
}

// normStat maps a stat to roughly [-1, 1], taking 500 as the highest stat.
func normStat(stat float64) float64 {
	return stat/500*2 - 1
}

// normBoost maps a boost stage in [-6, 6] to [-1, 1].
func normBoost(boost float64) float64 {
	return (boost+6)/6 - 1
}

// durationRatio maps a duration in turns to [-1, 1] over a 7 turn span.
func durationRatio(duration float64) float64 {
	return duration/7*2 - 1
}
