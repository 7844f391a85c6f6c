package encoder

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"pokezero/dex"
	"pokezero/game"
	"pokezero/meta"

	"github.com/stretchr/testify/require"
)

func loadTables(t *testing.T) *dex.Tables {
	tables, err := dex.Load("../dex/testdata")
	require.NoError(t, err)
	return tables
}

func loadBattle(t *testing.T) []byte {
	raw, err := os.ReadFile("testdata/battle.json")
	require.NoError(t, err)
	return raw
}

func value(t *testing.T, s *Schema, vec []float64, name string, i int) float64 {
	t.Helper()
	return vec[s.Offset(name, i)]
}

func TestSchema(t *testing.T) {
	tables := loadTables(t)
	s := NewSchema(tables)

	t.Run("fields tile the vector without gaps", func(t *testing.T) {
		next := 0
		for _, f := range s.Fields() {
			require.Equal(t, next, f.Offset, f.Name)
			require.Positive(t, f.Width, f.Name)
			next += f.Width
		}
		require.Equal(t, s.Len(), next)
	})

	t.Run("one-hot widths follow the tables", func(t *testing.T) {
		f, ok := s.Field(PokemonField(0, 0, "types"))
		require.True(t, ok)
		require.Equal(t, tables.Len(dex.Types), f.Width)

		f, ok = s.Field(PokemonField(1, 5, "status"))
		require.True(t, ok)
		require.Equal(t, tables.Len(dex.Statuses), f.Width)

		f, ok = s.Field("weather")
		require.True(t, ok)
		require.Equal(t, tables.Len(dex.Weathers), f.Width)
	})

	t.Run("length grows with a table", func(t *testing.T) {
		raw := map[dex.Kind]map[string]int{}
		for _, kind := range dex.AllKinds {
			raw[kind] = map[string]int{}
			for id, name := range tables.Names(kind) {
				raw[kind][name] = id
			}
		}
		raw[dex.Types]["grass"] = tables.Len(dex.Types)
		bigger, err := dex.New(raw)
		require.NoError(t, err)

		// one extra type bit per pokemon slot
		require.Equal(t, s.Len()+meta.NUM_SIDES*meta.PARTY_SIZE, NewSchema(bigger).Len())
	})

	t.Run("new vector is all sentinel", func(t *testing.T) {
		for _, v := range s.NewVector() {
			require.Equal(t, meta.SENTINEL, v)
		}
	})

	t.Run("offset panics outside a field", func(t *testing.T) {
		require.Panics(t, func() { s.Offset("nope", 0) })
		require.Panics(t, func() { s.Offset("trick_room", 1) })
	})
}

func TestEncode(t *testing.T) {
	tables := loadTables(t)
	enc := New(tables)
	s := enc.Schema()

	vec, err := enc.EncodeRaw(loadBattle(t))
	require.NoError(t, err)
	require.Len(t, vec, s.Len())

	t.Run("pokemon are ordered by species id", func(t *testing.T) {
		// blastoise sorts before pikachu
		require.Equal(t, -1.0, value(t, s, vec, PokemonField(0, 0, "active"), 0))
		require.Equal(t, 1.0, value(t, s, vec, PokemonField(0, 1, "active"), 0))
		require.Equal(t, 2.0, value(t, s, vec, PokemonField(0, 0, "ability"), 0))
		require.Equal(t, 0.0, value(t, s, vec, PokemonField(0, 1, "ability"), 0))
	})

	t.Run("empty item keeps the sentinel", func(t *testing.T) {
		require.Equal(t, meta.SENTINEL, value(t, s, vec, PokemonField(0, 0, "item"), 0))
		require.Equal(t, 0.0, value(t, s, vec, PokemonField(0, 1, "item"), 0))
		require.Equal(t, 1.0, value(t, s, vec, PokemonField(1, 0, "item"), 0))
	})

	t.Run("status is one-hot", func(t *testing.T) {
		status := PokemonField(0, 1, "status")
		for i := 0; i < tables.Len(dex.Statuses); i++ {
			want := -1.0
			if i == 2 {
				want = 1
			}
			require.Equal(t, want, value(t, s, vec, status, i))
		}
		// no status: untouched
		require.Equal(t, meta.SENTINEL, value(t, s, vec, PokemonField(0, 0, "status"), 0))
	})

	t.Run("types outside the table are skipped", func(t *testing.T) {
		types := PokemonField(1, 0, "types")
		require.Equal(t, 1.0, value(t, s, vec, types, 1))
		require.Equal(t, meta.SENTINEL, value(t, s, vec, types, 0))
		require.Equal(t, meta.SENTINEL, value(t, s, vec, types, 2))
	})

	t.Run("moves are ordered by move id", func(t *testing.T) {
		require.Equal(t, 1.0, value(t, s, vec, MoveField(0, 1, 0, "id"), 0))
		require.InDelta(t, 0.25, value(t, s, vec, MoveField(0, 1, 0, "pp"), 0), 1e-9)
		require.Equal(t, -1.0, value(t, s, vec, MoveField(0, 1, 0, "disabled"), 0))

		require.Equal(t, 2.0, value(t, s, vec, MoveField(0, 1, 1, "id"), 0))
		require.Equal(t, 1.0, value(t, s, vec, MoveField(0, 1, 1, "disabled"), 0))

		require.Equal(t, 3.0, value(t, s, vec, MoveField(0, 1, 2, "id"), 0))
		require.Equal(t, meta.SENTINEL, value(t, s, vec, MoveField(0, 1, 3, "id"), 0))
	})

	t.Run("stats and boosts are normalized", func(t *testing.T) {
		stats := PokemonField(0, 1, "stats")
		require.InDelta(t, -0.5, value(t, s, vec, stats, 0), 1e-9)
		require.InDelta(t, 180.0/500*2-1, value(t, s, vec, stats, 1), 1e-9)
		require.InDelta(t, 188.0/500*2-1, value(t, s, vec, stats, 6), 1e-9)

		boosts := PokemonField(0, 1, "boosts")
		require.InDelta(t, -1.0/6, value(t, s, vec, boosts, 0), 1e-9)
		require.InDelta(t, 1.0/3, value(t, s, vec, boosts, 2), 1e-9)
	})

	t.Run("missing maxhp falls back to the base hp", func(t *testing.T) {
		require.InDelta(t, 0.0, value(t, s, vec, PokemonField(1, 0, "stats"), 0), 1e-9)
		boosts := PokemonField(1, 0, "boosts")
		require.Equal(t, 1.0, value(t, s, vec, boosts, 4))
		require.Equal(t, -1.0, value(t, s, vec, boosts, 6))
		require.Equal(t, 1.0, value(t, s, vec, PokemonField(1, 0, "trapped"), 0))
	})

	t.Run("only the active pokemon sets volatiles", func(t *testing.T) {
		volatiles := SideField(0, "volatiles")
		require.Equal(t, 1.0, value(t, s, vec, volatiles, 0))
		require.Equal(t, meta.SENTINEL, value(t, s, vec, volatiles, 1))
	})

	t.Run("side conditions", func(t *testing.T) {
		require.Equal(t, 1.0, value(t, s, vec, SideField(0, "stealthrock"), 0))
		require.Equal(t, meta.SENTINEL, value(t, s, vec, SideField(0, "stickyweb"), 0))
		require.InDelta(t, 1.0/3, value(t, s, vec, SideField(0, "spikes_ctr"), 0), 1e-9)
		require.InDelta(t, 3.0/7, value(t, s, vec, SideField(1, "ref_ctr"), 0), 1e-9)
		require.InDelta(t, -1.0/7, value(t, s, vec, SideField(1, "tw_ctr"), 0), 1e-9)
	})

	t.Run("slot conditions", func(t *testing.T) {
		require.Equal(t, 1.0, value(t, s, vec, SideField(0, "wish_ctr"), 0))
		require.InDelta(t, -0.4, value(t, s, vec, SideField(0, "wish_hp"), 0), 1e-9)
		require.Equal(t, 1.0, value(t, s, vec, SideField(1, "future_move"), 0))
		require.Equal(t, 1.0, value(t, s, vec, SideField(1, "future_ctr"), 0))
		require.Equal(t, meta.SENTINEL, value(t, s, vec, SideField(0, "future_move"), 0))
	})

	t.Run("field", func(t *testing.T) {
		require.Equal(t, 1.0, value(t, s, vec, "weather", 0))
		require.Equal(t, meta.SENTINEL, value(t, s, vec, "weather", 1))
		require.InDelta(t, 1.0/7, value(t, s, vec, "weather_ctr", 0), 1e-9)
		require.Equal(t, meta.SENTINEL, value(t, s, vec, "terrain", 0))
		require.Equal(t, meta.SENTINEL, value(t, s, vec, "terrain_ctr", 0))
		require.Equal(t, 1.0, value(t, s, vec, "trick_room", 0))
		require.Equal(t, 3.0, value(t, s, vec, "tr_ctr", 0))
	})

	t.Run("empty slots stay sentinel", func(t *testing.T) {
		for _, f := range s.Fields() {
			if !strings.HasPrefix(f.Name, "side1.pokemon1.") {
				continue
			}
			for i := 0; i < f.Width; i++ {
				require.Equal(t, meta.SENTINEL, vec[f.Offset+i], f.Name)
			}
		}
	})
}

func TestEncodeIsDeterministic(t *testing.T) {
	enc := New(loadTables(t))
	raw := loadBattle(t)

	first, err := enc.EncodeRaw(raw)
	require.NoError(t, err)
	second, err := enc.EncodeRaw(raw)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEncodeIgnoresDocumentOrder(t *testing.T) {
	enc := New(loadTables(t))

	battle, err := game.ParseBattle(loadBattle(t))
	require.NoError(t, err)
	want, err := enc.Encode(battle)
	require.NoError(t, err)

	party := battle.Sides[0].Pokemon
	party[0], party[1] = party[1], party[0]
	moves := party[1].MoveSlots
	moves[0], moves[2] = moves[2], moves[0]

	got, err := enc.Encode(battle)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func mutate(t *testing.T, edit func(doc map[string]any)) []byte {
	var doc map[string]any
	require.NoError(t, json.Unmarshal(loadBattle(t), &doc))
	edit(doc)
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func firstPokemon(doc map[string]any, side int) map[string]any {
	sides := doc["sides"].([]any)
	return sides[side].(map[string]any)["pokemon"].([]any)[0].(map[string]any)
}

func TestEncodeErrors(t *testing.T) {
	enc := New(loadTables(t))

	t.Run("unknown ability", func(t *testing.T) {
		raw := mutate(t, func(doc map[string]any) {
			firstPokemon(doc, 0)["ability"] = "Levitate"
		})
		vec, err := enc.EncodeRaw(raw)
		require.Nil(t, vec)
		var lerr *LookupError
		require.ErrorAs(t, err, &lerr)
		require.ErrorIs(t, err, dex.ErrUnknownKey)
		require.Contains(t, lerr.Path, "ability")
		require.True(t, IsLookupError(err))
	})

	t.Run("unknown move", func(t *testing.T) {
		raw := mutate(t, func(doc map[string]any) {
			slots := firstPokemon(doc, 1)["moveSlots"].([]any)
			slots[0].(map[string]any)["id"] = "splash"
		})
		_, err := enc.EncodeRaw(raw)
		require.ErrorIs(t, err, dex.ErrUnknownKey)
	})

	t.Run("unknown weather", func(t *testing.T) {
		raw := mutate(t, func(doc map[string]any) {
			doc["field"].(map[string]any)["weatherState"] = map[string]any{"id": "fog"}
		})
		_, err := enc.EncodeRaw(raw)
		require.ErrorIs(t, err, dex.ErrUnknownKey)
	})

	t.Run("missing field", func(t *testing.T) {
		raw := mutate(t, func(doc map[string]any) {
			delete(firstPokemon(doc, 0), "boosts")
		})
		_, err := enc.EncodeRaw(raw)
		var perr *game.ProtocolError
		require.ErrorAs(t, err, &perr)
		require.False(t, IsLookupError(err))
	})

	t.Run("duplicate species", func(t *testing.T) {
		raw := mutate(t, func(doc map[string]any) {
			side := doc["sides"].([]any)[1].(map[string]any)
			party := side["pokemon"].([]any)
			side["pokemon"] = append(party, party[0])
		})
		_, err := enc.EncodeRaw(raw)
		var perr *game.ProtocolError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("too many moves", func(t *testing.T) {
		raw := mutate(t, func(doc map[string]any) {
			p := firstPokemon(doc, 1)
			slots := p["moveSlots"].([]any)
			for _, id := range []string{"thunderbolt", "quickattack", "irontail", "surf"} {
				slots = append(slots, map[string]any{"id": id, "pp": 1, "maxpp": 1, "disabled": false})
			}
			p["moveSlots"] = slots
		})
		_, err := enc.EncodeRaw(raw)
		var perr *game.ProtocolError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("one side", func(t *testing.T) {
		raw := mutate(t, func(doc map[string]any) {
			doc["sides"] = doc["sides"].([]any)[:1]
		})
		_, err := enc.EncodeRaw(raw)
		var perr *game.ProtocolError
		require.ErrorAs(t, err, &perr)
	})
}
