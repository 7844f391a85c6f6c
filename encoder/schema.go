package encoder

import (
	"fmt"
	"strings"

	"pokezero/dex"
	"pokezero/meta"
)

// Field is a named run of Width scalars starting at Offset in the encoded vector.
type Field struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Width  int    `json:"width"`
}

// Schema is the layout of the encoded battle vector. One-hot widths come from the reference
// tables, so the layout and its length follow the tables.
type Schema struct {
	fields []Field
	index  map[string]int
	size   int
}

var pokemonScalars = []string{"ability", "item"}

var sideScalars = []string{
	"stealthrock", "stickyweb",
	"spikes_ctr", "tspikes_ctr",
	"ref_ctr", "ls_ctr", "av_ctr", "tw_ctr",
	"wish_ctr", "wish_hp",
	"future_move", "future_ctr",
}

const (
	numStats  = 7 // hp ratio + 6 base stats
	numBoosts = 7 // atk, def, spa, spd, spe, accuracy, evasion
)

func NewSchema(tables *dex.Tables) *Schema {
	s := &Schema{index: map[string]int{}}

	for side := 0; side < meta.NUM_SIDES; side++ {
		for slot := 0; slot < meta.PARTY_SIZE; slot++ {
			s.add(PokemonField(side, slot, "active"), 1)
			s.add(PokemonField(side, slot, "types"), tables.Len(dex.Types))
			for _, name := range pokemonScalars {
				s.add(PokemonField(side, slot, name), 1)
			}
			s.add(PokemonField(side, slot, "status"), tables.Len(dex.Statuses))
			s.add(PokemonField(side, slot, "stats"), numStats)
			s.add(PokemonField(side, slot, "boosts"), numBoosts)
			s.add(PokemonField(side, slot, "trapped"), 1)
			for move := 0; move < meta.MOVE_SLOTS; move++ {
				s.add(MoveField(side, slot, move, "id"), 1)
				s.add(MoveField(side, slot, move, "pp"), 1)
				s.add(MoveField(side, slot, move, "disabled"), 1)
			}
		}
		s.add(SideField(side, "volatiles"), tables.Len(dex.Volatiles))
		for _, name := range sideScalars {
			s.add(SideField(side, name), 1)
		}
	}

	s.add("weather", tables.Len(dex.Weathers))
	s.add("weather_ctr", 1)
	s.add("terrain", tables.Len(dex.Terrains))
	s.add("terrain_ctr", 1)
	s.add("trick_room", 1)
	s.add("tr_ctr", 1)
	return s
}

func (s *Schema) add(name string, width int) {
	s.index[name] = len(s.fields)
	s.fields = append(s.fields, Field{Name: name, Offset: s.size, Width: width})
	s.size += width
}

// Len is the number of scalars in an encoded vector.
func (s *Schema) Len() int {
	return s.size
}

// Field returns the layout of the named field.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Offset returns the vector index of element i of the named field. It panics on an unknown field
// or an element outside the field, both of which are programming errors.
func (s *Schema) Offset(name string, i int) int {
	f, ok := s.Field(name)
	if !ok {
		panic(fmt.Sprintf("encoder: unknown field %q", name))
	}
	if i < 0 || i >= f.Width {
		panic(fmt.Sprintf("encoder: element %d outside field %q of width %d", i, name, f.Width))
	}
	return f.Offset + i
}

// Fields returns the layout in vector order.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// NewVector returns a vector of the schema's length with every field at the sentinel.
func (s *Schema) NewVector() []float64 {
	vec := make([]float64, s.size)
	for i := range vec {
		vec[i] = meta.SENTINEL
	}
	return vec
}

// Describe renders vec one field per line, for debugging.
func (s *Schema) Describe(vec []float64) string {
	var b strings.Builder
	for _, f := range s.fields {
		if f.Offset+f.Width > len(vec) {
			break
		}
		values := vec[f.Offset : f.Offset+f.Width]
		if f.Width == 1 {
			fmt.Fprintf(&b, "%-32s %8.5g\n", f.Name, values[0])
			continue
		}
		fmt.Fprintf(&b, "%-32s %v\n", f.Name, values)
	}
	return b.String()
}

func SideField(side int, name string) string {
	return fmt.Sprintf("side%d.%s", side, name)
}

func PokemonField(side, slot int, name string) string {
	return fmt.Sprintf("side%d.pokemon%d.%s", side, slot, name)
}

func MoveField(side, slot, move int, name string) string {
	return fmt.Sprintf("side%d.pokemon%d.move%d.%s", side, slot, move, name)
}
