package game

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Battle is the turn document produced by the engine: both sides (self first) and the field.
type Battle struct {
	Sides []Side `json:"sides"`
	Field Field  `json:"field"`
}

type Side struct {
	Pokemon        []Pokemon `json:"pokemon"`
	SideConditions Effects   `json:"sideConditions"`
	SlotConditions Effects   `json:"slotConditions"`
}

// Pokemon fields that every serialized Pokemon carries are pointers so that a missing field can be
// told apart from a zero value.
type Pokemon struct {
	SpeciesState    Effect     `json:"speciesState"`
	IsActive        *bool      `json:"isActive"`
	Ability         *string    `json:"ability"`
	Item            *string    `json:"item"`
	Types           []string   `json:"types"`
	MoveSlots       []MoveSlot `json:"moveSlots"`
	Status          *string    `json:"status"`
	HP              *float64   `json:"hp"`
	MaxHP           float64    `json:"maxhp"`
	BaseStoredStats *Stats     `json:"baseStoredStats"`
	Boosts          *Boosts    `json:"boosts"`
	Trapped         *Flag      `json:"trapped"`
	Volatiles       Effects    `json:"volatiles"`
}

type MoveSlot struct {
	ID       string  `json:"id"`
	PP       float64 `json:"pp"`
	MaxPP    float64 `json:"maxpp"`
	Disabled Flag    `json:"disabled"`
}

type Stats struct {
	HP  float64 `json:"hp"`
	Atk float64 `json:"atk"`
	Def float64 `json:"def"`
	Spa float64 `json:"spa"`
	Spd float64 `json:"spd"`
	Spe float64 `json:"spe"`
}

type Boosts struct {
	Atk      float64 `json:"atk"`
	Def      float64 `json:"def"`
	Spa      float64 `json:"spa"`
	Spd      float64 `json:"spd"`
	Spe      float64 `json:"spe"`
	Accuracy float64 `json:"accuracy"`
	Evasion  float64 `json:"evasion"`
}

type Field struct {
	WeatherState  Effect  `json:"weatherState"`
	TerrainState  Effect  `json:"terrainState"`
	PseudoWeather Effects `json:"pseudoWeather"`
}

// Effect is the serialized state of a condition: a weather, a side condition, a volatile...
type Effect struct {
	ID       string  `json:"id"`
	Duration float64 `json:"duration"`
	Layers   float64 `json:"layers"`
	HP       float64 `json:"hp"`
}

// Flag decodes the engine's loosely typed booleans: true/false, 0/1, or a string that is set
// when non-empty (e.g. "hidden" for trapped, the source move for disabled).
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = false
	case bytes.Equal(data, []byte("true")):
		*f = true
	case bytes.Equal(data, []byte("false")):
		*f = false
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = s != ""
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("flag: unexpected value %s", data)
		}
		*f = n != 0
	}
	return nil
}

// Value maps the flag to 1 when set and -1 otherwise.
func (f Flag) Value() float64 {
	if f {
		return 1
	}
	return -1
}

// Effects is a set of effects keyed by id. The engine serializes these either as an object keyed
// by id, as an array of effects, or (for slot conditions) as an array of id-keyed objects.
type Effects map[string]Effect

func (e *Effects) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	out := Effects{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = out
		return nil
	}

	switch data[0] {
	case '{':
		if err := out.addKeyed(data); err != nil {
			return err
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		for _, item := range items {
			var probe map[string]json.RawMessage
			if err := json.Unmarshal(item, &probe); err != nil {
				return fmt.Errorf("effects: %w", err)
			}
			if id, ok := probe["id"]; ok && len(id) > 0 && id[0] == '"' {
				var effect Effect
				if err := json.Unmarshal(item, &effect); err != nil {
					return fmt.Errorf("effects: %w", err)
				}
				out[effect.ID] = effect
				continue
			}
			if err := out.addKeyed(item); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("effects: unexpected value %s", data)
	}

	*e = out
	return nil
}

func (e Effects) addKeyed(data []byte) error {
	var keyed map[string]Effect
	if err := json.Unmarshal(data, &keyed); err != nil {
		return fmt.Errorf("effects: %w", err)
	}
	for key, effect := range keyed {
		if effect.ID == "" {
			effect.ID = key
		}
		e[effect.ID] = effect
	}
	return nil
}

// IDs returns the effect ids in sorted order.
func (e Effects) IDs() []string {
	ids := make([]string, 0, len(e))
	for id := range e {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ParseBattle decodes and validates a turn document.
func ParseBattle(raw []byte) (*Battle, error) {
	var b Battle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, protocolErrorf("battle", err, "cannot decode")
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks that every field the encoder relies on is present.
func (b *Battle) Validate() error {
	if len(b.Sides) != 2 {
		return protocolErrorf("battle", nil, "expected 2 sides, got %d", len(b.Sides))
	}
	for si, side := range b.Sides {
		for pi, p := range side.Pokemon {
			if missing := p.missingField(); missing != "" {
				return protocolErrorf("battle", nil, "sides[%d].pokemon[%d].%s: missing", si, pi, missing)
			}
		}
	}
	return nil
}

func (p *Pokemon) missingField() string {
	switch {
	case p.SpeciesState.ID == "":
		return "speciesState.id"
	case p.IsActive == nil:
		return "isActive"
	case p.Ability == nil:
		return "ability"
	case p.Item == nil:
		return "item"
	case p.Status == nil:
		return "status"
	case p.HP == nil:
		return "hp"
	case p.BaseStoredStats == nil:
		return "baseStoredStats"
	case p.Boosts == nil:
		return "boosts"
	case p.Trapped == nil:
		return "trapped"
	}
	for mi, m := range p.MoveSlots {
		if m.ID == "" {
			return fmt.Sprintf("moveSlots[%d].id", mi)
		}
	}
	return ""
}
