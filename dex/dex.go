package dex

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"pokezero/utils"

	"github.com/rs/zerolog/log"
)

// Kind names one reference table.
type Kind string

const (
	Moves          Kind = "moves"
	Abilities      Kind = "abilities"
	Items          Kind = "items"
	Types          Kind = "types"
	Statuses       Kind = "statuses"
	Volatiles      Kind = "volatiles"
	SideConditions Kind = "sideConditions"
	SlotConditions Kind = "slotConditions"
	Terrains       Kind = "terrains"
	Weathers       Kind = "weathers"
)

// Files maps each table to its file in the data directory.
var Files = map[Kind]string{
	Moves:          "move_id.json",
	Abilities:      "ability_id.json",
	Items:          "item_id.json",
	Types:          "type_id.json",
	Statuses:       "status.json",
	Volatiles:      "volatiles.json",
	SideConditions: "side_conds.json",
	SlotConditions: "slot_conds.json",
	Terrains:       "terrain.json",
	Weathers:       "weather.json",
}

// AllKinds lists every table in a fixed order.
var AllKinds = []Kind{Moves, Abilities, Items, Types, Statuses, Volatiles, SideConditions, SlotConditions, Terrains, Weathers}

var (
	ErrUnknownKey   = errors.New("unknown reference key")
	ErrKeyCollision = errors.New("reference key collision")
	ErrBadID        = errors.New("reference ids must be non-negative and contiguous from 0")
	ErrMissingTable = errors.New("missing reference table")
)

// Tables holds the name -> id reference tables. It is immutable after construction and safe to
// share between goroutines.
type Tables struct {
	tables map[Kind]map[string]int
}

// New validates raw tables and folds every key to its canonical id.
func New(raw map[Kind]map[string]int) (*Tables, error) {
	t := &Tables{tables: make(map[Kind]map[string]int, len(AllKinds))}
	for _, kind := range AllKinds {
		entries, ok := raw[kind]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingTable, kind)
		}
		table, err := build(kind, entries)
		if err != nil {
			return nil, err
		}
		t.tables[kind] = table
	}
	return t, nil
}

func build(kind Kind, entries map[string]int) (map[string]int, error) {
	table := make(map[string]int, len(entries))
	owners := make(map[int]string, len(entries))

	// sorted so that error messages are stable
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		id := entries[name]
		key := utils.ToID(name)
		if id < 0 || id >= len(entries) {
			return nil, fmt.Errorf("%w: %s[%q] = %d", ErrBadID, kind, name, id)
		}
		if _, dup := table[key]; dup {
			return nil, fmt.Errorf("%w: %s has %q twice after folding", ErrKeyCollision, kind, key)
		}
		if other, dup := owners[id]; dup {
			return nil, fmt.Errorf("%w: %s ids %q and %q both map to %d", ErrKeyCollision, kind, other, name, id)
		}
		table[key] = id
		owners[id] = name
	}
	return table, nil
}

// Load reads every table from its JSON file in dir.
func Load(dir string) (*Tables, error) {
	raw := make(map[Kind]map[string]int, len(Files))
	for _, kind := range AllKinds {
		path := filepath.Join(dir, Files[kind])
		entries, err := readTable(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s table: %w", kind, err)
		}
		raw[kind] = entries
	}

	t, err := New(raw)
	if err != nil {
		return nil, err
	}
	for _, kind := range AllKinds {
		log.Debug().Msgf("loaded %s table with %d entries", kind, t.Len(kind))
	}
	return t, nil
}

func readTable(path string) (map[string]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries map[string]int
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ID looks name up in the table of the given kind. A name absent from the table is an error.
func (t *Tables) ID(kind Kind, name string) (int, error) {
	id, ok := t.tables[kind][utils.ToID(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %s %q", ErrUnknownKey, kind, name)
	}
	return id, nil
}

// Has reports whether name is in the table of the given kind.
func (t *Tables) Has(kind Kind, name string) bool {
	_, ok := t.tables[kind][utils.ToID(name)]
	return ok
}

// Len is the number of entries in the table of the given kind, which is also its one-hot width.
func (t *Tables) Len(kind Kind) int {
	return len(t.tables[kind])
}

// Names returns the canonical keys of a table ordered by id.
func (t *Tables) Names(kind Kind) []string {
	table := t.tables[kind]
	names := make([]string, len(table))
	for name, id := range table {
		names[id] = name
	}
	return names
}
