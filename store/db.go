package store

import (
	"encoding/json"
	"time"

	"pokezero/gamemaster"
)

// DB is the battle archive.
type DB interface {
	Close() error
	Migrate() error
	SaveBattle(battle *Battle) error
	SaveTurn(battleID string, turn *gamemaster.Turn) error
	FinishBattle(id string, winner string) error
	GetBattle(id string) (*Battle, error)
	GetTurns(battleID string) ([]Turn, error)
}

// Battle is one archived battle.
type Battle struct {
	ID         string     `json:"id" db:"id"`
	Manager    string     `json:"manager" db:"manager"`
	Winner     string     `json:"winner" db:"winner"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// Turn is one archived battle state with its vector.
type Turn struct {
	BattleID string          `json:"battle_id" db:"battle_id"`
	Turn     int             `json:"turn" db:"turn"`
	StateID  int             `json:"state_id" db:"state_id"`
	State    json.RawMessage `json:"state" db:"state"`
	Vector   []float64       `json:"vector,omitempty" db:"vector"` // nil when the state could not be encoded
	Error    string          `json:"error,omitempty" db:"error"`
}
