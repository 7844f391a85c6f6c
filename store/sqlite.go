package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pokezero/gamemaster"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("battle not found")

// SQLiteDB implements DB and gamemaster.Recorder using SQLite
type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS battles (
			id TEXT PRIMARY KEY,
			manager TEXT NOT NULL,
			winner TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			battle_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			state_id INTEGER NOT NULL,
			state TEXT NOT NULL,
			vector TEXT,
			error TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (battle_id, turn),
			FOREIGN KEY (battle_id) REFERENCES battles(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_state ON turns(battle_id, state_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// SaveBattle inserts a battle, assigning it an id if it has none.
func (s *SQLiteDB) SaveBattle(battle *Battle) error {
	if battle.ID == "" {
		battle.ID = uuid.New().String()
	}

	_, err := s.db.Exec(`INSERT INTO battles (id, manager, winner) VALUES (?, ?, ?)`,
		battle.ID, battle.Manager, battle.Winner)
	if err != nil {
		return fmt.Errorf("failed to save battle: %w", err)
	}
	return nil
}

// StartBattle archives a new battle for the manager and returns its id.
func (s *SQLiteDB) StartBattle(manager string) (string, error) {
	battle := &Battle{Manager: manager}
	if err := s.SaveBattle(battle); err != nil {
		return "", err
	}
	return battle.ID, nil
}

func (s *SQLiteDB) SaveTurn(battleID string, turn *gamemaster.Turn) error {
	var vector sql.NullString
	if turn.Vector != nil {
		out, err := json.Marshal(turn.Vector)
		if err != nil {
			return fmt.Errorf("failed to encode vector: %w", err)
		}
		vector = sql.NullString{String: string(out), Valid: true}
	}
	var errText string
	if turn.Err != nil {
		errText = turn.Err.Error()
	}

	_, err := s.db.Exec(`INSERT INTO turns (battle_id, turn, state_id, state, vector, error) VALUES (?, ?, ?, ?, ?, ?)`,
		battleID, turn.Index, turn.StateID, string(turn.Raw), vector, errText)
	if err != nil {
		return fmt.Errorf("failed to save turn %d: %w", turn.Index, err)
	}
	return nil
}

func (s *SQLiteDB) FinishBattle(id string, winner string) error {
	res, err := s.db.Exec(`UPDATE battles SET winner = ?, finished_at = ? WHERE id = ?`,
		winner, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish battle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteDB) GetBattle(id string) (*Battle, error) {
	var battle Battle
	var finished sql.NullTime
	err := s.db.QueryRow(`SELECT id, manager, winner, created_at, finished_at FROM battles WHERE id = ?`, id).Scan(
		&battle.ID, &battle.Manager, &battle.Winner, &battle.CreatedAt, &finished,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		battle.FinishedAt = &finished.Time
	}
	return &battle, nil
}

// GetTurns returns a battle's turns in order.
func (s *SQLiteDB) GetTurns(battleID string) ([]Turn, error) {
	rows, err := s.db.Query(`SELECT battle_id, turn, state_id, state, vector, error
		FROM turns WHERE battle_id = ?
		ORDER BY turn`, battleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		var state string
		var vector sql.NullString

		if err := rows.Scan(&turn.BattleID, &turn.Turn, &turn.StateID, &state, &vector, &turn.Error); err != nil {
			return nil, err
		}
		turn.State = json.RawMessage(state)
		if vector.Valid {
			if err := json.Unmarshal([]byte(vector.String), &turn.Vector); err != nil {
				return nil, fmt.Errorf("turn %d: bad vector: %w", turn.Turn, err)
			}
		}

		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

var (
	_ DB                  = (*SQLiteDB)(nil)
	_ gamemaster.Recorder = (*SQLiteDB)(nil)
)
