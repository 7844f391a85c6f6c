package gamemaster

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrTurnOutOfRange = errors.New("turn out of range")
	ErrUnencodable    = errors.New("turn could not be encoded")
)

// Turn is one battle state received from the engine.
type Turn struct {
	Index   int             `json:"turn"`
	StateID int             `json:"id"`
	Raw     json.RawMessage `json:"battleState"`
	Vector  []float64       `json:"vector,omitempty"`
	Err     error           `json:"-"` // set when the state could not be encoded
	Elapsed time.Duration   `json:"-"` // time spent encoding
}

func (t *Turn) Encoded() bool {
	return t.Err == nil
}

// Turns is the append-only, turn-indexed store of a battle. The driver is the only writer.
type Turns struct {
	mu    sync.RWMutex
	turns []*Turn
}

func NewTurns() *Turns {
	return &Turns{}
}

// Append stores t as the next turn and sets its index.
func (s *Turns) Append(t *Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Index = len(s.turns)
	s.turns = append(s.turns, t)
}

func (s *Turns) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

func (s *Turns) At(i int) (*Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.turns) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrTurnOutOfRange, i, len(s.turns))
	}
	return s.turns[i], nil
}

// Vector returns a copy of the encoded vector of turn i.
func (s *Turns) Vector(i int) ([]float64, error) {
	t, err := s.At(i)
	if err != nil {
		return nil, err
	}
	if !t.Encoded() {
		return nil, fmt.Errorf("%w: turn %d: %v", ErrUnencodable, i, t.Err)
	}
	return append([]float64(nil), t.Vector...), nil
}

// All returns the turns stored so far.
func (s *Turns) All() []*Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Turn(nil), s.turns...)
}
