package metrics

import (
	"sync/atomic"
	"time"
)

// BattleMetric is a snapshot of the counters for one battle.
type BattleMetric struct {
	StartTime     time.Time
	Duration      time.Duration
	Turns         int // battle states received
	Encoded       int
	Failed        int // battle states that could not be encoded
	EmptyTicks    int
	OwnMoves      int // own-move notifications
	DirectedMoves int // directed-move notifications
	Replies       int
	Discarded     int // malformed requests
}

// TurnMetric describes one battle state handled by the driver.
type TurnMetric struct {
	Turn     int
	StateID  int
	Encoded  bool
	Duration time.Duration
}

type Collector interface {
	Start()
	AddTurn()
	AddEncoded()
	AddFailed()
	AddEmptyTick()
	AddOwnMove()
	AddDirectedMove()
	AddReply()
	AddDiscarded()
	Complete() BattleMetric
}

type collector struct {
	startTime     time.Time
	turns         atomic.Int32
	encoded       atomic.Int32
	failed        atomic.Int32
	emptyTicks    atomic.Int32
	ownMoves      atomic.Int32
	directedMoves atomic.Int32
	replies       atomic.Int32
	discarded     atomic.Int32
}

func NewCollector() Collector {
	return &collector{}
}

func (m *collector) Start() {
	m.startTime = time.Now()
}

func (m *collector) AddTurn() {
	m.turns.Add(1)
}

func (m *collector) AddEncoded() {
	m.encoded.Add(1)
}

func (m *collector) AddFailed() {
	m.failed.Add(1)
}

func (m *collector) AddEmptyTick() {
	m.emptyTicks.Add(1)
}

func (m *collector) AddOwnMove() {
	m.ownMoves.Add(1)
}

func (m *collector) AddDirectedMove() {
	m.directedMoves.Add(1)
}

func (m *collector) AddReply() {
	m.replies.Add(1)
}

func (m *collector) AddDiscarded() {
	m.discarded.Add(1)
}

func (m *collector) Complete() BattleMetric {
	return BattleMetric{
		StartTime:     m.startTime,
		Duration:      time.Since(m.startTime),
		Turns:         int(m.turns.Load()),
		Encoded:       int(m.encoded.Load()),
		Failed:        int(m.failed.Load()),
		EmptyTicks:    int(m.emptyTicks.Load()),
		OwnMoves:      int(m.ownMoves.Load()),
		DirectedMoves: int(m.directedMoves.Load()),
		Replies:       int(m.replies.Load()),
		Discarded:     int(m.discarded.Load()),
	}
}

type dummyCollector struct{}

func NewDummyCollector() Collector {
	return &dummyCollector{}
}

func (m *dummyCollector) Start()                 {}
func (m *dummyCollector) AddTurn()               {}
func (m *dummyCollector) AddEncoded()            {}
func (m *dummyCollector) AddFailed()             {}
func (m *dummyCollector) AddEmptyTick()          {}
func (m *dummyCollector) AddOwnMove()            {}
func (m *dummyCollector) AddDirectedMove()       {}
func (m *dummyCollector) AddReply()              {}
func (m *dummyCollector) AddDiscarded()          {}
func (m *dummyCollector) Complete() BattleMetric { return BattleMetric{} }
