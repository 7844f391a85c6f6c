package gamemaster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pokezero/communication"
	"pokezero/dex"
	"pokezero/encoder"
	"pokezero/game"
	"pokezero/meta"
	"pokezero/metrics"
	"pokezero/player"
	"pokezero/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrEngineClosed = errors.New("engine closed the channel before the battle ended")
	ErrTurnLimit    = errors.New("battle did not end within the turn limit")
)

// Recorder archives a battle as it is played.
type Recorder interface {
	StartBattle(manager string) (string, error)
	SaveTurn(battleID string, turn *Turn) error
	FinishBattle(battleID string, winner string) error
}

// Publisher is told about every battle state the manager stores.
type Publisher interface {
	Publish(turn *Turn)
}

type Option func(m *Manager)

func WithRecorder(recorder Recorder) Option {
	return func(m *Manager) {
		if recorder != nil {
			m.recorder = recorder
		}
	}
}

func WithPublisher(publisher Publisher) Option {
	return func(m *Manager) {
		if publisher != nil {
			m.publisher = publisher
		}
	}
}

func WithCollector(collector metrics.Collector) Option {
	return func(m *Manager) {
		if collector != nil {
			m.collector = collector
		}
	}
}

func WithDirector(director Director) Option {
	return func(m *Manager) {
		if director != nil {
			m.director = director
		}
	}
}

func WithMaxTurns(turns int) Option {
	return func(m *Manager) {
		if turns > 0 {
			m.maxTurns = turns
		}
	}
}

// Manager drives a battle: it asks the engine for each turn's state, releases the players'
// moves and encodes every state it receives.
type Manager struct {
	name      string
	encoder   *encoder.Encoder
	players   []*player.Player
	turns     *Turns
	recorder  Recorder
	publisher Publisher
	collector metrics.Collector
	director  Director
	maxTurns  int

	mu       sync.Mutex
	battleID string
	winner   string
}

func New(name string, tables *dex.Tables, players []*player.Player, opts ...Option) (*Manager, error) {
	if err := utils.ValidateName(name); err != nil {
		return nil, err
	}
	if len(players) != meta.NUM_SIDES {
		return nil, fmt.Errorf("need %d players, got %d", meta.NUM_SIDES, len(players))
	}

	m := &Manager{ // Default values
		name:      name,
		encoder:   encoder.New(tables),
		players:   players,
		turns:     NewTurns(),
		recorder:  noRecorder{},
		publisher: noPublisher{},
		collector: metrics.NewDummyCollector(),
		director:  noDirector{},
		maxTurns:  meta.MAX_TURNS,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) Name() string {
	return m.name
}

func (m *Manager) Turns() *Turns {
	return m.turns
}

func (m *Manager) Schema() *encoder.Schema {
	return m.encoder.Schema()
}

// Player returns the player with the given name.
func (m *Manager) Player(name string) (*player.Player, bool) {
	names := make([]string, len(m.players))
	for i, p := range m.players {
		names[i] = p.Name()
	}
	i := utils.FindIndex(names, name)
	if i < 0 {
		return nil, false
	}
	return m.players[i], true
}

func (m *Manager) BattleID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.battleID
}

func (m *Manager) Winner() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.winner
}

// Start runs every player and the driver until the battle ends, and returns once all of them
// have stopped. The players are closed when the driver returns.
func (m *Manager) Start(ctx context.Context, comm communication.Communicator) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range m.players {
		p := p
		g.Go(func() error {
			return p.Run(ctx)
		})
	}
	g.Go(func() error {
		defer m.closePlayers()
		return m.Run(ctx, comm)
	})
	return g.Wait()
}

func (m *Manager) closePlayers() {
	for _, p := range m.players {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msgf("failed to close player %s", p.Name())
		}
	}
}

// Run is the turn loop. It returns nil once the engine reports the end of the battle.
func (m *Manager) Run(ctx context.Context, comm communication.Communicator) error {
	battleID, err := m.recorder.StartBattle(m.name)
	if err != nil {
		return fmt.Errorf("failed to record battle: %w", err)
	}
	m.mu.Lock()
	m.battleID = battleID
	m.mu.Unlock()

	m.collector.Start()
	log.Info().Msgf("manager %s: battle %s started", m.name, battleID)

	turn := 0
	for tick := 0; tick < m.maxTurns; tick++ {
		if err := comm.Send(ctx, game.GetBattleState(turn).Bytes()); err != nil {
			return m.transportError(err)
		}
		res, err := comm.Receive(ctx)
		if err != nil {
			return m.transportError(err)
		}

		m.notifyPlayers()

		kind, err := m.HandleResponse(res)
		if err != nil {
			log.Warn().Err(err).Msgf("manager %s: discarding engine response", m.name)
			continue
		}
		switch kind {
		case game.ResponseEnd:
			return m.finish(ctx, comm)
		case game.ResponseBattleState:
			turn++
		}
	}

	log.Error().Msgf("manager %s: no end after %d requests", m.name, m.maxTurns)
	if err := m.finish(ctx, comm); err != nil {
		return err
	}
	return ErrTurnLimit
}

func (m *Manager) transportError(err error) error {
	if errors.Is(err, communication.ErrClosed) {
		return ErrEngineClosed
	}
	return err
}

func (m *Manager) notifyPlayers() {
	for _, p := range m.players {
		// a directed move stays pending until the player gets a request to answer with it
		if p.Cell().Pending() == player.Directed {
			continue
		}
		var err error
		if move, ok := m.director.Next(p.Name()); ok {
			err = p.NotifyMove(player.Directed, move)
			m.collector.AddDirectedMove()
		} else {
			err = p.NotifyOwnMove()
			m.collector.AddOwnMove()
		}
		if err != nil {
			log.Warn().Err(err).Msgf("manager %s: failed to notify player %s", m.name, p.Name())
		}
	}
}

func (m *Manager) finish(ctx context.Context, comm communication.Communicator) error {
	if err := comm.Send(ctx, game.SetExit().Bytes()); err != nil && !errors.Is(err, communication.ErrClosed) {
		log.Warn().Err(err).Msgf("manager %s: failed to send exit", m.name)
	}

	winner := m.Winner()
	if err := m.recorder.FinishBattle(m.BattleID(), winner); err != nil {
		log.Error().Err(err).Msgf("manager %s: failed to record battle end", m.name)
	}
	stats := m.collector.Complete()
	log.Info().Msgf("manager %s: battle over after %d turns (%d encoded), winner %q", m.name, stats.Turns, stats.Encoded, winner)
	return nil
}

// HandleResponse classifies an engine response and stores a battle state as the next turn. A
// state that cannot be encoded is still stored, marked with its error; earlier turns are not
// affected. An error is only returned for a malformed response.
func (m *Manager) HandleResponse(raw []byte) (game.ResponseType, error) {
	res, err := game.ParseResponse(raw)
	if err != nil {
		return game.ResponseEmpty, err
	}
	if res.Winner != nil {
		m.mu.Lock()
		m.winner = *res.Winner
		m.mu.Unlock()
	}

	kind := res.Kind()
	switch kind {
	case game.ResponseEmpty:
		m.collector.AddEmptyTick()
	case game.ResponseBattleState:
		m.storeTurn(res)
	}
	return kind, nil
}

func (m *Manager) storeTurn(res *game.Response) {
	start := time.Now()
	t := &Turn{StateID: res.ID, Raw: res.BattleState}
	t.Vector, t.Err = m.encoder.EncodeRaw(res.BattleState)
	t.Elapsed = time.Since(start)
	m.turns.Append(t)

	m.collector.AddTurn()
	if t.Err != nil {
		m.collector.AddFailed()
		log.Error().Err(t.Err).Msgf("manager %s: turn %d (state %d) cannot be encoded", m.name, t.Index, t.StateID)
	} else {
		m.collector.AddEncoded()
		log.Debug().Msgf("manager %s: turn %d encoded in %s", m.name, t.Index, t.Elapsed)
	}

	if err := m.recorder.SaveTurn(m.BattleID(), t); err != nil {
		log.Error().Err(err).Msgf("manager %s: failed to record turn %d", m.name, t.Index)
	}
	m.publisher.Publish(t)
}

// TurnRecords converts the stored turns for the metrics writer.
func (m *Manager) TurnRecords() []metrics.TurnRecord {
	turns := m.turns.All()
	records := make([]metrics.TurnRecord, len(turns))
	for i, t := range turns {
		records[i] = metrics.TurnRecord{
			Battle: m.BattleID(),
			TurnMetric: metrics.TurnMetric{
				Turn:     t.Index,
				StateID:  t.StateID,
				Encoded:  t.Encoded(),
				Duration: t.Elapsed,
			},
		}
	}
	return records
}

type noRecorder struct{}

func (noRecorder) StartBattle(string) (string, error) { return uuid.NewString(), nil }
func (noRecorder) SaveTurn(string, *Turn) error       { return nil }
func (noRecorder) FinishBattle(string, string) error  { return nil }

type noPublisher struct{}

func (noPublisher) Publish(*Turn) {}
