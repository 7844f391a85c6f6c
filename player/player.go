package player

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pokezero/agent"
	"pokezero/communication"
	"pokezero/game"
	"pokezero/metrics"
	"pokezero/utils"

	"github.com/rs/zerolog/log"
)

// Player answers the engine's move requests on its channel. Each reply comes from the move cell:
// either the player's own policy or a move directed by the controller.
type Player struct {
	name      string
	comm      communication.Communicator
	policy    agent.Policy
	cell      *MoveCell
	collector metrics.Collector

	mu          sync.Mutex
	lastRequest *game.Request
}

type Option func(*Player)

func WithCollector(collector metrics.Collector) Option {
	return func(p *Player) {
		p.collector = collector
	}
}

func New(name string, comm communication.Communicator, policy agent.Policy, opts ...Option) (*Player, error) {
	if err := utils.ValidateName(name); err != nil {
		return nil, err
	}
	p := &Player{
		name:      name,
		comm:      comm,
		policy:    policy,
		cell:      NewMoveCell(),
		collector: metrics.NewDummyCollector(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Player) Name() string {
	return p.name
}

// Run answers requests until the peer closes the channel, which ends the loop without error.
// A failed send closes the player and is returned.
func (p *Player) Run(ctx context.Context) error {
	for {
		msg, err := p.comm.Receive(ctx)
		if errors.Is(err, communication.ErrClosed) {
			log.Info().Msgf("player %s: channel closed", p.name)
			return nil
		}
		if err != nil {
			return fmt.Errorf("player %s: %w", p.name, err)
		}
		if len(msg) == 0 {
			log.Debug().Msgf("player %s: empty message", p.name)
			continue
		}

		req, err := game.ParseRequest(msg)
		if err != nil {
			log.Warn().Err(err).Msgf("player %s: discarding request", p.name)
			p.collector.AddDiscarded()
			continue
		}
		p.setLastRequest(req)

		reply, err := p.cell.Resolve(ctx, p.decideOwnMove)
		if errors.Is(err, ErrCellClosed) {
			log.Info().Msgf("player %s: closed while deciding", p.name)
			return nil
		}
		if err != nil {
			return fmt.Errorf("player %s: %w", p.name, err)
		}

		if err := p.comm.Send(ctx, reply); err != nil {
			p.Close()
			return fmt.Errorf("player %s: failed to send reply: %w", p.name, err)
		}
		p.collector.AddReply()
	}
}

func (p *Player) decideOwnMove() ([]byte, error) {
	reply, err := p.policy.Decide(p.LastRequest())
	if err != nil {
		// the policy's fallback reply keeps the engine moving
		log.Warn().Err(err).Msgf("player %s: policy failed", p.name)
	}
	return []byte(reply.String()), nil
}

func (p *Player) setLastRequest(req *game.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastRequest = req
}

// LastRequest returns the most recent well-formed request, or nil before the first one.
func (p *Player) LastRequest() *game.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRequest
}

// NotifyOwnMove lets the player's policy decide the next move.
func (p *Player) NotifyOwnMove() error {
	return p.cell.Notify(DecideOwn, nil)
}

// NotifyMove hands the player its next move directive.
func (p *Player) NotifyMove(d Directive, payload []byte) error {
	return p.cell.Notify(d, payload)
}

// Cell exposes the player's move cell, e.g. to read the coalesced count.
func (p *Player) Cell() *MoveCell {
	return p.cell
}

// Close stops the player: a pending decision fails and the channel is closed.
func (p *Player) Close() error {
	p.cell.Close()
	return p.comm.Close()
}
