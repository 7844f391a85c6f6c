package player

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// Directive tells a waiting player where its next move comes from.
type Directive int32

const (
	Wait      Directive = iota // no decision requested yet
	DecideOwn                  // the player's policy decides
	Directed                   // the move is supplied by the caller
)

func (d Directive) String() string {
	switch d {
	case Wait:
		return "wait"
	case DecideOwn:
		return "own"
	case Directed:
		return "directed"
	}
	return "unknown"
}

var (
	ErrInvalidDirective    = errors.New("invalid directive")
	ErrDroppedNotification = errors.New("woke without a directive")
	ErrConcurrentResolve   = errors.New("move cell already has a waiter")
	ErrCellClosed          = errors.New("move cell closed")
)

// DecideFunc produces the player's own move.
type DecideFunc func() ([]byte, error)

// MoveCell hands one directive at a time from a controller to a player. Each Notify is answered
// by exactly one Resolve, unless a newer Notify replaces it first.
type MoveCell struct {
	mu        sync.Mutex
	cond      *sync.Cond
	directive Directive
	payload   []byte
	waiting   bool
	waiter    uint64 // identifies the current Resolve call for its cancel hook
	closed    bool
	coalesced int
}

func NewMoveCell() *MoveCell {
	c := &MoveCell{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Notify stores the directive and wakes the waiting Resolve, if any. A directive that has not
// been resolved yet is replaced.
func (c *MoveCell) Notify(d Directive, payload []byte) error {
	if d != DecideOwn && d != Directed {
		return ErrInvalidDirective
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCellClosed
	}
	if c.directive != Wait {
		c.coalesced++
		log.Debug().Msgf("move cell: %s directive replaced by %s before it was resolved", c.directive, d)
	}
	c.directive = d
	c.payload = append([]byte(nil), payload...)
	c.cond.Signal()
	return nil
}

// Resolve blocks until a directive is pending, consumes it and returns the move: the directed
// payload, or the result of decide. Only one Resolve may wait at a time.
func (c *MoveCell) Resolve(ctx context.Context, decide DecideFunc) ([]byte, error) {
	c.mu.Lock()
	if c.waiting {
		c.mu.Unlock()
		return nil, ErrConcurrentResolve
	}
	c.waiting = true
	c.waiter++

	if c.directive == Wait {
		waiter := c.waiter
		stop := context.AfterFunc(ctx, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.waiting && c.waiter == waiter {
				c.cond.Broadcast()
			}
		})
		defer stop()
	}

	woken := false
	for c.directive == Wait {
		switch {
		case c.closed:
			c.waiting = false
			c.mu.Unlock()
			return nil, ErrCellClosed
		case ctx.Err() != nil:
			c.waiting = false
			c.mu.Unlock()
			return nil, ctx.Err()
		case woken:
			c.waiting = false
			c.mu.Unlock()
			log.Error().Err(ErrDroppedNotification).Msg("move cell")
			return nil, ErrDroppedNotification
		}
		c.cond.Wait()
		woken = true
	}

	d, payload := c.directive, c.payload
	c.directive, c.payload = Wait, nil
	c.waiting = false
	c.mu.Unlock()

	if d == Directed {
		return payload, nil
	}
	return decide()
}

// Pending returns the directive that the next Resolve would consume.
func (c *MoveCell) Pending() Directive {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.directive
}

// Coalesced counts directives replaced before they were resolved.
func (c *MoveCell) Coalesced() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coalesced
}

// Close wakes a blocked Resolve with ErrCellClosed. Later calls fail the same way, except that a
// directive already pending can still be resolved.
func (c *MoveCell) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}
