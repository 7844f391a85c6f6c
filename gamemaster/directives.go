package gamemaster

import (
	"sync"

	"pokezero/game"
)

// Director supplies directed moves. Players without one decide on their own.
type Director interface {
	Next(player string) ([]byte, bool)
}

// Directives queues directed moves per player, first in first out.
type Directives struct {
	mu     sync.Mutex
	queues map[string][][]byte
}

func NewDirectives() *Directives {
	return &Directives{queues: map[string][][]byte{}}
}

// Push queues a reply document for player. The move must parse as a reply.
func (d *Directives) Push(player string, move []byte) error {
	if _, err := game.ParseReply(move); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queues[player] = append(d.queues[player], append([]byte(nil), move...))
	return nil
}

func (d *Directives) Next(player string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	queue := d.queues[player]
	if len(queue) == 0 {
		return nil, false
	}
	d.queues[player] = queue[1:]
	return queue[0], true
}

func (d *Directives) Len(player string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues[player])
}

type noDirector struct{}

func (noDirector) Next(string) ([]byte, bool) { return nil, false }
