package agent

import (
	"sync"

	"pokezero/game"

	"golang.org/x/exp/rand"
)

// Random picks uniformly among the offered choices.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Decide(req *game.Request) (game.Reply, error) {
	return choose(req, r.intn)
}

func (r *Random) intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}
