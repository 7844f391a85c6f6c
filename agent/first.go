package agent

import "pokezero/game"

// First always picks the first choice. Useful as a baseline opponent.
type First struct{}

func NewFirst() First {
	return First{}
}

func (First) Decide(req *game.Request) (game.Reply, error) {
	return choose(req, func(int) int { return 0 })
}
