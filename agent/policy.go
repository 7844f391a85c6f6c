package agent

import (
	"errors"

	"pokezero/game"
)

var (
	ErrUnknownCommand = errors.New("unknown request command")
	ErrNoChoices      = errors.New("request has no choices")
	ErrNoRequest      = errors.New("no request received yet")
)

// Policy chooses a player's own move from the last request it received.
type Policy interface {
	// Decide returns the reply for req. On error the returned reply is still sendable
	Decide(req *game.Request) (game.Reply, error)
}

// choose validates req and dispatches on its command. pick selects one of n choices.
func choose(req *game.Request, pick func(n int) int) (game.Reply, error) {
	if req == nil {
		return game.NoAction(), ErrNoRequest
	}
	switch req.Command {
	case game.CommandTeamPreview:
		return game.TeamPreviewReply("default"), nil
	case game.CommandActive:
		if len(req.Choices) == 0 {
			return game.NoAction(), ErrNoChoices
		}
		return game.ActiveReply(pick(len(req.Choices))), nil
	case game.CommandForceSwitch:
		if len(req.Choices) == 0 {
			return game.NoAction(), ErrNoChoices
		}
		return game.SwitchReply(pick(len(req.Choices))), nil
	}
	return game.NoAction(), ErrUnknownCommand
}
