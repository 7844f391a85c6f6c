package game

import (
	"encoding/json"
)

// Command kinds sent by the engine in a move request.
const (
	CommandActive      = "active"
	CommandForceSwitch = "forceSwitch"
	CommandTeamPreview = "teamPreview"
)

// Request is a move request forwarded by the engine to a player.
type Request struct {
	Command string            `json:"command"`
	Choices []json.RawMessage `json:"choices"`
	Raw     json.RawMessage   `json:"-"`
}

// ParseRequest decodes a move request. The message must be a JSON object; an unknown or missing
// command is left for the decision policy to reject.
func ParseRequest(raw []byte) (*Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, protocolErrorf("request", err, "not a JSON object")
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, protocolErrorf("request", err, "unexpected field types")
	}
	req.Raw = append(json.RawMessage(nil), raw...)
	return &req, nil
}

// Reply is the move a player sends back for a request.
type Reply struct {
	Type        string `json:"type"`
	Active      *int   `json:"active,omitempty"`
	Switch      *int   `json:"switch,omitempty"`
	TeamPreview string `json:"teamPreview,omitempty"`
}

const ReplyTypeMove = "move"

// NoAction is the reply sent when no move could be chosen.
func NoAction() Reply {
	return Reply{Type: ReplyTypeMove}
}

func ActiveReply(choice int) Reply {
	return Reply{Type: ReplyTypeMove, Active: &choice}
}

func SwitchReply(choice int) Reply {
	return Reply{Type: ReplyTypeMove, Switch: &choice}
}

func TeamPreviewReply(order string) Reply {
	return Reply{Type: ReplyTypeMove, TeamPreview: order}
}

func (r Reply) String() string {
	out, err := json.Marshal(r)
	if err != nil {
		// Reply only holds strings and ints
		panic(err)
	}
	return string(out)
}

// ParseReply decodes a reply document, e.g. one injected as a directed move.
func ParseReply(raw []byte) (Reply, error) {
	var r Reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return Reply{}, protocolErrorf("reply", err, "not a reply object")
	}
	if r.Type == "" {
		return Reply{}, protocolErrorf("reply", nil, "missing type")
	}
	return r, nil
}
