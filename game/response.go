package game

import (
	"encoding/json"
)

// ResponseType classifies a message received from the engine.
type ResponseType int

const (
	ResponseEmpty ResponseType = iota // no state this tick
	ResponseEnd                       // battle over
	ResponseBattleState               // a turn document
)

func (t ResponseType) String() string {
	switch t {
	case ResponseEmpty:
		return "empty"
	case ResponseEnd:
		return "end"
	case ResponseBattleState:
		return "battleState"
	}
	return "unknown"
}

const responseTypeEnd = "end"

// Response is the envelope the engine wraps around a turn document.
type Response struct {
	Type        *string         `json:"type"`
	ID          int             `json:"id"`
	BattleState json.RawMessage `json:"battleState"`
	Winner      *string         `json:"winner"`
}

func (r *Response) Kind() ResponseType {
	switch {
	case r.Type == nil:
		return ResponseEmpty
	case *r.Type == responseTypeEnd:
		return ResponseEnd
	default:
		return ResponseBattleState
	}
}

func ParseResponse(raw []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, protocolErrorf("response", err, "not a response object")
	}
	if r.Kind() == ResponseBattleState && len(r.BattleState) == 0 {
		return nil, protocolErrorf("response", nil, "%q response without battleState", *r.Type)
	}
	return &r, nil
}

// EngineRequest is a message from the manager to the engine.
type EngineRequest struct {
	Method string `json:"method"`
	Item   string `json:"item"`
	Turn   *int   `json:"turn,omitempty"`
}

func GetBattleState(turn int) EngineRequest {
	return EngineRequest{Method: "get", Item: "battleState", Turn: &turn}
}

func SetBattleState(turn int) EngineRequest {
	return EngineRequest{Method: "set", Item: "battleState", Turn: &turn}
}

func SetExit() EngineRequest {
	return EngineRequest{Method: "set", Item: "exit"}
}

func (r EngineRequest) Bytes() []byte {
	out, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	return out
}
