package communication

import (
	"context"
	"errors"
)

// Delimiter terminates every framed message on the wire.
const Delimiter byte = 0

// ErrClosed is returned when the peer closed the connection or the channel was closed locally.
// Callers should treat it as the end of the conversation, not as an empty message.
var ErrClosed = errors.New("channel closed")

// Communicator is an interface that abstracts the framed transport between a player or manager and its peer.
type Communicator interface {
	// Receive blocks until a full message is available and returns it without the delimiter
	Receive(ctx context.Context) ([]byte, error)
	// Send writes the message followed by the delimiter
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// State is the connection state of a channel.
type State int32

const (
	Unbound State = iota
	Listening
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Listening:
		return "listening"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	}
	return "unknown"
}
