package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"pokezero/communication"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

const (
	DialRetries = 50
	DialBackoff = 5 * time.Millisecond
	MaxBackoff  = 250 * time.Millisecond
)

// Client is the dialing end of a framed channel, used by whatever sits across from a player or
// manager socket (the rules engine, or a test).
type Client struct {
	path string
	*communication.FramedConn
}

// Dial connects to the socket at path, retrying with exponential back-off while the listener is
// not bound yet.
func Dial(ctx context.Context, path string) (*Client, error) {
	backoff := retry.WithCappedDuration(MaxBackoff, retry.NewExponential(DialBackoff))
	backoff = retry.WithMaxRetries(DialRetries, backoff)

	var conn net.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var d net.Dialer
		c, err := d.DialContext(ctx, "unix", path)
		if err != nil {
			log.Debug().Err(err).Msgf("%s: dial failed, retrying", path)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: dial error: %w", path, err)
	}

	return &Client{path: path, FramedConn: communication.NewFramedConn(conn)}, nil
}

func (c *Client) Path() string {
	return c.path
}

var _ communication.Communicator = (*Client)(nil)
