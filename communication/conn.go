package communication

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// FramedConn carries delimiter-framed messages over a stream connection. One goroutine may
// receive while another sends.
type FramedConn struct {
	conn   net.Conn
	reader *Reader

	recvMu sync.Mutex
	sendMu sync.Mutex
}

func NewFramedConn(conn net.Conn) *FramedConn {
	return &FramedConn{conn: conn, reader: NewReader(conn)}
}

// Receive blocks for the next message. Cancelling ctx interrupts a blocked read without losing
// the bytes buffered so far. EOF and a locally closed connection both yield ErrClosed.
func (fc *FramedConn) Receive(ctx context.Context) ([]byte, error) {
	fc.recvMu.Lock()
	defer fc.recvMu.Unlock()

	defer interruptOnDone(ctx, fc.conn.SetReadDeadline)()

	msg, err := fc.reader.Next()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return msg, nil
}

// Send writes msg and the delimiter.
func (fc *FramedConn) Send(ctx context.Context, msg []byte) error {
	fc.sendMu.Lock()
	defer fc.sendMu.Unlock()

	defer interruptOnDone(ctx, fc.conn.SetWriteDeadline)()

	if err := WriteFrame(fc.conn, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (fc *FramedConn) Close() error {
	err := fc.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// interruptOnDone arms a deadline in the past once ctx is done and returns a func that disarms it.
func interruptOnDone(ctx context.Context, setDeadline func(time.Time) error) func() {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		setDeadline(time.Now())
		close(fired)
	})
	return func() {
		if stop() {
			return
		}
		<-fired
		setDeadline(time.Time{})
	}
}
