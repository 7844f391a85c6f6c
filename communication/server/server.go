package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"pokezero/communication"

	"github.com/rs/zerolog/log"
)

// Server is the listening end of a framed channel. It accepts exactly one peer on a unix
// socket; Receive and Send block until that peer has connected.
type Server struct {
	path string

	state    atomic.Int32
	listener net.Listener
	conn     *communication.FramedConn

	ready     chan struct{} // closed once conn is set
	done      chan struct{} // closed by Close
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New returns an unbound server for the socket at path.
func New(path string) *Server {
	return &Server{
		path:  path,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (s *Server) Path() string {
	return s.path
}

func (s *Server) State() communication.State {
	return communication.State(s.state.Load())
}

// Connect binds the socket and spawns the acceptor. With force, a stale socket file is unlinked first.
func (s *Server) Connect(force bool) error {
	if !s.state.CompareAndSwap(int32(communication.Unbound), int32(communication.Listening)) {
		return fmt.Errorf("%s: connect in state %s", s.path, s.State())
	}
	if force {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.state.Store(int32(communication.Unbound))
			return fmt.Errorf("%s: unlink stale socket: %w", s.path, err)
		}
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		s.state.Store(int32(communication.Unbound))
		return fmt.Errorf("%s: bind error: %w", s.path, err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.accept()
	return nil
}

func (s *Server) accept() {
	defer s.wg.Done()

	conn, err := s.listener.Accept()
	if err != nil {
		if !s.isClosed() {
			log.Error().Err(err).Msgf("%s: accept error", s.path)
		}
		return
	}

	if !s.state.CompareAndSwap(int32(communication.Listening), int32(communication.Connected)) {
		conn.Close() // closed while accepting
		return
	}
	s.conn = communication.NewFramedConn(conn)
	close(s.ready)
	log.Debug().Msgf("%s: peer connected", s.path)
}

// waitConnected blocks until a peer is connected, the server is closed or ctx is done.
func (s *Server) waitConnected(ctx context.Context) error {
	select {
	case <-s.ready:
		if s.isClosed() {
			return communication.ErrClosed
		}
		return nil
	case <-s.done:
		return communication.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next message from the peer. It returns communication.ErrClosed once the peer
// disconnects or the server is closed.
func (s *Server) Receive(ctx context.Context) ([]byte, error) {
	if err := s.waitConnected(ctx); err != nil {
		return nil, err
	}

	msg, err := s.conn.Receive(ctx)
	if err != nil {
		if s.isClosed() {
			return nil, communication.ErrClosed
		}
		if errors.Is(err, communication.ErrClosed) {
			log.Debug().Msgf("%s: peer closed", s.path)
			s.Close()
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: recv error: %w", s.path, err)
	}
	return msg, nil
}

// Send writes msg followed by the delimiter once a peer is connected.
func (s *Server) Send(ctx context.Context, msg []byte) error {
	if err := s.waitConnected(ctx); err != nil {
		return err
	}

	if err := s.conn.Send(ctx, msg); err != nil {
		if s.isClosed() {
			return communication.ErrClosed
		}
		if ctx.Err() != nil || errors.Is(err, communication.ErrClosed) {
			return err
		}
		return fmt.Errorf("%s: send error: %w", s.path, err)
	}
	return nil
}

func (s *Server) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close moves the server to Closed, wakes every blocked call, joins the acceptor and removes the
// socket file. It is safe to call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		prev := communication.State(s.state.Swap(int32(communication.Closed)))
		close(s.done)

		if s.listener != nil {
			if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = cerr
			}
		}
		s.wg.Wait()

		if prev == communication.Connected {
			if cerr := s.conn.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		if prev != communication.Unbound {
			if rerr := os.Remove(s.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
				err = rerr
			}
		}
	})
	return err
}

var _ communication.Communicator = (*Server)(nil)
