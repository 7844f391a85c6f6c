package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pokezero/communication"
	"pokezero/communication/client"

	"github.com/stretchr/testify/require"
)

func socketPath(t *testing.T) string {
	// sun_path is short; t.TempDir() can exceed it on some systems
	dir, err := os.MkdirTemp("", "pz")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "sock")
}

func connectPair(t *testing.T) (*Server, *client.Client) {
	s := New(socketPath(t))
	require.NoError(t, s.Connect(false))
	t.Cleanup(func() { s.Close() })

	c, err := client.Dial(context.Background(), s.Path())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return s, c
}

func TestServerLifecycle(t *testing.T) {
	t.Run("moving through unbound, listening, connected and closed", func(t *testing.T) {
		s := New(socketPath(t))
		require.Equal(t, communication.Unbound, s.State())

		require.NoError(t, s.Connect(false))
		require.Equal(t, communication.Listening, s.State())

		c, err := client.Dial(context.Background(), s.Path())
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.Send(context.Background(), []byte("hello")))
		msg, err := s.Receive(context.Background())
		require.NoError(t, err)
		require.Equal(t, "hello", string(msg))
		require.Equal(t, communication.Connected, s.State())

		require.NoError(t, s.Close())
		require.Equal(t, communication.Closed, s.State())
		_, err = os.Stat(s.Path())
		require.True(t, os.IsNotExist(err), "Close should remove the socket file")

		require.NoError(t, s.Close(), "Close should be idempotent")
	})

	t.Run("refusing to connect twice", func(t *testing.T) {
		s := New(socketPath(t))
		require.NoError(t, s.Connect(false))
		defer s.Close()
		require.Error(t, s.Connect(false))
	})

	t.Run("force unlinking a stale socket file", func(t *testing.T) {
		path := socketPath(t)
		require.NoError(t, os.WriteFile(path, nil, 0o600))

		require.Error(t, New(path).Connect(false), "Bind should fail over a stale file")

		s := New(path)
		require.NoError(t, s.Connect(true))
		require.NoError(t, s.Close())
	})
}

func TestServerMessaging(t *testing.T) {
	t.Run("exchanging messages both ways in order", func(t *testing.T) {
		s, c := connectPair(t)
		ctx := context.Background()

		for _, msg := range []string{"one", "two", "three"} {
			require.NoError(t, c.Send(ctx, []byte(msg)))
		}
		for _, want := range []string{"one", "two", "three"} {
			got, err := s.Receive(ctx)
			require.NoError(t, err)
			require.Equal(t, want, string(got))
		}

		require.NoError(t, s.Send(ctx, []byte(`{"type":"move"}`)))
		got, err := c.Receive(ctx)
		require.NoError(t, err)
		require.Equal(t, `{"type":"move"}`, string(got))
	})

	t.Run("blocking send until a peer connects", func(t *testing.T) {
		s := New(socketPath(t))
		require.NoError(t, s.Connect(false))
		defer s.Close()

		sent := make(chan error, 1)
		go func() { sent <- s.Send(context.Background(), []byte("late")) }()

		select {
		case err := <-sent:
			t.Fatalf("Send returned before a peer connected: %v", err)
		case <-time.After(50 * time.Millisecond):
		}

		c, err := client.Dial(context.Background(), s.Path())
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, <-sent)
		got, err := c.Receive(context.Background())
		require.NoError(t, err)
		require.Equal(t, "late", string(got))
	})

	t.Run("reporting a peer close as ErrClosed", func(t *testing.T) {
		s, c := connectPair(t)
		require.NoError(t, c.Send(context.Background(), []byte("last")))
		require.NoError(t, c.Close())

		got, err := s.Receive(context.Background())
		require.NoError(t, err)
		require.Equal(t, "last", string(got))

		_, err = s.Receive(context.Background())
		require.ErrorIs(t, err, communication.ErrClosed)
		require.Equal(t, communication.Closed, s.State())
	})
}

func TestServerClose(t *testing.T) {
	t.Run("waking a receive blocked on the connection", func(t *testing.T) {
		s, _ := connectPair(t)

		// let the acceptor finish so Receive blocks in the read
		require.Eventually(t, func() bool { return s.State() == communication.Connected }, time.Second, time.Millisecond)

		result := make(chan error, 1)
		go func() {
			_, err := s.Receive(context.Background())
			result <- err
		}()
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, s.Close())

		select {
		case err := <-result:
			require.ErrorIs(t, err, communication.ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("Receive did not return after Close")
		}
	})

	t.Run("waking a receive blocked waiting for a peer", func(t *testing.T) {
		s := New(socketPath(t))
		require.NoError(t, s.Connect(false))

		result := make(chan error, 1)
		go func() {
			_, err := s.Receive(context.Background())
			result <- err
		}()
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, s.Close())

		select {
		case err := <-result:
			require.ErrorIs(t, err, communication.ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("Receive did not return after Close")
		}
	})

	t.Run("cancelling a blocked receive with the context", func(t *testing.T) {
		s, c := connectPair(t)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := s.Receive(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		// the channel stays usable after a cancelled receive
		require.NoError(t, c.Send(context.Background(), []byte("after")))
		got, err := s.Receive(context.Background())
		require.NoError(t, err)
		require.Equal(t, "after", string(got))
	})
}
