package player

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func own(reply string) DecideFunc {
	return func() ([]byte, error) { return []byte(reply), nil }
}

func isWaiting(c *MoveCell) func() bool {
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.waiting
	}
}

func TestMoveCell(t *testing.T) {
	ctx := context.Background()

	t.Run("pending directive resolves without blocking", func(t *testing.T) {
		c := NewMoveCell()
		require.NoError(t, c.Notify(DecideOwn, nil))
		require.Equal(t, DecideOwn, c.Pending())

		move, err := c.Resolve(ctx, own("mine"))
		require.NoError(t, err)
		require.Equal(t, "mine", string(move))
		require.Equal(t, Wait, c.Pending())
	})

	t.Run("directed payload is returned as is", func(t *testing.T) {
		c := NewMoveCell()
		require.NoError(t, c.Notify(Directed, []byte(`{"type":"move","active":1}`)))

		move, err := c.Resolve(ctx, func() ([]byte, error) {
			t.Fatal("directed move must not call decide")
			return nil, nil
		})
		require.NoError(t, err)
		require.Equal(t, `{"type":"move","active":1}`, string(move))
	})

	t.Run("resolve blocks until notified", func(t *testing.T) {
		c := NewMoveCell()
		type resolved struct {
			move []byte
			err  error
		}
		done := make(chan resolved, 1)
		go func() {
			move, err := c.Resolve(ctx, own("late"))
			done <- resolved{move, err}
		}()

		require.Eventually(t, isWaiting(c), time.Second, time.Millisecond)
		select {
		case <-done:
			t.Fatal("resolve returned before notify")
		default:
		}

		require.NoError(t, c.Notify(DecideOwn, nil))
		select {
		case res := <-done:
			require.NoError(t, res.err)
			require.Equal(t, "late", string(res.move))
		case <-time.After(time.Second):
			t.Fatal("resolve did not wake")
		}
	})

	t.Run("wait is not a valid notification", func(t *testing.T) {
		c := NewMoveCell()
		require.ErrorIs(t, c.Notify(Wait, nil), ErrInvalidDirective)
		require.ErrorIs(t, c.Notify(Directive(7), nil), ErrInvalidDirective)
	})

	t.Run("latest notification wins", func(t *testing.T) {
		c := NewMoveCell()
		require.NoError(t, c.Notify(Directed, []byte("first")))
		require.NoError(t, c.Notify(Directed, []byte("second")))
		require.Equal(t, 1, c.Coalesced())

		move, err := c.Resolve(ctx, own("own"))
		require.NoError(t, err)
		require.Equal(t, "second", string(move))
	})

	t.Run("second waiter is rejected", func(t *testing.T) {
		c := NewMoveCell()
		errs := make(chan error, 1)
		go func() {
			_, err := c.Resolve(ctx, own("x"))
			errs <- err
		}()
		require.Eventually(t, isWaiting(c), time.Second, time.Millisecond)

		_, err := c.Resolve(ctx, own("y"))
		require.ErrorIs(t, err, ErrConcurrentResolve)

		c.Close()
		require.ErrorIs(t, <-errs, ErrCellClosed)
	})

	t.Run("close wakes a blocked resolve", func(t *testing.T) {
		c := NewMoveCell()
		errs := make(chan error, 1)
		go func() {
			_, err := c.Resolve(ctx, own("x"))
			errs <- err
		}()
		require.Eventually(t, isWaiting(c), time.Second, time.Millisecond)

		c.Close()
		select {
		case err := <-errs:
			require.ErrorIs(t, err, ErrCellClosed)
		case <-time.After(time.Second):
			t.Fatal("close did not wake resolve")
		}
		require.ErrorIs(t, c.Notify(DecideOwn, nil), ErrCellClosed)
	})

	t.Run("cancelled context wakes a blocked resolve", func(t *testing.T) {
		c := NewMoveCell()
		cctx, cancel := context.WithCancel(ctx)
		errs := make(chan error, 1)
		go func() {
			_, err := c.Resolve(cctx, own("x"))
			errs <- err
		}()
		require.Eventually(t, isWaiting(c), time.Second, time.Millisecond)

		cancel()
		require.ErrorIs(t, <-errs, context.Canceled)

		// the cell is still usable
		require.NoError(t, c.Notify(DecideOwn, nil))
		move, err := c.Resolve(ctx, own("again"))
		require.NoError(t, err)
		require.Equal(t, "again", string(move))
	})

	t.Run("decide errors are returned", func(t *testing.T) {
		c := NewMoveCell()
		boom := errors.New("boom")
		require.NoError(t, c.Notify(DecideOwn, nil))
		_, err := c.Resolve(ctx, func() ([]byte, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	})
}

func TestMoveCellInterleavings(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))
	c := NewMoveCell()

	for i := 0; i < 1000; i++ {
		payload := fmt.Sprintf("move%d", i)
		directed := rng.Intn(2) == 0
		delay := time.Duration(rng.Intn(50)) * time.Microsecond
		notifyFirst := rng.Intn(2) == 0

		notified := make(chan error, 1)
		notify := func() {
			time.Sleep(delay)
			if directed {
				notified <- c.Notify(Directed, []byte(payload))
			} else {
				notified <- c.Notify(DecideOwn, nil)
			}
		}

		if notifyFirst {
			notify()
		} else {
			go notify()
		}

		move, err := c.Resolve(ctx, own(payload))
		require.NoError(t, <-notified, "iteration %d", i)
		require.NoError(t, err, "iteration %d", i)
		require.Equal(t, payload, string(move), "iteration %d", i)
		require.Equal(t, Wait, c.Pending(), "iteration %d", i)
	}
	require.Zero(t, c.Coalesced())
}
