package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DataDog/zklock/cluster"
)

// LockState is the lifecycle state of a ZooKeeperLock.
type LockState int

const (
	StateIdle LockState = iota
	StateAcquiring
	StateWaiting
	StateHeld
	StateReleased
	StateFailed
)

func (s LockState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateWaiting:
		return "waiting"
	case StateHeld:
		return "held"
	case StateReleased:
		return "released"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Lock claims the lock, blocking until it's held, the session is lost or the
// context is done. A failed Lock leaves no marker behind.
func (z *ZooKeeperLock) Lock(ctx context.Context) error {
	z.mu.Lock()
	if z.state != StateIdle {
		state := z.state
		z.mu.Unlock()
		return fmt.Errorf("%w: lock called while %s", ErrIllegalState, state)
	}
	z.state = StateAcquiring
	z.mu.Unlock()

	start := time.Now()

	// Enter the claim into ZooKeeper.
	m, err := acquire(z.session, z.Path, z.Label, z.token)
	if err != nil {
		return z.fail(err)
	}

	z.mu.Lock()
	z.marker = m
	z.state = StateWaiting
	z.mu.Unlock()

	if err := waitUntilHeld(ctx, z.session, z.Path, m); err != nil {
		return z.fail(err)
	}

	z.mu.Lock()
	z.state = StateHeld
	z.heldAt = time.Now()
	z.mu.Unlock()

	z.log.Printf("Lock %s acquired (%s)\n", z.Path, m.path)
	z.observer.Acquired(time.Since(start))

	return nil
}

// fail moves the lock into its terminal failed state, removes any marker and
// ends the session.
func (z *ZooKeeperLock) fail(err error) error {
	z.mu.Lock()
	z.state = StateFailed
	m := z.marker
	z.mu.Unlock()

	// A lost session takes the marker with it.
	if m.path != "" && z.session.State() == cluster.StateConnected {
		if rerr := release(z.session, m); rerr != nil {
			z.log.Printf("Failed to remove marker %s: %s\n", m.path, rerr)
		}
	}

	z.session.Close()

	z.log.Printf("Lock %s failed: %s\n", z.Path, err)
	z.observer.Failed(err)

	return err
}

// Unlock releases a held lock and ends the session. Unlocking a lock that
// isn't held returns ErrIllegalState. If the session was lost while the lock
// was held, ErrSessionLost is returned.
func (z *ZooKeeperLock) Unlock(ctx context.Context) error {
	z.mu.Lock()
	if z.state != StateHeld {
		state := z.state
		z.mu.Unlock()
		return fmt.Errorf("%w: unlock called while %s", ErrIllegalState, state)
	}
	z.state = StateReleased
	m := z.marker
	held := time.Since(z.heldAt)
	z.mu.Unlock()

	var err error
	select {
	case <-z.session.Lost():
		err = ErrSessionLost
	default:
		err = release(z.session, m)
	}

	z.session.Close()

	switch {
	case err == nil:
		z.log.Printf("Lock %s released (%s)\n", z.Path, m.path)
		z.observer.Released(held)
	case errors.Is(err, ErrSessionLost):
		z.log.Printf("Lock %s was lost before unlock (%s)\n", z.Path, m.path)
		z.observer.Lost(held)
	default:
		z.log.Printf("Lock %s release failed: %s\n", z.Path, err)
		z.observer.Failed(err)
	}

	return err
}
