package zookeeper

import (
	"context"
	"fmt"

	"github.com/DataDog/zklock/cluster"
)

// waitUntilHeld blocks until m is the lowest sequence marker in namespace.
// Each pass lists the namespace and sets a child watch in one request, so a
// change landing between the listing and the wait can't be missed.
func waitUntilHeld(ctx context.Context, s *Session, namespace string, m marker) error {
	for {
		// Take the session signal before listing; any transition after this
		// point closes changed.
		state, changed := s.watchState()
		if state != cluster.StateConnected {
			return ErrSessionLost
		}

		children, watch, err := s.store.ChildrenW(namespace)
		if err != nil {
			if s.State() != cluster.StateConnected {
				return ErrSessionLost
			}
			return &LockError{Op: "list", Path: namespace, Err: err}
		}

		locks := entriesFrom(namespace, children)

		// Check if we have the first claim.
		if first, err := locks.First(); err == nil && first == m.id {
			return nil
		}

		// Our ephemeral marker only disappears with our session.
		if !locks.Contains(m.id) {
			return fmt.Errorf("%w: marker %s is gone", ErrSessionLost, m.path)
		}

		logQueued(s, locks, m)

		if err := waitForChange(ctx, s, watch, changed); err != nil {
			return err
		}
	}
}

// waitForChange blocks until the child watch fires, the session is no longer
// connected, or the context is done.
func waitForChange(ctx context.Context, s *Session, watch <-chan struct{}, changed <-chan struct{}) error {
	for {
		select {
		case <-watch:
			return nil
		case <-changed:
			var state cluster.SessionState
			state, changed = s.watchState()
			if state != cluster.StateConnected {
				return ErrSessionLost
			}
		case <-ctx.Done():
			return ErrLockingTimedOut
		}
	}
}

func logQueued(s *Session, locks LockEntries, m marker) {
	pos, err := locks.Position(m.id)
	if err != nil {
		return
	}
	ahead, err := locks.LockAhead(m.id)
	if err != nil {
		return
	}
	p, err := locks.LockPath(ahead)
	if err != nil {
		return
	}

	s.log.Printf("Lock marker %s queued at position %d behind %s\n", m.path, pos, p)
}
