package zookeeper

import (
	"errors"

	"github.com/DataDog/zklock/cluster"
)

// release deletes the marker. A marker that's already gone, e.g. removed by
// the store with an expired session, counts as released.
func release(s *Session, m marker) error {
	if m.path == "" {
		return ErrIllegalState
	}

	if err := s.store.Delete(m.path); err != nil && !errors.Is(err, cluster.ErrNoNode) {
		return &LockError{Op: "delete marker", Path: m.path, Err: err}
	}

	return nil
}
