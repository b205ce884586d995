package zookeeper

import (
	"errors"
	"fmt"
)

var (
	// ErrLockingTimedOut is returned when a lock couldn't be acquired by the
	// context deadline.
	ErrLockingTimedOut = errors.New("attempt to acquire lock timed out")
	// ErrInvalidSeqNode is returned when sequential znodes are being parsed for
	// a trailing integer ID, but one isn't found.
	ErrInvalidSeqNode = errors.New("znode doesn't appear to be a sequential type")
	// ErrNotConnected is returned when a lock is attempted without a live
	// session.
	ErrNotConnected = errors.New("session is not connected")
	// ErrConnectionTimeout is returned when a session isn't established
	// within the connect timeout.
	ErrConnectionTimeout = errors.New("timed out waiting for a session")
	// ErrSessionLost is returned when the session is disconnected or expires
	// while waiting for or holding a lock. Any lock held must be considered
	// released.
	ErrSessionLost = errors.New("session to the coordination store was lost")
	// ErrIllegalState is returned on API misuse, e.g. a double unlock.
	ErrIllegalState = errors.New("illegal lock state")
)

// ConnectionError is returned when a session can't be established.
type ConnectionError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface for ConnectionError.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("unable to connect to %s: %s", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// LockError wraps a store failure encountered while acquiring, listing or
// releasing a lock.
type LockError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface for LockError.
func (e *LockError) Error() string {
	return fmt.Sprintf("lock %s failed [%s]: %s", e.Op, e.Path, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }
