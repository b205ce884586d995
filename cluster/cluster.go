// package cluster specifies clustering primitives for multi-node service
// coordination.
package cluster

import (
	"context"
	"time"
)

// Lock defines a distributed locking service.
type Lock interface {
	// Lock and Unlock are simple, coarse grain locks based on a pre-defined
	// lock path. The lock path is an implementation detail that isn't negotiated
	// through this interface. A context is accepted for setting wait bounds.
	Lock(context.Context) error
	Unlock(context.Context) error
}

// Store is the set of coordination store primitives a Lock is built on. Node
// paths are absolute and slash delimited.
type Store interface {
	// Exists reports whether the node at path exists.
	Exists(path string) (bool, error)
	// Create creates a durable node. ErrNodeExists is returned if the node is
	// already present.
	Create(path string) error
	// CreateEphemeralSequential creates a node named prefix plus a
	// store-assigned, monotonically increasing sequence suffix. The node is
	// bound to the store session and removed when the session ends. The full
	// path of the created node is returned.
	CreateEphemeralSequential(prefix string) (string, error)
	// Children lists the child names of path without setting a watch.
	Children(path string) ([]string, error)
	// ChildrenW lists the child names of path and registers a one-shot watch
	// in a single request. The returned channel is closed on the next change
	// to the child set, or when the session ends.
	ChildrenW(path string) ([]string, <-chan struct{}, error)
	// Delete removes the node at path. ErrNoNode is returned if the node
	// doesn't exist.
	Delete(path string) error
	// Close ends the store session.
	Close()
}

// SessionState describes the liveness of a Store session.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateConnected
	StateDisconnected
	StateExpired
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// SessionEvent is a session state transition delivered by a Store.
type SessionEvent struct {
	State SessionState
	Err   error
}

// Dialer establishes a Store session against endpoint. Session state
// transitions are delivered on the returned channel, which is closed when the
// session is closed.
type Dialer func(endpoint string, sessionTimeout time.Duration) (Store, <-chan SessionEvent, error)
