package cluster

import (
	"errors"
)

var (
	// ErrNodeExists is returned by Store.Create when the node is present.
	ErrNodeExists = errors.New("node already exists")
	// ErrNoNode is returned when a referenced node doesn't exist.
	ErrNoNode = errors.New("node does not exist")
	// ErrSessionClosed is returned by Store calls issued after the session
	// was closed or expired.
	ErrSessionClosed = errors.New("store session closed")
)
