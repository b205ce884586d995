// Package zookeeper implements cluster.Lock on a coordination store offering
// ZooKeeper style ephemeral sequential nodes.
//
// Each lock attempt creates an ephemeral sequential marker under the lock
// path. The holder is the marker with the lowest sequence number; everyone
// else lists the lock path with a watch set and re-checks each time the child
// set changes. Markers belong to the session of the lock instance, so a
// crashed holder is released by the store when its session expires.
package zookeeper

import (
	"fmt"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/zklock/cluster"

	"github.com/google/uuid"
)

const (
	// DefaultConnectTimeout is the time to wait for a session on construction.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultSessionTimeout is the session timeout negotiated with ZooKeeper.
	DefaultSessionTimeout = 10 * time.Second
	// DefaultLabel prefixes marker names when no label is configured.
	DefaultLabel = "lock"
)

// ZooKeeperLockConfig holds ZooKeeperLock parameters.
type ZooKeeperLockConfig struct {
	// Address is the ZooKeeper connect string.
	Address string
	// Path is the lock namespace shared by all competing clients.
	Path string
	// Label is a human readable marker name prefix.
	Label          string
	ConnectTimeout time.Duration
	SessionTimeout time.Duration
	Logger         Logger
	Observer       Observer
}

// ZooKeeperLock is a single-use distributed lock. A lock instance moves
// through Idle, Acquiring, Waiting and Held before being Released; a failure
// while acquiring or waiting is terminal. Acquiring again requires a new
// instance.
type ZooKeeperLock struct {
	Path  string
	Label string

	token    string
	session  *Session
	log      Logger
	observer Observer

	// mu guards the lock lifecycle fields below. It's never held while
	// blocking on the store.
	mu     sync.Mutex
	state  LockState
	marker marker
	heldAt time.Time
}

// NewZooKeeperLock opens a ZooKeeper session and returns a ZooKeeperLock.
func NewZooKeeperLock(c ZooKeeperLockConfig) (*ZooKeeperLock, error) {
	return NewZooKeeperLockWithDialer(c, nil)
}

// NewZooKeeperLockWithDialer is NewZooKeeperLock with a custom store dialer.
// A nil dialer dials ZooKeeper.
func NewZooKeeperLockWithDialer(c ZooKeeperLockConfig, d cluster.Dialer) (*ZooKeeperLock, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	if c.Label == "" {
		c.Label = DefaultLabel
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}

	s, err := OpenSession(SessionConfig{
		Dialer:         d,
		Endpoint:       c.Address,
		ConnectTimeout: c.ConnectTimeout,
		SessionTimeout: c.SessionTimeout,
		Logger:         c.Logger,
		Observer:       c.Observer,
	})
	if err != nil {
		return nil, err
	}

	return &ZooKeeperLock{
		Path:     c.Path,
		Label:    c.Label,
		token:    strings.ReplaceAll(uuid.New().String(), "-", ""),
		session:  s,
		log:      c.Logger,
		observer: c.Observer,
	}, nil
}

func (c ZooKeeperLockConfig) validate() error {
	switch {
	case c.Address == "":
		return fmt.Errorf("lock address must be set")
	case !strings.HasPrefix(c.Path, "/"), c.Path == "/", path.Clean(c.Path) != c.Path:
		return fmt.Errorf("invalid lock path %q; must be an absolute, clean, non-root path", c.Path)
	case strings.Contains(c.Label, "/"):
		return fmt.Errorf("invalid lock label %q", c.Label)
	}
	return nil
}

// State returns the lock state.
func (z *ZooKeeperLock) State() LockState {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.state
}

// Marker returns the full path of the lock's marker, if one was created.
func (z *ZooKeeperLock) Marker() string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.marker.path
}

// Lost returns a channel that's closed if the session is lost. A holder
// observing this must consider the lock released.
func (z *ZooKeeperLock) Lost() <-chan struct{} {
	return z.session.Lost()
}

// Close ends the session, abandoning the lock. A pending Lock returns
// ErrSessionLost and any marker is removed by the store.
func (z *ZooKeeperLock) Close() error {
	z.mu.Lock()
	switch z.state {
	case StateIdle:
		z.state = StateFailed
	case StateHeld:
		z.state = StateReleased
	}
	z.mu.Unlock()

	z.session.Close()

	return nil
}
