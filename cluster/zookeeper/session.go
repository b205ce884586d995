package zookeeper

import (
	"log"
	"sync"
	"time"

	"github.com/DataDog/zklock/cluster"
)

// SessionConfig holds OpenSession parameters.
type SessionConfig struct {
	// Dialer opens the store session. It defaults to a ZooKeeper dialer.
	Dialer cluster.Dialer
	// Endpoint is the store address, e.g. a ZooKeeper connect string.
	Endpoint string
	// ConnectTimeout bounds how long OpenSession waits for a session. It
	// defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// SessionTimeout is negotiated with the store.
	SessionTimeout time.Duration
	Logger         Logger
	Observer       Observer
}

// Session tracks the liveness of a single store session. A session listener
// goroutine is the only writer of the session state; every state change
// closes and replaces the changed channel so that waiters observing the
// state under mu never miss a transition.
type Session struct {
	store    cluster.Store
	endpoint string
	log      Logger
	observer Observer

	mu      sync.Mutex
	state   cluster.SessionState
	changed chan struct{}
	lost    chan struct{}
	reached bool
	closed  bool
}

// OpenSession dials the store and blocks until the session is connected or
// the connect timeout elapses.
func OpenSession(c SessionConfig) (*Session, error) {
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.Dialer == nil {
		c.Dialer = NewZooKeeperDialer(c.Logger)
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}

	store, events, err := c.Dialer(c.Endpoint, c.SessionTimeout)
	if err != nil {
		return nil, &ConnectionError{Endpoint: c.Endpoint, Err: err}
	}

	s := &Session{
		store:    store,
		endpoint: c.Endpoint,
		log:      c.Logger,
		observer: c.Observer,
		state:    cluster.StateConnecting,
		changed:  make(chan struct{}),
		lost:     make(chan struct{}),
	}

	go s.listen(events)

	timeout := time.NewTimer(c.ConnectTimeout)
	defer timeout.Stop()

	for {
		state, changed := s.watchState()
		switch state {
		case cluster.StateConnected:
			return s, nil
		case cluster.StateExpired:
			s.Close()
			return nil, &ConnectionError{Endpoint: c.Endpoint, Err: ErrSessionLost}
		}

		select {
		case <-changed:
		case <-timeout.C:
			s.Close()
			return nil, &ConnectionError{Endpoint: c.Endpoint, Err: ErrConnectionTimeout}
		}
	}
}

// listen applies session events until the store closes the event channel.
func (s *Session) listen(events <-chan cluster.SessionEvent) {
	for e := range events {
		s.mu.Lock()
		s.transition(e.State)
		expired := s.state == cluster.StateExpired
		s.mu.Unlock()

		// The ZooKeeper client would otherwise establish a fresh session that
		// none of our markers belong to.
		if expired {
			s.Close()
		}
	}

	s.mu.Lock()
	s.transition(cluster.StateExpired)
	s.mu.Unlock()
}

// transition sets the session state and wakes all waiters. Expired is
// terminal. The caller must hold s.mu.
func (s *Session) transition(state cluster.SessionState) {
	if s.state == cluster.StateExpired || s.state == state {
		return
	}

	s.log.Printf("ZooKeeper session %s: %s -> %s\n", s.endpoint, s.state, state)
	s.state = state

	switch state {
	case cluster.StateConnected:
		s.reached = true
	case cluster.StateDisconnected:
		if s.reached {
			s.markLost()
		}
	case cluster.StateExpired:
		s.markLost()
	}

	close(s.changed)
	s.changed = make(chan struct{})

	s.observer.SessionState(state)
}

func (s *Session) markLost() {
	select {
	case <-s.lost:
	default:
		close(s.lost)
	}
}

// watchState returns the current state along with a channel that's closed
// on the next state change.
func (s *Session) watchState() (cluster.SessionState, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.changed
}

// State returns the current session state.
func (s *Session) State() cluster.SessionState {
	state, _ := s.watchState()
	return state
}

// Lost returns a channel that's closed once an established session is
// disconnected or expires.
func (s *Session) Lost() <-chan struct{} {
	return s.lost
}

// Store returns the underlying store.
func (s *Session) Store() cluster.Store {
	return s.store
}

// Close ends the session, releasing the store connection. Ephemeral nodes
// created in the session are removed by the store. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.transition(cluster.StateExpired)
	s.mu.Unlock()

	s.store.Close()
}

// Queue returns the markers under namespace. The first entry is the current
// holder. No watch is left behind.
func (s *Session) Queue(namespace string) (LockEntries, error) {
	children, err := s.store.Children(namespace)
	if err != nil {
		return LockEntries{}, &LockError{Op: "list", Path: namespace, Err: err}
	}

	return entriesFrom(namespace, children), nil
}
