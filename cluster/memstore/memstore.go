// Package memstore implements an in-process cluster.Store. A Tree holds the
// shared node hierarchy; each Dial opens an independent session against it,
// so a single Tree can stand in for a coordination store shared by many
// competing processes.
package memstore

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/zklock/cluster"
)

// ErrNotEmpty is returned when deleting a node that has children.
var ErrNotEmpty = errors.New("node has children")

// Op names a Store operation for fault injection.
type Op string

const (
	OpExists                    Op = "exists"
	OpCreate                    Op = "create"
	OpCreateEphemeralSequential Op = "create-ephemeral-sequential"
	OpChildren                  Op = "children"
	OpChildrenW                 Op = "children-w"
	OpDelete                    Op = "delete"
)

type node struct {
	// Owning session ID; 0 for durable nodes.
	owner int64
}

type watch struct {
	owner int64
	c     chan struct{}
}

type fault struct {
	err error
	// applied means the operation takes effect before err is returned,
	// mimicking a reply lost after the store committed the request.
	applied bool
}

// Tree is a shared in-memory node hierarchy.
type Tree struct {
	mu          sync.Mutex
	nodes       map[string]*node
	seqs        map[string]int64
	watches     map[string][]watch
	sessions    map[int64]*Session
	faults      map[Op]fault
	nextSession int64
	unreachable bool
}

// New returns a Tree holding only the root node.
func New() *Tree {
	return &Tree{
		nodes:    map[string]*node{"/": {}},
		seqs:     map[string]int64{},
		watches:  map[string][]watch{},
		sessions: map[int64]*Session{},
		faults:   map[Op]fault{},
	}
}

// SetReachable controls whether new sessions reach the connected state.
// Sessions dialed while unreachable stay in StateConnecting.
func (t *Tree) SetReachable(r bool) {
	t.mu.Lock()
	t.unreachable = !r
	t.mu.Unlock()
}

// InjectFault makes the next call of op return err. If applied is true the
// operation still takes effect.
func (t *Tree) InjectFault(op Op, err error, applied bool) {
	t.mu.Lock()
	t.faults[op] = fault{err: err, applied: applied}
	t.mu.Unlock()
}

// Dial opens a new session. It satisfies cluster.Dialer.
func (t *Tree) Dial(endpoint string, sessionTimeout time.Duration) (cluster.Store, <-chan cluster.SessionEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextSession++
	s := &Session{
		id:     t.nextSession,
		t:      t,
		events: make(chan cluster.SessionEvent, 16),
	}
	t.sessions[s.id] = s

	s.events <- cluster.SessionEvent{State: cluster.StateConnecting}
	if !t.unreachable {
		s.events <- cluster.SessionEvent{State: cluster.StateConnected}
	}

	return s, s.events, nil
}

// Paths returns the full path of every node under parent, sorted.
func (t *Tree) Paths(parent string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var paths []string
	for _, name := range t.children(parent) {
		paths = append(paths, path.Join(parent, name))
	}

	return paths
}

// Exists reports whether p exists without going through a session.
func (t *Tree) Exists(p string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.nodes[p]
	return ok
}

// Watches returns the number of pending child watches on p.
func (t *Tree) Watches(p string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.watches[p])
}

// ExpireOwner expires the session that owns the ephemeral node at p, as if
// the owning process had crashed. It returns false if p isn't an ephemeral
// node.
func (t *Tree) ExpireOwner(p string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[p]
	if !ok || n.owner == 0 {
		return false
	}

	s := t.sessions[n.owner]
	s.events <- cluster.SessionEvent{State: cluster.StateExpired, Err: cluster.ErrSessionClosed}
	t.endSession(s)

	return true
}

// DisconnectOwner delivers a disconnected event to the session owning the
// ephemeral node at p. The session and its nodes stay in place.
func (t *Tree) DisconnectOwner(p string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[p]
	if !ok || n.owner == 0 {
		return false
	}

	t.sessions[n.owner].events <- cluster.SessionEvent{State: cluster.StateDisconnected}

	return true
}

// endSession removes all ephemeral nodes and watches owned by s. The caller
// must hold t.mu.
func (t *Tree) endSession(s *Session) {
	if s.closed {
		return
	}
	s.closed = true

	for p, n := range t.nodes {
		if n.owner == s.id {
			delete(t.nodes, p)
			t.fire(path.Dir(p))
		}
	}

	for p, ws := range t.watches {
		var keep []watch
		for _, w := range ws {
			if w.owner == s.id {
				close(w.c)
				continue
			}
			keep = append(keep, w)
		}
		t.watches[p] = keep
	}

	delete(t.sessions, s.id)
	close(s.events)
}

// fire triggers and clears all child watches on p.
func (t *Tree) fire(p string) {
	for _, w := range t.watches[p] {
		close(w.c)
	}
	delete(t.watches, p)
}

func (t *Tree) children(p string) []string {
	var names []string
	for np := range t.nodes {
		if np != "/" && path.Dir(np) == p {
			names = append(names, path.Base(np))
		}
	}
	sort.Strings(names)
	return names
}

// takeFault returns and clears any fault registered for op.
func (t *Tree) takeFault(op Op) (fault, bool) {
	f, ok := t.faults[op]
	if ok {
		delete(t.faults, op)
	}
	return f, ok
}

// Session is a cluster.Store session against a Tree.
type Session struct {
	id     int64
	t      *Tree
	events chan cluster.SessionEvent
	closed bool
}

// ID returns the session ID.
func (s *Session) ID() int64 {
	return s.id
}

// Expire ends the session as the store would on a session timeout.
func (s *Session) Expire() {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	if s.closed {
		return
	}
	s.events <- cluster.SessionEvent{State: cluster.StateExpired, Err: cluster.ErrSessionClosed}
	s.t.endSession(s)
}

// begin locks the tree and checks session liveness and faults for op. The
// returned bool reports whether the operation should be applied; err is
// returned to the caller either way. The caller must unlock t.mu.
func (s *Session) begin(op Op) (bool, error) {
	s.t.mu.Lock()
	if s.closed {
		return false, cluster.ErrSessionClosed
	}
	if f, ok := s.t.takeFault(op); ok {
		return f.applied, f.err
	}
	return true, nil
}

func (s *Session) Exists(p string) (bool, error) {
	_, err := s.begin(OpExists)
	defer s.t.mu.Unlock()
	if err != nil {
		return false, err
	}

	_, ok := s.t.nodes[p]
	return ok, nil
}

func (s *Session) Create(p string) error {
	apply, err := s.begin(OpCreate)
	defer s.t.mu.Unlock()
	if !apply {
		return err
	}

	if e := s.create(p, 0); e != nil {
		return e
	}

	return err
}

func (s *Session) CreateEphemeralSequential(prefix string) (string, error) {
	apply, err := s.begin(OpCreateEphemeralSequential)
	defer s.t.mu.Unlock()
	if !apply {
		return "", err
	}

	parent := path.Dir(prefix)
	seq := s.t.seqs[parent]
	s.t.seqs[parent]++

	p := fmt.Sprintf("%s%010d", prefix, seq)
	if e := s.create(p, s.id); e != nil {
		return "", e
	}

	if err != nil {
		return "", err
	}

	return p, nil
}

// create adds a node. The caller must hold t.mu.
func (s *Session) create(p string, owner int64) error {
	if !strings.HasPrefix(p, "/") || p != path.Clean(p) {
		return fmt.Errorf("invalid path %q", p)
	}
	if _, exists := s.t.nodes[p]; exists {
		return cluster.ErrNodeExists
	}

	parent := path.Dir(p)
	pn, ok := s.t.nodes[parent]
	if !ok {
		return cluster.ErrNoNode
	}
	if pn.owner != 0 {
		return fmt.Errorf("ephemeral node %s can't have children", parent)
	}

	s.t.nodes[p] = &node{owner: owner}
	s.t.fire(parent)

	return nil
}

func (s *Session) Children(p string) ([]string, error) {
	apply, err := s.begin(OpChildren)
	defer s.t.mu.Unlock()
	if !apply || err != nil {
		return nil, err
	}

	if _, ok := s.t.nodes[p]; !ok {
		return nil, cluster.ErrNoNode
	}

	return s.t.children(p), nil
}

func (s *Session) ChildrenW(p string) ([]string, <-chan struct{}, error) {
	apply, err := s.begin(OpChildrenW)
	defer s.t.mu.Unlock()
	if !apply || err != nil {
		return nil, nil, err
	}

	if _, ok := s.t.nodes[p]; !ok {
		return nil, nil, cluster.ErrNoNode
	}

	c := make(chan struct{})
	s.t.watches[p] = append(s.t.watches[p], watch{owner: s.id, c: c})

	return s.t.children(p), c, nil
}

func (s *Session) Delete(p string) error {
	apply, err := s.begin(OpDelete)
	defer s.t.mu.Unlock()
	if !apply {
		return err
	}

	if _, ok := s.t.nodes[p]; !ok {
		return cluster.ErrNoNode
	}
	if len(s.t.children(p)) > 0 {
		return ErrNotEmpty
	}

	delete(s.t.nodes, p)
	s.t.fire(path.Dir(p))

	return err
}

// Close ends the session, removing its ephemeral nodes.
func (s *Session) Close() {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.t.endSession(s)
}
