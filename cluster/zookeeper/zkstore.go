package zookeeper

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/zklock/cluster"

	"github.com/go-zookeeper/zk"
)

// zkStore implements cluster.Store on a ZooKeeper connection.
type zkStore struct {
	c         *zk.Conn
	acl       []zk.ACL
	done      chan struct{}
	closeOnce sync.Once
}

// NewZooKeeperDialer returns a cluster.Dialer for ZooKeeper. The endpoint is
// a comma delimited connect string. ZooKeeper client logging is written to l.
func NewZooKeeperDialer(l Logger) cluster.Dialer {
	return func(endpoint string, sessionTimeout time.Duration) (cluster.Store, <-chan cluster.SessionEvent, error) {
		servers := strings.Split(endpoint, ",")

		c, zkEvents, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false), zk.WithLogger(l))
		if err != nil {
			return nil, nil, err
		}

		z := &zkStore{
			c:    c,
			acl:  zk.WorldACL(zk.PermAll),
			done: make(chan struct{}),
		}

		events := make(chan cluster.SessionEvent, 8)
		go z.forward(zkEvents, events)

		return z, events, nil
	}
}

// forward translates ZooKeeper session events until the store is closed.
func (z *zkStore) forward(in <-chan zk.Event, out chan<- cluster.SessionEvent) {
	defer close(out)

	for {
		select {
		case <-z.done:
			return
		case e, ok := <-in:
			if !ok {
				return
			}
			if e.Type != zk.EventSession {
				continue
			}
			state, known := sessionState(e.State)
			if !known {
				continue
			}
			select {
			case out <- cluster.SessionEvent{State: state, Err: e.Err}:
			case <-z.done:
				return
			}
		}
	}
}

// sessionState maps a ZooKeeper client state to a cluster.SessionState. A
// ZooKeeper StateConnected only indicates a TCP connection; the session is
// usable once StateHasSession is reached.
func sessionState(s zk.State) (cluster.SessionState, bool) {
	switch s {
	case zk.StateHasSession:
		return cluster.StateConnected, true
	case zk.StateConnecting, zk.StateConnected:
		return cluster.StateConnecting, true
	case zk.StateDisconnected:
		return cluster.StateDisconnected, true
	case zk.StateExpired, zk.StateAuthFailed:
		return cluster.StateExpired, true
	default:
		return 0, false
	}
}

// storeErr translates ZooKeeper client errors to cluster errors.
func storeErr(p string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, zk.ErrNodeExists):
		return fmt.Errorf("[%s] %w", p, cluster.ErrNodeExists)
	case errors.Is(err, zk.ErrNoNode):
		return fmt.Errorf("[%s] %w", p, cluster.ErrNoNode)
	case errors.Is(err, zk.ErrSessionExpired),
		errors.Is(err, zk.ErrConnectionClosed),
		errors.Is(err, zk.ErrClosing):
		return fmt.Errorf("[%s] %s: %w", p, err, cluster.ErrSessionClosed)
	default:
		return fmt.Errorf("[%s] %w", p, err)
	}
}

func (z *zkStore) Exists(p string) (bool, error) {
	ok, _, err := z.c.Exists(p)
	return ok, storeErr(p, err)
}

func (z *zkStore) Create(p string) error {
	_, err := z.c.Create(p, nil, 0, z.acl)
	return storeErr(p, err)
}

func (z *zkStore) CreateEphemeralSequential(prefix string) (string, error) {
	p, err := z.c.Create(prefix, nil, zk.FlagEphemeral|zk.FlagSequence, z.acl)
	return p, storeErr(prefix, err)
}

func (z *zkStore) Children(p string) ([]string, error) {
	children, _, err := z.c.Children(p)
	if err != nil {
		return nil, storeErr(p, err)
	}
	return children, nil
}

// ChildrenW issues a single getChildren request with a watch set.
func (z *zkStore) ChildrenW(p string) ([]string, <-chan struct{}, error) {
	children, _, w, err := z.c.ChildrenW(p)
	if err != nil {
		return nil, nil, storeErr(p, err)
	}

	fired := make(chan struct{})
	go func() {
		defer close(fired)
		select {
		case <-w:
		case <-z.done:
		}
	}()

	return children, fired, nil
}

func (z *zkStore) Delete(p string) error {
	return storeErr(p, z.c.Delete(p, -1))
}

func (z *zkStore) Close() {
	z.closeOnce.Do(func() {
		close(z.done)
		z.c.Close()
	})
}
