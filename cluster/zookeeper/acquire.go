package zookeeper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DataDog/zklock/cluster"
)

// marker is a candidate znode created for a lock attempt.
type marker struct {
	path string
	id   int
}

// acquire enters a lock claim under namespace. The marker name is
// "<label>-<token>-<seq>"; only the store assigned sequence is used for
// ordering. The token identifies markers belonging to this lock instance.
func acquire(s *Session, namespace, label, token string) (marker, error) {
	if s.State() != cluster.StateConnected {
		return marker{}, ErrNotConnected
	}

	if err := ensurePath(s.store, namespace); err != nil {
		return marker{}, &LockError{Op: "create namespace", Path: namespace, Err: err}
	}

	prefix := fmt.Sprintf("%s/%s-%s-", namespace, label, token)
	node, err := s.store.CreateEphemeralSequential(prefix)
	if err != nil {
		// The create may have been applied even though the reply was lost.
		removeOwnMarkers(s, namespace, token)
		return marker{}, &LockError{Op: "create marker", Path: prefix, Err: err}
	}

	id, err := idFromZnode(node)
	if err != nil {
		removeOwnMarkers(s, namespace, token)
		return marker{}, &LockError{Op: "create marker", Path: node, Err: err}
	}

	return marker{path: node, id: id}, nil
}

// ensurePath creates each missing node along p. If for example we're
// provided "/path/to/locks", we create "/path", "/path/to" and
// "/path/to/locks". Losing a creation race to another client is fine.
func ensurePath(store cluster.Store, p string) error {
	if ok, err := store.Exists(p); err != nil {
		return err
	} else if ok {
		return nil
	}

	nodes := strings.Split(strings.Trim(p, "/"), "/")

	for i := range nodes {
		nodePath := fmt.Sprintf("/%s", strings.Join(nodes[:i+1], "/"))
		exists, err := store.Exists(nodePath)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := store.Create(nodePath); err != nil && !errors.Is(err, cluster.ErrNodeExists) {
			return err
		}
	}

	return nil
}

// removeOwnMarkers deletes any marker under namespace carrying token. It's
// best effort; markers left behind are removed with the session.
func removeOwnMarkers(s *Session, namespace, token string) {
	children, err := s.store.Children(namespace)
	if err != nil {
		return
	}

	for _, n := range children {
		if !strings.Contains(n, "-"+token+"-") {
			continue
		}
		p := fmt.Sprintf("%s/%s", namespace, n)
		if err := s.store.Delete(p); err != nil && !errors.Is(err, cluster.ErrNoNode) {
			s.log.Printf("Failed to remove marker %s: %s\n", p, err)
		}
	}
}
