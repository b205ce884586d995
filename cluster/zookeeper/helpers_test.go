package zookeeper

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/zklock/cluster"
	"github.com/DataDog/zklock/cluster/memstore"

	"github.com/stretchr/testify/require"
)

const testLockPath = "/locks"

var discardLogger = log.New(io.Discard, "", 0)

func newMockZooKeeperLock(t *testing.T, tree *memstore.Tree, label string) *ZooKeeperLock {
	t.Helper()
	return newMockZooKeeperLockWithObserver(t, tree, label, nil)
}

func newMockZooKeeperLockWithObserver(t *testing.T, tree *memstore.Tree, label string, o Observer) *ZooKeeperLock {
	t.Helper()

	lock, err := NewZooKeeperLockWithDialer(ZooKeeperLockConfig{
		Address:        "memstore",
		Path:           testLockPath,
		Label:          label,
		ConnectTimeout: time.Second,
		Logger:         discardLogger,
		Observer:       o,
	}, tree.Dial)
	require.NoError(t, err)

	t.Cleanup(func() { lock.Close() })

	return lock
}

// mockObserver records Observer calls.
type mockObserver struct {
	mu       sync.Mutex
	states   []cluster.SessionState
	acquired int
	released int
	lost     int
	failures []error
}

func (m *mockObserver) SessionState(s cluster.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, s)
}

func (m *mockObserver) Acquired(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquired++
}

func (m *mockObserver) Released(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released++
}

func (m *mockObserver) Lost(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lost++
}

func (m *mockObserver) Failed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, err)
}
