package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DataDog/zklock/cluster"
	"github.com/DataDog/zklock/cluster/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctxTimeout(t *testing.T, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func waitForState(t *testing.T, lock *ZooKeeperLock, s LockState) {
	t.Helper()
	require.Eventually(t, func() bool { return lock.State() == s },
		time.Second, time.Millisecond, "lock never reached %s", s)
}

// lockAsync calls Lock in the background and returns its result channel.
func lockAsync(ctx context.Context, lock *ZooKeeperLock) <-chan error {
	c := make(chan error, 1)
	go func() { c <- lock.Lock(ctx) }()
	return c
}

func TestLock(t *testing.T) {
	tree := memstore.New()
	o := &mockObserver{}
	lock := newMockZooKeeperLockWithObserver(t, tree, "worker", o)

	assert.Equal(t, StateIdle, lock.State())

	// This lock should succeed normally.
	err := lock.Lock(ctxTimeout(t, time.Second))
	assert.Nil(t, err)
	assert.Equal(t, StateHeld, lock.State())

	// The namespace is created lazily and holds our marker.
	assert.Equal(t, []string{lock.Marker()}, tree.Paths(testLockPath))
	assert.Regexp(t, `^/locks/worker-[0-9a-f]{32}-0000000000$`, lock.Marker())

	// Lock instances are single use.
	err = lock.Lock(ctxTimeout(t, time.Second))
	assert.True(t, errors.Is(err, ErrIllegalState))

	err = lock.Unlock(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, StateReleased, lock.State())
	assert.Empty(t, tree.Paths(testLockPath))

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Equal(t, 1, o.acquired)
	assert.Equal(t, 1, o.released)
	assert.Empty(t, o.failures)
}

func TestLockNestedNamespace(t *testing.T) {
	tree := memstore.New()

	lock, err := NewZooKeeperLockWithDialer(ZooKeeperLockConfig{
		Address: "memstore",
		Path:    "/path/to/locks",
		Logger:  discardLogger,
	}, tree.Dial)
	require.NoError(t, err)
	defer lock.Close()

	require.NoError(t, lock.Lock(ctxTimeout(t, time.Second)))
	assert.True(t, tree.Exists("/path"))
	assert.True(t, tree.Exists("/path/to"))
	assert.Regexp(t, `^/path/to/locks/lock-`, lock.Marker())
}

func TestLockNamespaceCreateRace(t *testing.T) {
	tree := memstore.New()
	// Another client creates the namespace between our existence check and
	// our create.
	tree.InjectFault(memstore.OpCreate, cluster.ErrNodeExists, true)

	lock := newMockZooKeeperLock(t, tree, "racer")
	assert.Nil(t, lock.Lock(ctxTimeout(t, time.Second)))
}

func TestLockTimesOut(t *testing.T) {
	tree := memstore.New()
	lock := newMockZooKeeperLock(t, tree, "a")
	lock2 := newMockZooKeeperLock(t, tree, "b")

	require.NoError(t, lock.Lock(ctxTimeout(t, time.Second)))

	// This lock should time out.
	err := lock2.Lock(ctxTimeout(t, 50*time.Millisecond))
	assert.Equal(t, ErrLockingTimedOut, err, "Expected ErrLockingTimedOut")
	assert.Equal(t, StateFailed, lock2.State())

	// The timed out claim leaves nothing behind.
	assert.Equal(t, []string{lock.Marker()}, tree.Paths(testLockPath))
}

func TestUnlock(t *testing.T) {
	tree := memstore.New()
	lock := newMockZooKeeperLock(t, tree, "a")
	lock2 := newMockZooKeeperLock(t, tree, "b")

	// This lock should succeed normally.
	require.NoError(t, lock.Lock(ctxTimeout(t, time.Second)))

	// Release the first lock.
	assert.Nil(t, lock.Unlock(context.Background()))
	assert.Empty(t, tree.Paths(testLockPath))

	// This lock should succeed.
	assert.Nil(t, lock2.Lock(ctxTimeout(t, time.Second)))
}

func TestUnlockLost(t *testing.T) {
	tree := memstore.New()
	o := &mockObserver{}
	lock := newMockZooKeeperLockWithObserver(t, tree, "a", o)

	require.NoError(t, lock.Lock(ctxTimeout(t, time.Second)))
	require.True(t, tree.ExpireOwner(lock.Marker()))

	select {
	case <-lock.Lost():
	case <-time.After(time.Second):
		t.Fatal("Expected lock to be lost")
	}

	err := lock.Unlock(context.Background())
	assert.True(t, errors.Is(err, ErrSessionLost), "Expected ErrSessionLost, got %v", err)

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Equal(t, 1, o.acquired)
	assert.Equal(t, 0, o.released)
	assert.Equal(t, 1, o.lost)
	assert.Empty(t, o.failures)
}

func TestUnlockReleaseFailure(t *testing.T) {
	tree := memstore.New()
	o := &mockObserver{}
	lock := newMockZooKeeperLockWithObserver(t, tree, "a", o)

	require.NoError(t, lock.Lock(ctxTimeout(t, time.Second)))

	tree.InjectFault(memstore.OpDelete, errors.New("connection loss"), false)
	err := lock.Unlock(context.Background())

	var lerr *LockError
	require.True(t, errors.As(err, &lerr), "Expected LockError, got %v", err)
	assert.Equal(t, "delete marker", lerr.Op)

	// The marker goes with the session.
	assert.Empty(t, tree.Paths(testLockPath))

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Equal(t, 0, o.released)
	assert.Equal(t, 0, o.lost)
	assert.Len(t, o.failures, 1)
}

func TestUnlockTwice(t *testing.T) {
	lock := newMockZooKeeperLock(t, memstore.New(), "a")

	require.NoError(t, lock.Lock(ctxTimeout(t, time.Second)))
	require.NoError(t, lock.Unlock(context.Background()))

	err := lock.Unlock(context.Background())
	assert.True(t, errors.Is(err, ErrIllegalState), "Expected ErrIllegalState, got %v", err)
}

func TestUnlockWithoutLock(t *testing.T) {
	lock := newMockZooKeeperLock(t, memstore.New(), "a")

	err := lock.Unlock(context.Background())
	assert.True(t, errors.Is(err, ErrIllegalState))

	// The misuse doesn't affect a subsequent Lock.
	assert.Nil(t, lock.Lock(ctxTimeout(t, time.Second)))
}

func TestReleaseWithoutMarker(t *testing.T) {
	s, err := openTestSession(t, memstore.New(), nil)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, ErrIllegalState, release(s, marker{}))
	// A marker removed behind our back counts as released.
	assert.Nil(t, release(s, marker{path: "/locks/lock-x-0000000000"}))
}

func TestAcquireNotConnected(t *testing.T) {
	tree := memstore.New()
	s, err := openTestSession(t, tree, nil)
	require.NoError(t, err)
	s.Close()

	_, err = acquire(s, testLockPath, "a", "token")
	assert.Equal(t, ErrNotConnected, err)
	assert.False(t, tree.Exists(testLockPath))
}

func TestLockCleanFailure(t *testing.T) {
	tree := memstore.New()
	o := &mockObserver{}
	lock := newMockZooKeeperLockWithObserver(t, tree, "a", o)

	// The marker is created but the reply is lost.
	connLoss := errors.New("connection loss")
	tree.InjectFault(memstore.OpCreateEphemeralSequential, connLoss, true)

	err := lock.Lock(ctxTimeout(t, time.Second))

	var lerr *LockError
	require.True(t, errors.As(err, &lerr), "Expected LockError, got %v", err)
	assert.Equal(t, "create marker", lerr.Op)
	assert.True(t, errors.Is(err, connLoss))
	assert.Equal(t, StateFailed, lock.State())
	assert.Empty(t, tree.Paths(testLockPath))

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Len(t, o.failures, 1)
}

func TestLockListFailure(t *testing.T) {
	tree := memstore.New()
	lock := newMockZooKeeperLock(t, tree, "a")

	listErr := errors.New("i/o timeout")
	tree.InjectFault(memstore.OpChildrenW, listErr, false)

	err := lock.Lock(ctxTimeout(t, time.Second))

	var lerr *LockError
	require.True(t, errors.As(err, &lerr), "Expected LockError, got %v", err)
	assert.Equal(t, "list", lerr.Op)
	assert.Empty(t, tree.Paths(testLockPath))
}

func TestLockSessionLostWhileWaiting(t *testing.T) {
	tree := memstore.New()
	a := newMockZooKeeperLock(t, tree, "a")
	b := newMockZooKeeperLock(t, tree, "b")

	require.NoError(t, a.Lock(ctxTimeout(t, time.Second)))
	res := lockAsync(ctxTimeout(t, 5*time.Second), b)
	waitForState(t, b, StateWaiting)

	require.True(t, tree.DisconnectOwner(b.Marker()))

	select {
	case err := <-res:
		assert.True(t, errors.Is(err, ErrSessionLost), "Expected ErrSessionLost, got %v", err)
	case <-time.After(time.Second):
		t.Fatal("Lock didn't return after the session was lost")
	}

	// The failed claim's session was closed, taking the marker with it.
	assert.Equal(t, []string{a.Marker()}, tree.Paths(testLockPath))
}

func TestCloseAbandonsWait(t *testing.T) {
	tree := memstore.New()
	a := newMockZooKeeperLock(t, tree, "a")
	b := newMockZooKeeperLock(t, tree, "b")

	require.NoError(t, a.Lock(ctxTimeout(t, time.Second)))
	res := lockAsync(ctxTimeout(t, 5*time.Second), b)
	waitForState(t, b, StateWaiting)

	require.NoError(t, b.Close())

	select {
	case err := <-res:
		assert.True(t, errors.Is(err, ErrSessionLost), "Expected ErrSessionLost, got %v", err)
	case <-time.After(time.Second):
		t.Fatal("Lock didn't return after Close")
	}

	assert.Equal(t, []string{a.Marker()}, tree.Paths(testLockPath))
}

// The holder's session dies without an Unlock; the next waiter takes over.
func TestCrashLiveness(t *testing.T) {
	tree := memstore.New()
	a := newMockZooKeeperLock(t, tree, "a")
	b := newMockZooKeeperLock(t, tree, "b")

	require.NoError(t, a.Lock(ctxTimeout(t, time.Second)))
	res := lockAsync(ctxTimeout(t, 5*time.Second), b)
	waitForState(t, b, StateWaiting)

	require.True(t, tree.ExpireOwner(a.Marker()))

	select {
	case err := <-res:
		assert.Nil(t, err)
	case <-time.After(time.Second):
		t.Fatal("Waiter never acquired the lock")
	}

	select {
	case <-a.Lost():
	case <-time.After(time.Second):
		t.Fatal("Expected the crashed holder's session to be lost")
	}

	assert.Equal(t, ErrSessionLost, a.Unlock(context.Background()))
	assert.Equal(t, StateHeld, b.State())
}

// A locks before B; B is only granted the lock after A unlocks.
func TestLockHandoff(t *testing.T) {
	tree := memstore.New()
	a := newMockZooKeeperLock(t, tree, "a")
	b := newMockZooKeeperLock(t, tree, "b")

	require.NoError(t, a.Lock(ctxTimeout(t, time.Second)))
	res := lockAsync(ctxTimeout(t, 5*time.Second), b)
	waitForState(t, b, StateWaiting)

	select {
	case err := <-res:
		t.Fatalf("B acquired while A held the lock: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, a.Unlock(context.Background()))

	select {
	case err := <-res:
		assert.Nil(t, err)
	case <-time.After(time.Second):
		t.Fatal("B never acquired the lock")
	}
}

func TestFIFO(t *testing.T) {
	tree := memstore.New()
	gate := newMockZooKeeperLock(t, tree, "gate")
	require.NoError(t, gate.Lock(ctxTimeout(t, time.Second)))

	const n = 6
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		lock := newMockZooKeeperLock(t, tree, fmt.Sprintf("w%d", i))
		wg.Add(1)
		go func(i int, lock *ZooKeeperLock) {
			defer wg.Done()
			if err := lock.Lock(ctxTimeout(t, 5*time.Second)); err != nil {
				t.Errorf("lock %d: %s", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			lock.Unlock(context.Background())
		}(i, lock)
		// Enqueue strictly one after another.
		waitForState(t, lock, StateWaiting)
	}

	require.NoError(t, gate.Unlock(context.Background()))
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, order)
}

func TestMutualExclusion(t *testing.T) {
	tree := memstore.New()

	const (
		clients    = 8
		iterations = 5
	)

	var holders, maxHolders, acquired int32
	var wg sync.WaitGroup

	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				lock, err := NewZooKeeperLockWithDialer(ZooKeeperLockConfig{
					Address: "memstore",
					Path:    testLockPath,
					Label:   fmt.Sprintf("client%d", c),
					Logger:  discardLogger,
				}, tree.Dial)
				if err != nil {
					t.Error(err)
					return
				}

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				err = lock.Lock(ctx)
				cancel()
				if err != nil {
					t.Error(err)
					return
				}

				h := atomic.AddInt32(&holders, 1)
				for {
					m := atomic.LoadInt32(&maxHolders)
					if h <= m || atomic.CompareAndSwapInt32(&maxHolders, m, h) {
						break
					}
				}
				atomic.AddInt32(&acquired, 1)
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&holders, -1)

				if err := lock.Unlock(context.Background()); err != nil {
					t.Error(err)
				}
			}
		}(c)
	}

	wg.Wait()

	assert.Equal(t, int32(1), maxHolders)
	assert.Equal(t, int32(clients*iterations), acquired)
	assert.Empty(t, tree.Paths(testLockPath))
}

func TestNewZooKeeperLockValidation(t *testing.T) {
	tree := memstore.New()

	for _, cfg := range []ZooKeeperLockConfig{
		{Path: "/locks"},
		{Address: "memstore", Path: "locks"},
		{Address: "memstore", Path: "/"},
		{Address: "memstore", Path: "/locks/"},
		{Address: "memstore", Path: "/locks", Label: "a/b"},
	} {
		_, err := NewZooKeeperLockWithDialer(cfg, tree.Dial)
		assert.Error(t, err, "%+v", cfg)
	}
}

func TestNewZooKeeperLockConnectionTimeout(t *testing.T) {
	tree := memstore.New()
	tree.SetReachable(false)

	_, err := NewZooKeeperLockWithDialer(ZooKeeperLockConfig{
		Address:        "memstore",
		Path:           testLockPath,
		ConnectTimeout: 20 * time.Millisecond,
		Logger:         discardLogger,
	}, tree.Dial)

	var cerr *ConnectionError
	assert.True(t, errors.As(err, &cerr))
	assert.True(t, errors.Is(err, ErrConnectionTimeout))
}
