package zookeeper

import (
	"time"

	"github.com/DataDog/zklock/cluster"
)

// Logger is satisfied by *log.Logger. It's also handed to the ZooKeeper
// client so that connection logging lands in the same place.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Observer receives lock lifecycle notifications. Calls are made from the
// goroutine calling Lock/Unlock, except SessionState, which is called from
// the session listener.
type Observer interface {
	SessionState(cluster.SessionState)
	// Acquired is called once the lock is held with the time spent from
	// enqueueing to ownership.
	Acquired(wait time.Duration)
	// Released is called on a successful Unlock with the time the lock was
	// held.
	Released(held time.Duration)
	// Lost is called on Unlock when the session ended while the lock was
	// held. held is the time from acquisition to Unlock.
	Lost(held time.Duration)
	// Failed is called when Lock fails, or when Unlock can't remove the
	// marker.
	Failed(error)
}

type nopObserver struct{}

func (nopObserver) SessionState(cluster.SessionState) {}
func (nopObserver) Acquired(time.Duration)            {}
func (nopObserver) Released(time.Duration)            {}
func (nopObserver) Lost(time.Duration)                {}
func (nopObserver) Failed(error)                      {}

// Observers fans notifications out to each member.
type Observers []Observer

func (o Observers) SessionState(s cluster.SessionState) {
	for _, ob := range o {
		ob.SessionState(s)
	}
}

func (o Observers) Acquired(d time.Duration) {
	for _, ob := range o {
		ob.Acquired(d)
	}
}

func (o Observers) Released(d time.Duration) {
	for _, ob := range o {
		ob.Released(d)
	}
}

func (o Observers) Lost(d time.Duration) {
	for _, ob := range o {
		ob.Lost(d)
	}
}

func (o Observers) Failed(err error) {
	for _, ob := range o {
		ob.Failed(err)
	}
}
