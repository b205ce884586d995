package lockevents

import (
	"sync"
)

// Mock mocks the
// Handler interface.
type Mock struct {
	mu     sync.Mutex
	events []*Event
}

// PostEvent mocks the PostEvent function.
func (k *Mock) PostEvent(e *Event) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.events = append(k.events, e)
	return nil
}

// Events returns all posted events.
func (k *Mock) Events() []*Event {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]*Event(nil), k.events...)
}
