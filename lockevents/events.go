package lockevents

import (
	"fmt"
	"log"
	"time"

	"github.com/DataDog/zklock/cluster"
)

// EventGenerator wraps a channel
// where *Event are written
// to along with any defaults, such as
// tags.
type EventGenerator struct {
	c           chan<- *Event
	tags        []string
	titlePrefix string
}

// NewEventGenerator returns an EventGenerator
// writing to c.
func NewEventGenerator(c chan<- *Event, titlePrefix string, tags []string) *EventGenerator {
	return &EventGenerator{
		c:           c,
		tags:        tags,
		titlePrefix: titlePrefix,
	}
}

// Write takes an event title and message string
// and writes an info *Event to the event channel,
// formatted with the configured title and tags.
func (e *EventGenerator) Write(t string, m string) {
	e.write(t, m, AlertInfo)
}

// WriteAlert is Write with an explicit alert type.
func (e *EventGenerator) WriteAlert(t string, m string, alertType string) {
	e.write(t, m, alertType)
}

func (e *EventGenerator) write(t, m, alertType string) {
	e.c <- &Event{
		Title:     fmt.Sprintf("[%s] %s", e.titlePrefix, t),
		Text:      m,
		AlertType: alertType,
		Tags:      e.tags,
	}
}

// Writer reads from a channel of
// *Event and writes them to the
// Handler. Errors are logged and
// do not affect progression. Writer
// returns once c is closed.
func Writer(h Handler, c <-chan *Event) {
	for e := range c {
		err := h.PostEvent(e)
		if err != nil {
			log.Printf("Error writing event: %s\n", err)
		}
	}
}

// Observer writes lock lifecycle
// events. It implements zookeeper.Observer.
type Observer struct {
	g     *EventGenerator
	lock  string
	owner string
}

// NewObserver returns an Observer for the lock
// at path lock held by owner.
func NewObserver(g *EventGenerator, lock, owner string) *Observer {
	return &Observer{g: g, lock: lock, owner: owner}
}

// SessionState implements zookeeper.Observer. Session
// transitions are surfaced through lock failures.
func (o *Observer) SessionState(cluster.SessionState) {}

// Acquired implements zookeeper.Observer.
func (o *Observer) Acquired(wait time.Duration) {
	o.g.WriteAlert("lock acquired",
		fmt.Sprintf("%s acquired %s after waiting %s", o.owner, o.lock, wait.Round(time.Millisecond)),
		AlertSuccess)
}

// Released implements zookeeper.Observer.
func (o *Observer) Released(held time.Duration) {
	o.g.Write("lock released",
		fmt.Sprintf("%s released %s after holding it for %s", o.owner, o.lock, held.Round(time.Millisecond)))
}

// Lost implements zookeeper.Observer.
func (o *Observer) Lost(held time.Duration) {
	o.g.WriteAlert("lock lost",
		fmt.Sprintf("%s lost %s after holding it for %s", o.owner, o.lock, held.Round(time.Millisecond)),
		AlertWarning)
}

// Failed implements zookeeper.Observer.
func (o *Observer) Failed(err error) {
	o.g.WriteAlert("lock failed",
		fmt.Sprintf("%s failed to lock %s: %s", o.owner, o.lock, err),
		AlertError)
}
