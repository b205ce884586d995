// Package lockevents posts lock lifecycle
// events to supported event backends.
package lockevents

// Handler posts events.
type Handler interface {
	PostEvent(*Event) error
}

// Alert types.
const (
	AlertInfo    = "info"
	AlertSuccess = "success"
	AlertWarning = "warning"
	AlertError   = "error"
)

// Event is used to post lock
// events to the backend system.
type Event struct {
	Title     string
	Text      string
	AlertType string
	Tags      []string
}
