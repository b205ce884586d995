// Package datadog implements
// a lockevents Handler.
package datadog

import (
	"github.com/DataDog/zklock/lockevents"

	dd "github.com/zorkian/go-datadog-api"
)

// Config holds Handler
// configuration parameters.
type Config struct {
	// Datadog API key.
	APIKey string
	// Datadog app key.
	AppKey string
	// Host is attached to every event.
	Host string
}

type ddHandler struct {
	c    *dd.Client
	host string
}

// NewHandler takes a *Config and
// returns a Handler, along with
// any credential validation errors.
func NewHandler(c *Config) (lockevents.Handler, error) {
	client := dd.NewClient(c.APIKey, c.AppKey)

	// Validate.
	ok, err := client.Validate()
	if err != nil {
		return nil, &lockevents.APIError{
			Request: "validate credentials",
			Message: err.Error(),
		}
	}

	if !ok {
		return nil, &lockevents.APIError{
			Request: "validate credentials",
			Message: "invalid API or app key",
		}
	}

	return &ddHandler{c: client, host: c.Host}, nil
}

// PostEvent posts an event to the
// Datadog API.
func (h *ddHandler) PostEvent(e *lockevents.Event) error {
	if _, err := h.c.PostEvent(ddEvent(e, h.host)); err != nil {
		return &lockevents.APIError{
			Request: "post event",
			Message: err.Error(),
		}
	}

	return nil
}

// ddEvent converts a *lockevents.Event
// to a *dd.Event.
func ddEvent(e *lockevents.Event, host string) *dd.Event {
	m := &dd.Event{
		Title: &e.Title,
		Text:  &e.Text,
		Tags:  e.Tags,
	}

	if e.AlertType != "" {
		m.AlertType = &e.AlertType
	}

	if host != "" {
		m.Host = &host
	}

	return m
}
