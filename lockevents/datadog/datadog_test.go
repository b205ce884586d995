package datadog

import (
	"testing"

	"github.com/DataDog/zklock/lockevents"

	"github.com/stretchr/testify/assert"
)

func TestDDEvent(t *testing.T) {
	e := &lockevents.Event{
		Title:     "[zklock] lock acquired",
		Text:      "host-a acquired /locks",
		AlertType: lockevents.AlertSuccess,
		Tags:      []string{"name:zklock"},
	}

	m := ddEvent(e, "host-a")
	assert.Equal(t, "[zklock] lock acquired", m.GetTitle())
	assert.Equal(t, "host-a acquired /locks", m.GetText())
	assert.Equal(t, "success", m.GetAlertType())
	assert.Equal(t, "host-a", m.GetHost())
	assert.Equal(t, []string{"name:zklock"}, m.Tags)

	// Unset fields are omitted.
	m = ddEvent(&lockevents.Event{Title: "t"}, "")
	assert.Nil(t, m.AlertType)
	assert.Nil(t, m.Host)
}
