package lockevents

import (
	"fmt"
)

// APIError wraps event
// backend errors.
type APIError struct {
	Request string
	Message string
}

// Error implements the error
// interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("API error [%s]: %s", e.Request, e.Message)
}
