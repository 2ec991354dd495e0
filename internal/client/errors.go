package client

import (
	"errors"
	"fmt"
)

// APIError is a rejection from the Orate server carrying the HTTP status.
type APIError struct {
	Status  int
	Message string
}

// Error formats the rejection for logs and UI.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server rejected request (status %d)", e.Status)
	}
	return fmt.Sprintf("server rejected request (status %d): %s", e.Status, e.Message)
}

// IsServerRejected reports whether err is a non-2xx response rather than a
// transport-level failure.
func IsServerRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
