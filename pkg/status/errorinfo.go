package status

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorInfo is an error returned on the status API. The message must only
// contain state the caller is allowed to see, never internal details.
type ErrorInfo struct {
	// StatusCode contains the HTTP status code.
	StatusCode int `json:"status_code"`

	// Message contains the error message to return to the caller.
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf(
		"%s (%d): %s",
		strings.ToLower(http.StatusText(e.StatusCode)),
		e.StatusCode,
		e.Message,
	)
}
