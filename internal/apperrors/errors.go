// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotModified is returned by a conditional fetch when the supplied
// validator still matches and the server sent no body.
var ErrNotModified = errors.New("remote content not modified")

// RemoteError is a failed remote API call. Message carries the remote's own
// error text when it could be extracted, otherwise a generic status-based
// description.
type RemoteError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote API error (status %d)", e.StatusCode)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ErrInvalidRepoFormat is returned when a repository string in the config is
// not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}
