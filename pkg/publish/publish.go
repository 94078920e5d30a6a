// Package publish sends a recognized plate and its image to remote storage.
package publish

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when the destination is not configured.
	ErrNotConfigured = errors.New("publish: destination URL not configured")
	// ErrDisabled is returned by Disabled; callers treat it as "not attempted".
	ErrDisabled = errors.New("publish: disabled")
)

// Submission is what gets published for one upload.
type Submission struct {
	Text     string
	FilePath string
	FileName string
}

// Result is the interpreted response of the remote side.
type Result struct {
	Success    bool
	URL        string
	StatusCode int
	Raw        string
}

// Publisher stores a submission remotely and reports where it ended up.
type Publisher interface {
	Publish(ctx context.Context, sub Submission) (*Result, error)
}

// TransportError reports a network failure or a non-2xx response.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServiceError reports a 2xx response that signalled failure.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return "remote error: " + e.Message
}

// Disabled is a Publisher that never publishes.
type Disabled struct{}

func (Disabled) Publish(context.Context, Submission) (*Result, error) {
	return nil, ErrDisabled
}
