package ocr

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when no API key is available for the OCR service.
var ErrNotConfigured = errors.New("ocr: api key not configured")

// TransportError reports a failed exchange with the OCR service: a network
// error or a non-2xx status.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ocr request failed: HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("ocr request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServiceError reports an error the OCR service returned in its response body.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return "OCR.Space error: " + e.Message
}
