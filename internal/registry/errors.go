package registry

import "fmt"

// LookupError is returned for any failed registry call: transport, HTTP status or body.
type LookupError struct {
	Postcode   string
	DoorNumber string
	StatusCode int // 0 when no response was received
	Err        error
}

// Error implements the error interface
func (e *LookupError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("registry lookup %q/%q: status %d: %v", e.DoorNumber, e.Postcode, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("registry lookup %q/%q: %v", e.DoorNumber, e.Postcode, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *LookupError) Unwrap() error {
	return e.Err
}
