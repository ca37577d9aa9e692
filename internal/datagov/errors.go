package datagov

import "fmt"

// TransportError reports that the upstream request did not complete.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "upstream request: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx upstream response. Body holds the full
// response text.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

// FormatError reports a successful upstream response whose content type is
// not JSON. Body is truncated to maxFormatBody bytes.
type FormatError struct {
	ContentType string
	Body        string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("upstream returned non-JSON content type %q", e.ContentType)
}
