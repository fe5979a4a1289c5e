package classifier

import "fmt"

// TransportError wraps a connection, timeout or protocol error reported by
// the HTTP client.
type TransportError struct {
	Action Action
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Action, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UnexpectedStatusError records a status code outside both the success and
// the expected sets of an action.
type UnexpectedStatusError struct {
	Action     Action
	StatusCode int
	Message    string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s: %s: %d", e.Action, e.Message, e.StatusCode)
}
