package services

import "fmt"

// TransientFetchError wraps a failed read of remote state. The cached value,
// if any, is kept and retried by the next sweep or user action.
type TransientFetchError struct {
	Op  string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// ActionError wraps a failed operator action such as a policy save or a
// run-now. Local state is left as it was before the action.
type ActionError struct {
	Op  string
	Err error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }
