package mediate

import "errors"

// Dispatch failure kinds. DispatchError unwraps to one of these.
var (
	// ErrInvalidArgument indicates a nil request.
	ErrInvalidArgument = errors.New("mediate: invalid argument")

	// ErrHandlerNotFound indicates no binding for the request's key.
	ErrHandlerNotFound = errors.New("mediate: no handler registered")

	// ErrHandlerContractViolation indicates the resolved handler did not
	// accept the request or did not produce the expected response type.
	ErrHandlerContractViolation = errors.New("mediate: handler contract violation")
)

// DispatchError describes a failure detected by the Mediator itself.
// Errors returned by handlers are never wrapped in a DispatchError.
type DispatchError struct {
	Kind         error
	RequestType  string
	ResponseType string
	Detail       string
}

func (e *DispatchError) Error() string {
	msg := e.Kind.Error()
	if e.RequestType != "" {
		msg += " for request type " + e.RequestType
	}
	if e.ResponseType != "" {
		msg += " (response " + e.ResponseType + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *DispatchError) Unwrap() error { return e.Kind }
