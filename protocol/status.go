package protocol

import (
	"errors"
	"fmt"

	"github.com/gogogo1024/mediate"
)

// Status is the outcome carried by a response message. Requests carry
// StatusOK.
type Status uint8

const (
	StatusOK Status = iota
	StatusBadRequest
	StatusNotFound
	StatusContractViolation
	StatusHandlerError
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadRequest:
		return "bad_request"
	case StatusNotFound:
		return "not_found"
	case StatusContractViolation:
		return "contract_violation"
	case StatusHandlerError:
		return "handler_error"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// StatusOf maps a dispatch error to the status reported to the peer.
// Errors that are not dispatch errors are the handler's own.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, mediate.ErrInvalidArgument):
		return StatusBadRequest
	case errors.Is(err, mediate.ErrHandlerNotFound):
		return StatusNotFound
	case errors.Is(err, mediate.ErrHandlerContractViolation):
		return StatusContractViolation
	default:
		return StatusHandlerError
	}
}
