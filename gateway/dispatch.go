package gateway

import (
	"context"
	"errors"
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/gogogo1024/mediate"
	"github.com/gogogo1024/mediate/internal/ctxlog"
	"github.com/gogogo1024/mediate/protocol"
)

// ErrorBody is the JSON payload of a non-OK response.
type ErrorBody struct {
	Error string `json:"error"`
}

var unitType = reflect.TypeFor[mediate.Unit]()

// dispatcher turns one request message into one response message.
type dispatcher struct {
	router *Router
	scopes ScopeFactory
}

func (d *dispatcher) dispatch(ctx context.Context, in *protocol.Message) *protocol.Message {
	req, err := d.router.decode(in.Command, in.Payload)
	if err != nil {
		return d.failure(ctx, in, err)
	}

	logger := ctxlog.FromContext(ctx).With("command", in.Command, "request_id", in.RequestID)
	scope := d.scopes()
	res, err := mediate.New(scope, mediate.WithLogger(logger)).SendAny(ctx, req)
	if cerr := scope.Close(); cerr != nil {
		logger.Warn("Closing request scope failed.", "error", cerr)
	}
	if err != nil {
		return d.failure(ctx, in, err)
	}

	out := reply(in, protocol.StatusOK)
	if req.ResponseType() == unitType {
		return out
	}
	if out.Payload, err = sonic.Marshal(res); err != nil {
		return d.failure(ctx, in, err)
	}
	return out
}

func (d *dispatcher) failure(ctx context.Context, in *protocol.Message, err error) *protocol.Message {
	status := statusOf(err)
	ctxlog.FromContext(ctx).Debug("Request failed.",
		"command", in.Command, "request_id", in.RequestID, "status", status.String(), "error", err)

	out := reply(in, status)
	out.Payload, _ = sonic.Marshal(ErrorBody{Error: err.Error()})
	return out
}

func reply(in *protocol.Message, status protocol.Status) *protocol.Message {
	return &protocol.Message{Command: in.Command, RequestID: in.RequestID, Status: status}
}

func statusOf(err error) protocol.Status {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return protocol.StatusNotFound
	case errors.Is(err, ErrBadPayload):
		return protocol.StatusBadRequest
	case errors.Is(err, errRateLimited):
		return protocol.StatusUnavailable
	case errors.Is(err, errResponseTooLarge):
		return protocol.StatusHandlerError
	default:
		return protocol.StatusOf(err)
	}
}
