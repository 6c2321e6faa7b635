package mediate

import (
	"context"
	"reflect"
)

// Handler handles requests of type Req and produces a Resp.
type Handler[Req Request[Resp], Resp any] interface {
	Handle(ctx context.Context, req Req) (Resp, error)
}

// VoidHandler handles requests that produce no value.
type VoidHandler[Req Request[Unit]] interface {
	Handle(ctx context.Context, req Req) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc[Req Request[Resp], Resp any] func(context.Context, Req) (Resp, error)

func (f HandlerFunc[Req, Resp]) Handle(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// VoidHandlerFunc adapts a function to the VoidHandler interface.
type VoidHandlerFunc[Req Request[Unit]] func(context.Context, Req) error

func (f VoidHandlerFunc[Req]) Handle(ctx context.Context, req Req) error {
	return f(ctx, req)
}

// AsHandler exposes a VoidHandler through the Handler contract at Unit.
func AsHandler[Req Request[Unit]](h VoidHandler[Req]) Handler[Req, Unit] {
	return HandlerFunc[Req, Unit](func(ctx context.Context, req Req) (Unit, error) {
		return Unit{}, h.Handle(ctx, req)
	})
}

// Invoker is a type-erased handler as stored by resolvers.
type Invoker interface {
	Invoke(ctx context.Context, req any) (any, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req any) (any, error)

func (f InvokerFunc) Invoke(ctx context.Context, req any) (any, error) {
	return f(ctx, req)
}

// Erase wraps h as an Invoker. The request is type-checked on every call;
// a value of another type yields ErrHandlerContractViolation.
func Erase[Req Request[Resp], Resp any](h Handler[Req, Resp]) Invoker {
	return InvokerFunc(func(ctx context.Context, req any) (any, error) {
		typed, ok := req.(Req)
		if !ok {
			return nil, &DispatchError{
				Kind:         ErrHandlerContractViolation,
				RequestType:  typeName(reflect.TypeOf(req)),
				ResponseType: typeName(reflect.TypeFor[Resp]()),
				Detail:       "handler accepts " + typeName(reflect.TypeFor[Req]()),
			}
		}
		resp, err := h.Handle(ctx, typed)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
}

// EraseVoid wraps a VoidHandler as an Invoker producing Unit.
func EraseVoid[Req Request[Unit]](h VoidHandler[Req]) Invoker {
	return Erase(AsHandler(h))
}
