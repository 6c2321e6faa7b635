package mediate

import (
	"fmt"
	"reflect"
)

// AnyRequest is the untyped view of a Request. It is what transports and
// the handler registry see when the response type is not known statically.
type AnyRequest interface {
	ResponseType() reflect.Type
}

// Request is a value describing one operation whose handler produces a T.
// A type becomes a Request[T] by embedding Returns[T]:
//
//	type Ping struct {
//		mediate.Returns[string]
//		Message string
//	}
type Request[T any] interface {
	AnyRequest
	expects(T)
}

// Returns marks the embedding type as a Request[T].
type Returns[T any] struct{}

// ResponseType reports T.
func (Returns[T]) ResponseType() reflect.Type { return reflect.TypeFor[T]() }

func (Returns[T]) expects(T) {}

// Void marks a request whose handler produces no value.
type Void = Returns[Unit]

// Key identifies a handler binding: the concrete request type and the
// response type it is dispatched for.
type Key struct {
	Request  reflect.Type
	Response reflect.Type
}

// KeyOf returns the binding key of Handler[Req, Resp].
func KeyOf[Req Request[Resp], Resp any]() Key {
	return Key{Request: reflect.TypeFor[Req](), Response: reflect.TypeFor[Resp]()}
}

func (k Key) String() string {
	return fmt.Sprintf("%s -> %s", typeName(k.Request), typeName(k.Response))
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
