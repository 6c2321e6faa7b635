// Package mediate is an in-process request/response dispatcher.
//
// A request declares its response type by embedding Returns[T]; a handler
// for it implements Handler[Req, T]. The Mediator looks the handler up by
// the request's dynamic type and T through a Resolver, invokes it and
// returns its response unchanged:
//
//	type Ping struct {
//		mediate.Returns[string]
//		Message string
//	}
//
//	r := mediate.MapResolver{}
//	mediate.Bind[Ping, string](r, pingHandler{})
//	m := mediate.New(r)
//	out, err := mediate.Send[string](ctx, m, Ping{Message: "Hello"})
//
// Requests without a result embed Void and are sent with SendVoid, which
// is Send at Unit.
//
// Handler discovery lives in package registry; a scoped container that
// implements Resolver lives in package container.
package mediate
