package mediate

// Resolver supplies live handlers by binding key. Implementations must be
// safe for concurrent use.
type Resolver interface {
	Resolve(key Key) (Invoker, bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(key Key) (Invoker, bool)

func (f ResolverFunc) Resolve(key Key) (Invoker, bool) { return f(key) }

// MapResolver is a fixed in-memory Resolver. It must not be written to
// once a Mediator uses it.
type MapResolver map[Key]Invoker

func (r MapResolver) Resolve(key Key) (Invoker, bool) {
	inv, ok := r[key]
	return inv, ok
}

// Bind stores h under its key, replacing any previous binding.
func Bind[Req Request[Resp], Resp any](r MapResolver, h Handler[Req, Resp]) {
	r[KeyOf[Req, Resp]()] = Erase(h)
}

// BindVoid stores a VoidHandler under (Req, Unit).
func BindVoid[Req Request[Unit]](r MapResolver, h VoidHandler[Req]) {
	r[KeyOf[Req, Unit]()] = EraseVoid(h)
}
