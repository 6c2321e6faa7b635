// Package registry discovers request handlers from an explicit list of
// modules.
//
// A Module names a set of handler constructors. Scan inspects the concrete
// type each constructor returns and records one Registration for every
// exported method that has a handler shape:
//
//	func (h *T) HandleX(ctx context.Context, req R) (Resp, error) // R embeds mediate.Returns[Resp]
//	func (h *T) HandleY(ctx context.Context, req V) error         // V embeds mediate.Void
//
// Method names must start with "Handle". One type may handle several
// request types. The registry only reports what it finds; binding the
// registrations into a resolver is the caller's job (see package container).
package registry
