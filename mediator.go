package mediate

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

// Mediator routes a request to the single handler bound for its concrete
// type and response type. It holds no mutable state and is safe for
// concurrent use when its Resolver is.
type Mediator struct {
	resolver Resolver
	logger   *slog.Logger
}

// Option configures a Mediator.
type Option func(*Mediator)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mediator) {
		if l != nil {
			m.logger = l
		}
	}
}

// New returns a Mediator resolving handlers through r.
func New(r Resolver, opts ...Option) *Mediator {
	if r == nil {
		panic("mediate: nil resolver")
	}
	m := &Mediator{resolver: r, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send dispatches req to the handler bound for (dynamic type of req, T)
// and returns its response. Handler errors are returned unchanged; ctx is
// passed to the handler as is.
func Send[T any](ctx context.Context, m *Mediator, req Request[T]) (T, error) {
	var zero T
	respType := reflect.TypeFor[T]()
	if isNil(req) {
		return zero, m.invalid(respType)
	}
	res, err := m.invoke(ctx, req, respType)
	if err != nil {
		return zero, err
	}
	if res == nil && nilable(respType) {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, m.violation(ctx, reflect.TypeOf(req), respType, res)
	}
	return v, nil
}

// SendVoid dispatches a request whose handler produces no value.
func (m *Mediator) SendVoid(ctx context.Context, req Request[Unit]) (Unit, error) {
	return Send[Unit](ctx, m, req)
}

// SendAny dispatches a request whose response type is only known at run
// time. The result is assignable to req.ResponseType().
func (m *Mediator) SendAny(ctx context.Context, req AnyRequest) (any, error) {
	if isNil(req) {
		return nil, m.invalid(nil)
	}
	respType := req.ResponseType()
	if respType == nil {
		return nil, &DispatchError{
			Kind:        ErrInvalidArgument,
			RequestType: typeName(reflect.TypeOf(req)),
			Detail:      "request declares no response type",
		}
	}
	res, err := m.invoke(ctx, req, respType)
	if err != nil {
		return nil, err
	}
	if res == nil {
		if nilable(respType) {
			return reflect.Zero(respType).Interface(), nil
		}
		return nil, m.violation(ctx, reflect.TypeOf(req), respType, res)
	}
	if !reflect.TypeOf(res).AssignableTo(respType) {
		return nil, m.violation(ctx, reflect.TypeOf(req), respType, res)
	}
	return res, nil
}

// invoke resolves the handler for (dynamic type of req, respType) and
// calls it. The handler reference does not outlive the call.
func (m *Mediator) invoke(ctx context.Context, req any, respType reflect.Type) (any, error) {
	key := Key{Request: reflect.TypeOf(req), Response: respType}
	inv, ok := m.resolver.Resolve(key)
	if !ok || inv == nil {
		err := &DispatchError{
			Kind:         ErrHandlerNotFound,
			RequestType:  typeName(key.Request),
			ResponseType: typeName(respType),
		}
		m.logger.WarnContext(ctx, "no handler registered", "request", typeName(key.Request), "response", typeName(respType))
		return nil, err
	}
	res, err := inv.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	m.logger.DebugContext(ctx, "request dispatched", "key", key.String())
	return res, nil
}

func (m *Mediator) invalid(respType reflect.Type) error {
	err := &DispatchError{Kind: ErrInvalidArgument, Detail: "nil request"}
	if respType != nil {
		err.ResponseType = typeName(respType)
	}
	return err
}

func (m *Mediator) violation(ctx context.Context, reqType, respType reflect.Type, res any) error {
	m.logger.WarnContext(ctx, "handler returned unexpected response type",
		"request", typeName(reqType), "want", typeName(respType), "got", fmt.Sprintf("%T", res))
	return &DispatchError{
		Kind:         ErrHandlerContractViolation,
		RequestType:  typeName(reqType),
		ResponseType: typeName(respType),
		Detail:       fmt.Sprintf("handler returned %T", res),
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
