package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gogogo1024/mediate"
)

var (
	// ErrInvalidConstructor indicates a Module entry that is not a func() H.
	ErrInvalidConstructor = errors.New("registry: invalid constructor")

	// ErrAmbiguousHandler indicates a type with two methods for the same key.
	ErrAmbiguousHandler = errors.New("registry: ambiguous handler")

	// ErrInstanceMismatch indicates an instance of another type than the
	// registration's handler type.
	ErrInstanceMismatch = errors.New("registry: instance type mismatch")
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
	requestType = reflect.TypeFor[mediate.AnyRequest]()
	unitType    = reflect.TypeFor[mediate.Unit]()
)

// Module is a named, finite list of handler constructors. Every entry must
// be a func() H; H is the handler type that gets scanned.
type Module struct {
	Name         string
	Constructors []any
}

// Registration is one (request type, response type, handler type) triple
// found by Scan.
type Registration struct {
	Module   string
	Request  reflect.Type
	Response reflect.Type
	Handler  reflect.Type
	Method   string
	// Void is set when the method has the error-only shape; Response is
	// then mediate.Unit.
	Void bool

	ctor reflect.Value
}

// Key returns the binding key of the registration.
func (r Registration) Key() mediate.Key {
	return mediate.Key{Request: r.Request, Response: r.Response}
}

func (r Registration) String() string {
	return fmt.Sprintf("%s: %s.%s handles %s", r.Module, r.Handler, r.Method, r.Key())
}

// New calls the constructor and returns a fresh handler instance.
func (r Registration) New() any {
	return r.ctor.Call(nil)[0].Interface()
}

// Invoker binds the registration's method to instance.
func (r Registration) Invoker(instance any) (mediate.Invoker, error) {
	iv := reflect.ValueOf(instance)
	if !iv.IsValid() || iv.Type() != r.Handler {
		return nil, fmt.Errorf("%w: got %T, want %s", ErrInstanceMismatch, instance, r.Handler)
	}
	fn := iv.MethodByName(r.Method)
	reqType, respType, void := r.Request, r.Response, r.Void

	return mediate.InvokerFunc(func(ctx context.Context, req any) (any, error) {
		rv := reflect.ValueOf(req)
		if !rv.IsValid() || rv.Type() != reqType {
			return nil, &mediate.DispatchError{
				Kind:         mediate.ErrHandlerContractViolation,
				RequestType:  fmt.Sprintf("%T", req),
				ResponseType: respType.String(),
				Detail:       "handler accepts " + reqType.String(),
			}
		}
		cv := reflect.Zero(contextType)
		if ctx != nil {
			cv = reflect.ValueOf(ctx)
		}
		out := fn.Call([]reflect.Value{cv, rv})
		if void {
			if err := asError(out[0]); err != nil {
				return nil, err
			}
			return mediate.Unit{}, nil
		}
		if err := asError(out[1]); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}), nil
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// Scan returns the registrations of every handler method found in modules,
// in module order and then method name order. A module without handlers
// contributes nothing and is not an error.
func Scan(modules ...Module) ([]Registration, error) {
	var out []Registration
	for _, mod := range modules {
		for i, c := range mod.Constructors {
			regs, err := scanConstructor(mod.Name, c)
			if err != nil {
				return nil, fmt.Errorf("module %q entry %d: %w", mod.Name, i, err)
			}
			out = append(out, regs...)
		}
	}
	return out, nil
}

func scanConstructor(module string, c any) ([]Registration, error) {
	cv := reflect.ValueOf(c)
	if !cv.IsValid() || cv.Kind() != reflect.Func || cv.IsNil() {
		return nil, fmt.Errorf("%w: %T is not a func", ErrInvalidConstructor, c)
	}
	ct := cv.Type()
	if ct.NumIn() != 0 || ct.NumOut() != 1 {
		return nil, fmt.Errorf("%w: %s must be func() H", ErrInvalidConstructor, ct)
	}

	h := ct.Out(0)
	if h.Kind() == reflect.Interface {
		// Abstract: nothing to scan.
		return nil, nil
	}

	var regs []Registration
	seen := make(map[mediate.Key]string)
	for i := 0; i < h.NumMethod(); i++ {
		m := h.Method(i)
		if !strings.HasPrefix(m.Name, "Handle") {
			continue
		}
		req, resp, void, ok := handlerShape(m.Type)
		if !ok {
			continue
		}
		key := mediate.Key{Request: req, Response: resp}
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %s.%s and %s.%s both handle %s", ErrAmbiguousHandler, h, prev, h, m.Name, key)
		}
		seen[key] = m.Name
		regs = append(regs, Registration{
			Module:   module,
			Request:  req,
			Response: resp,
			Handler:  h,
			Method:   m.Name,
			Void:     void,
			ctor:     cv,
		})
	}
	return regs, nil
}

// handlerShape matches a method type (receiver first) against the handler
// contracts. The request parameter must be a concrete request type whose
// declared response agrees with the method's result.
func handlerShape(ft reflect.Type) (req, resp reflect.Type, void, ok bool) {
	if ft.NumIn() != 3 || ft.In(1) != contextType {
		return nil, nil, false, false
	}
	req = ft.In(2)
	if req.Kind() == reflect.Interface || !req.Implements(requestType) {
		return nil, nil, false, false
	}
	declared := declaredResponse(req)

	switch {
	case ft.NumOut() == 2 && ft.Out(1) == errorType && ft.Out(0) == declared:
		return req, declared, false, true
	case ft.NumOut() == 1 && ft.Out(0) == errorType && declared == unitType:
		return req, unitType, true, true
	}
	return nil, nil, false, false
}

func declaredResponse(req reflect.Type) reflect.Type {
	var v reflect.Value
	if req.Kind() == reflect.Pointer {
		v = reflect.New(req.Elem())
	} else {
		v = reflect.New(req).Elem()
	}
	return v.Interface().(mediate.AnyRequest).ResponseType()
}
