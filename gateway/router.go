package gateway

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gogogo1024/mediate"
)

var (
	ErrUnknownCommand = errors.New("gateway: unknown command")
	ErrBadPayload     = errors.New("gateway: bad payload")
)

var anyRequestType = reflect.TypeFor[mediate.AnyRequest]()

// Router maps wire command ids to request types.
// It is safe for concurrent use.
type Router struct {
	mu    sync.RWMutex
	types map[uint16]reflect.Type
}

func NewRouter() *Router {
	return &Router{types: make(map[uint16]reflect.Type)}
}

// Route binds cmd to the request type Req. It panics if cmd is already
// routed.
func Route[Req mediate.Request[Resp], Resp any](r *Router, cmd uint16) {
	r.RouteAny(cmd, reflect.TypeFor[Req]())
}

// RouteAny binds cmd to t, which must implement mediate.AnyRequest.
func (r *Router) RouteAny(cmd uint16, t reflect.Type) {
	if t == nil || !t.Implements(anyRequestType) {
		panic(fmt.Sprintf("gateway: %v is not a request type", t))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.types[cmd]; ok {
		panic(fmt.Sprintf("gateway: command 0x%04X already routed to %v", cmd, prev))
	}
	r.types[cmd] = t
}

func (r *Router) Lookup(cmd uint16) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[cmd]
	return t, ok
}

// Commands returns the routed command ids in ascending order.
func (r *Router) Commands() []uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmds := make([]uint16, 0, len(r.types))
	for cmd := range r.types {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })
	return cmds
}

// Key returns the handler binding that frames for cmd dispatch to.
func (r *Router) Key(cmd uint16) (mediate.Key, bool) {
	t, ok := r.Lookup(cmd)
	if !ok {
		return mediate.Key{}, false
	}
	req := requestOf(t, reflect.New(elemOf(t)))
	return mediate.Key{Request: t, Response: req.ResponseType()}, true
}

// decode builds a fresh request value for cmd from a JSON payload.
// An empty payload yields the zero request.
func (r *Router) decode(cmd uint16, payload []byte) (mediate.AnyRequest, error) {
	t, ok := r.Lookup(cmd)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%04X", ErrUnknownCommand, cmd)
	}
	v := reflect.New(elemOf(t))
	if len(payload) > 0 {
		if err := sonic.Unmarshal(payload, v.Interface()); err != nil {
			return nil, fmt.Errorf("%w: %v: %v", ErrBadPayload, elemOf(t), err)
		}
	}
	return requestOf(t, v), nil
}

func elemOf(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

// requestOf views ptr, a *elemOf(t), as a request of type t.
func requestOf(t reflect.Type, ptr reflect.Value) mediate.AnyRequest {
	if t.Kind() == reflect.Pointer {
		return ptr.Interface().(mediate.AnyRequest)
	}
	return ptr.Elem().Interface().(mediate.AnyRequest)
}
