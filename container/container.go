package container

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/gogogo1024/mediate"
)

// Container holds the bindings produced by a Builder. Bindings never
// change after Build. Singleton instances live as long as the Container.
type Container struct {
	bindings   map[mediate.Key]binding
	keys       []mediate.Key
	singletons map[mediate.Key]*singleton
	logger     *slog.Logger
}

// singleton is created on first successful resolve. A failed factory is
// retried by the next resolve.
type singleton struct {
	mu     sync.Mutex
	inst   Instance
	made   bool
	closed bool
}

// Keys returns the bound keys sorted by their string form.
func (c *Container) Keys() []mediate.Key {
	out := make([]mediate.Key, len(c.keys))
	copy(out, c.keys)
	return out
}

// Has reports whether key is bound.
func (c *Container) Has(key mediate.Key) bool {
	_, ok := c.bindings[key]
	return ok
}

// Len returns the number of bindings.
func (c *Container) Len() int { return len(c.bindings) }

// Lifetime returns the lifetime of key's binding.
func (c *Container) Lifetime(key mediate.Key) (Lifetime, bool) {
	b, ok := c.bindings[key]
	return b.lifetime, ok
}

// NewScope starts a unit of work.
func (c *Container) NewScope() *Scope {
	return &Scope{c: c, scoped: make(map[mediate.Key]Instance)}
}

// Close closes singleton instances that implement io.Closer. Resolving a
// singleton afterwards fails with ErrContainerClosed. Close may run
// concurrently with scopes still resolving.
func (c *Container) Close() error {
	var errs []error
	for _, s := range c.singletons {
		s.mu.Lock()
		inst, made := s.inst, s.made
		s.closed, s.made, s.inst = true, false, Instance{}
		s.mu.Unlock()

		if made {
			if cl, ok := inst.Value.(io.Closer); ok {
				errs = append(errs, cl.Close())
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Container) singleton(b binding) (Instance, error) {
	s := c.singletons[b.key]
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Instance{}, ErrContainerClosed
	}
	if !s.made {
		inst, err := b.factory()
		if err != nil {
			return Instance{}, err
		}
		s.inst, s.made = inst, true
	}
	return s.inst, nil
}

// Scope resolves handlers for one unit of work. It implements
// mediate.Resolver and is safe for concurrent use.
type Scope struct {
	c *Container

	mu      sync.Mutex
	scoped  map[mediate.Key]Instance
	tracked []any
	closed  bool
}

var _ mediate.Resolver = (*Scope)(nil)

// Resolve returns the handler bound for key. A factory failure resolves to
// an Invoker that reports the failure, so callers see the cause instead of
// a missing handler. A closed scope resolves nothing.
func (s *Scope) Resolve(key mediate.Key) (mediate.Invoker, bool) {
	b, ok := s.c.bindings[key]
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}

	var (
		inst Instance
		err  error
	)
	switch b.lifetime {
	case Singleton:
		inst, err = s.c.singleton(b)
	case Transient:
		inst, err = b.factory()
		if err == nil {
			s.tracked = append(s.tracked, inst.Value)
		}
	default:
		if cached, hit := s.scoped[key]; hit {
			return cached.Invoker, true
		}
		inst, err = b.factory()
		if err == nil {
			s.scoped[key] = inst
			s.tracked = append(s.tracked, inst.Value)
		}
	}
	if err != nil {
		s.c.logger.Error("Handler factory failed.", "key", key.String(), "error", err)
		return failed(err), true
	}
	return inst.Invoker, true
}

// Close ends the scope and closes the scoped and transient instances it
// created that implement io.Closer. Close is idempotent.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tracked := s.tracked
	s.tracked = nil
	s.scoped = nil
	s.mu.Unlock()

	var errs []error
	for _, v := range tracked {
		if cl, ok := v.(io.Closer); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}

func failed(err error) mediate.Invoker {
	return mediate.InvokerFunc(func(context.Context, any) (any, error) {
		return nil, err
	})
}
