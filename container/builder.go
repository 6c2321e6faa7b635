package container

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gogogo1024/mediate"
	"github.com/gogogo1024/mediate/registry"
)

var (
	// ErrDuplicateBinding indicates a key bound twice under DuplicateError.
	ErrDuplicateBinding = errors.New("container: duplicate binding")

	// ErrBuilderSealed indicates a Bind after Build.
	ErrBuilderSealed = errors.New("container: builder already built")

	// ErrContainerClosed indicates a singleton resolved after Close.
	ErrContainerClosed = errors.New("container: closed")
)

// Instance is a live handler produced by a Factory. Value is closed with
// its scope when it implements io.Closer.
type Instance struct {
	Value   any
	Invoker mediate.Invoker
}

// Factory creates one handler instance.
type Factory func() (Instance, error)

type binding struct {
	key      mediate.Key
	lifetime Lifetime
	factory  Factory
	source   string
}

// Builder collects bindings. It is safe for concurrent use until Build.
type Builder struct {
	mu       sync.Mutex
	bindings map[mediate.Key]binding
	sealed   bool

	policy   DuplicatePolicy
	lifetime Lifetime
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithDuplicatePolicy sets the policy for keys bound twice.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(b *Builder) { b.policy = p }
}

// WithDefaultLifetime sets the lifetime used by Provide, ProvideVoid and
// AddModules.
func WithDefaultLifetime(l Lifetime) Option {
	return func(b *Builder) { b.lifetime = l }
}

// WithLogger sets the logger for binding and resolution diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		bindings: make(map[mediate.Key]binding),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind registers f under key.
func (b *Builder) Bind(key mediate.Key, lt Lifetime, f Factory) error {
	return b.bind(key, lt, f, "bind")
}

func (b *Builder) bind(key mediate.Key, lt Lifetime, f Factory, source string) error {
	if key.Request == nil || key.Response == nil || f == nil {
		return fmt.Errorf("container: incomplete binding for %s", key)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrBuilderSealed
	}
	if prev, ok := b.bindings[key]; ok {
		if b.policy == DuplicateError {
			return fmt.Errorf("%w: %s from %s, already bound from %s", ErrDuplicateBinding, key, source, prev.source)
		}
		b.logger.Warn("Replacing handler binding.", "key", key.String(), "previous", prev.source, "source", source)
	}
	b.bindings[key] = binding{key: key, lifetime: lt, factory: f, source: source}
	b.logger.Debug("Bound handler.", "key", key.String(), "lifetime", lt.String(), "source", source)
	return nil
}

// AddModules scans modules and binds every registration found, using the
// default lifetime.
func (b *Builder) AddModules(modules ...registry.Module) error {
	regs, err := registry.Scan(modules...)
	if err != nil {
		return err
	}
	for _, r := range regs {
		if err := b.bind(r.Key(), b.lifetime, registrationFactory(r), r.Module+"/"+r.Handler.String()+"."+r.Method); err != nil {
			return err
		}
	}
	return nil
}

func registrationFactory(r registry.Registration) Factory {
	return func() (Instance, error) {
		v := r.New()
		inv, err := r.Invoker(v)
		if err != nil {
			return Instance{}, err
		}
		return Instance{Value: v, Invoker: inv}, nil
	}
}

// Provide binds the handler built by ctor for (Req, Resp).
func Provide[Req mediate.Request[Resp], Resp any, H mediate.Handler[Req, Resp]](b *Builder, ctor func() H) error {
	key := mediate.KeyOf[Req, Resp]()
	return b.bind(key, b.lifetime, func() (Instance, error) {
		h := ctor()
		return Instance{Value: h, Invoker: mediate.Erase[Req, Resp](h)}, nil
	}, fmt.Sprintf("provide %T", *new(H)))
}

// ProvideVoid binds the void handler built by ctor for (Req, Unit).
func ProvideVoid[Req mediate.Request[mediate.Unit], H mediate.VoidHandler[Req]](b *Builder, ctor func() H) error {
	key := mediate.KeyOf[Req, mediate.Unit]()
	return b.bind(key, b.lifetime, func() (Instance, error) {
		h := ctor()
		return Instance{Value: h, Invoker: mediate.EraseVoid[Req](h)}, nil
	}, fmt.Sprintf("provide %T", *new(H)))
}

// Build seals the builder and returns an immutable Container.
func (b *Builder) Build() *Container {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true

	c := &Container{
		bindings:   make(map[mediate.Key]binding, len(b.bindings)),
		singletons: make(map[mediate.Key]*singleton),
		logger:     b.logger,
	}
	for k, v := range b.bindings {
		c.bindings[k] = v
		c.keys = append(c.keys, k)
		if v.lifetime == Singleton {
			c.singletons[k] = &singleton{}
		}
	}
	sort.Slice(c.keys, func(i, j int) bool { return c.keys[i].String() < c.keys[j].String() })
	return c
}
