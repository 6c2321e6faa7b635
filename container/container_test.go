package container_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogogo1024/mediate"
	"github.com/gogogo1024/mediate/container"
	"github.com/gogogo1024/mediate/registry"
	"github.com/stretchr/testify/require"
)

type Ping struct {
	mediate.Returns[string]
	Message string
}

type VoidPing struct {
	mediate.Void
}

type Count struct {
	mediate.Returns[int]
}

// pingHandler reports which instance served the request.
type pingHandler struct {
	id     int64
	closed *atomic.Int64
}

func (h *pingHandler) Handle(_ context.Context, req Ping) (string, error) {
	return "Handled: " + req.Message, nil
}

func (h *pingHandler) HandleCount(context.Context, Count) (int, error) {
	return int(h.id), nil
}

func (h *pingHandler) Close() error {
	if h.closed != nil {
		h.closed.Add(1)
	}
	return nil
}

type voidPingHandler struct{}

func (voidPingHandler) Handle(context.Context, VoidPing) error { return nil }

type countingCtor struct {
	made   atomic.Int64
	closed atomic.Int64
}

func (c *countingCtor) newHandler() *pingHandler {
	return &pingHandler{id: c.made.Add(1), closed: &c.closed}
}

func (c *countingCtor) module() registry.Module {
	return registry.Module{Name: "ping", Constructors: []any{c.newHandler}}
}

func send[T any](t *testing.T, r mediate.Resolver, req mediate.Request[T]) T {
	t.Helper()
	out, err := mediate.Send[T](context.Background(), mediate.New(r), req)
	require.NoError(t, err)
	return out
}

func TestProvideResolvesThroughScope(t *testing.T) {
	b := container.NewBuilder()
	require.NoError(t, container.Provide[Ping, string](b, func() *pingHandler { return &pingHandler{} }))
	require.NoError(t, container.ProvideVoid[VoidPing](b, func() voidPingHandler { return voidPingHandler{} }))
	c := b.Build()

	require.Equal(t, 2, c.Len())
	require.True(t, c.Has(mediate.KeyOf[Ping, string]()))
	require.True(t, c.Has(mediate.KeyOf[VoidPing, mediate.Unit]()))

	scope := c.NewScope()
	defer scope.Close()

	require.Equal(t, "Handled: Hello", send[string](t, scope, Ping{Message: "Hello"}))

	got, err := mediate.New(scope).SendVoid(context.Background(), VoidPing{})
	require.NoError(t, err)
	require.Equal(t, mediate.Unit{}, got)
}

func TestScopedLifetimeSharesInstanceWithinScope(t *testing.T) {
	ctor := &countingCtor{}
	b := container.NewBuilder()
	require.NoError(t, b.AddModules(ctor.module()))
	c := b.Build()

	s1 := c.NewScope()
	first := send[int](t, s1, Count{})
	again := send[int](t, s1, Count{})
	require.Equal(t, first, again)

	s2 := c.NewScope()
	other := send[int](t, s2, Count{})
	require.NotEqual(t, first, other)

	require.NoError(t, s1.Close())
	require.NoError(t, s2.Close())
	require.EqualValues(t, 2, ctor.closed.Load())
}

func TestTransientLifetimeCreatesPerResolve(t *testing.T) {
	ctor := &countingCtor{}
	b := container.NewBuilder(container.WithDefaultLifetime(container.Transient))
	require.NoError(t, b.AddModules(ctor.module()))
	c := b.Build()

	s := c.NewScope()
	a := send[int](t, s, Count{})
	bb := send[int](t, s, Count{})
	require.NotEqual(t, a, bb)

	require.NoError(t, s.Close())
	require.EqualValues(t, 2, ctor.closed.Load())
}

func TestSingletonLifetimeSharesInstanceAcrossScopes(t *testing.T) {
	ctor := &countingCtor{}
	b := container.NewBuilder(container.WithDefaultLifetime(container.Singleton))
	require.NoError(t, b.AddModules(ctor.module()))
	c := b.Build()

	lt, ok := c.Lifetime(mediate.KeyOf[Count, int]())
	require.True(t, ok)
	require.Equal(t, container.Singleton, lt)

	a := send[int](t, c.NewScope(), Count{})
	bb := send[int](t, c.NewScope(), Count{})
	require.Equal(t, a, bb)

	s := c.NewScope()
	_ = send[int](t, s, Count{})
	require.NoError(t, s.Close())
	require.Zero(t, ctor.closed.Load(), "scope must not close singletons")

	require.NoError(t, c.Close())
	require.EqualValues(t, 1, ctor.closed.Load())
}

func TestDuplicateBindingRejectedByDefault(t *testing.T) {
	b := container.NewBuilder()
	require.NoError(t, container.Provide[Ping, string](b, func() *pingHandler { return &pingHandler{} }))

	err := container.Provide[Ping, string](b, func() *pingHandler { return &pingHandler{} })
	require.ErrorIs(t, err, container.ErrDuplicateBinding)
	require.Contains(t, err.Error(), "container_test.Ping -> string")
}

func TestDuplicateBindingReplaceKeepsLast(t *testing.T) {
	b := container.NewBuilder(container.WithDuplicatePolicy(container.DuplicateReplace))
	require.NoError(t, b.AddModules((&countingCtor{}).module()))

	key := mediate.KeyOf[Ping, string]()
	require.NoError(t, b.Bind(key, container.Scoped, func() (container.Instance, error) {
		h := mediate.HandlerFunc[Ping, string](func(context.Context, Ping) (string, error) { return "last", nil })
		return container.Instance{Value: h, Invoker: mediate.Erase[Ping, string](h)}, nil
	}))
	c := b.Build()

	require.Equal(t, "last", send[string](t, c.NewScope(), Ping{}))
}

func TestBindAfterBuildFails(t *testing.T) {
	b := container.NewBuilder()
	_ = b.Build()

	err := container.Provide[Ping, string](b, func() *pingHandler { return &pingHandler{} })
	require.ErrorIs(t, err, container.ErrBuilderSealed)
}

func TestAddModulesPropagatesScanErrors(t *testing.T) {
	b := container.NewBuilder()
	err := b.AddModules(registry.Module{Name: "bad", Constructors: []any{42}})
	require.ErrorIs(t, err, registry.ErrInvalidConstructor)
}

func TestClosedScopeResolvesNothing(t *testing.T) {
	b := container.NewBuilder()
	require.NoError(t, container.Provide[Ping, string](b, func() *pingHandler { return &pingHandler{} }))
	s := b.Build().NewScope()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := mediate.Send[string](context.Background(), mediate.New(s), Ping{})
	require.ErrorIs(t, err, mediate.ErrHandlerNotFound)
}

func TestFactoryErrorSurfacesOnInvoke(t *testing.T) {
	errFactory := errors.New("db unavailable")
	b := container.NewBuilder()
	require.NoError(t, b.Bind(mediate.KeyOf[Ping, string](), container.Scoped, func() (container.Instance, error) {
		return container.Instance{}, errFactory
	}))
	s := b.Build().NewScope()

	_, err := mediate.Send[string](context.Background(), mediate.New(s), Ping{})
	require.ErrorIs(t, err, errFactory)
}

func TestScopeConcurrentResolveCreatesOneInstance(t *testing.T) {
	ctor := &countingCtor{}
	b := container.NewBuilder()
	require.NoError(t, b.AddModules(ctor.module()))
	s := b.Build().NewScope()
	m := mediate.New(s)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mediate.Send[int](context.Background(), m, Count{})
		}()
	}
	wg.Wait()

	// One instance per scoped binding: Ping and Count were both scanned,
	// only Count was resolved.
	require.EqualValues(t, 1, ctor.made.Load())
}

func TestKeysAreSorted(t *testing.T) {
	b := container.NewBuilder()
	require.NoError(t, b.AddModules((&countingCtor{}).module()))
	keys := b.Build().Keys()

	require.Len(t, keys, 2)
	require.Equal(t, "container_test.Count -> int", keys[0].String())
	require.Equal(t, "container_test.Ping -> string", keys[1].String())
}

func TestParseLifetimeAndPolicy(t *testing.T) {
	for in, want := range map[string]container.Lifetime{
		"":          container.Scoped,
		"scoped":    container.Scoped,
		"Transient": container.Transient,
		"singleton": container.Singleton,
	} {
		got, err := container.ParseLifetime(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := container.ParseLifetime("forever")
	require.Error(t, err)

	p, err := container.ParseDuplicatePolicy("replace")
	require.NoError(t, err)
	require.Equal(t, container.DuplicateReplace, p)
	require.Equal(t, "replace", p.String())
	_, err = container.ParseDuplicatePolicy("merge")
	require.Error(t, err)
}

func TestSingletonFactoryFailureIsRetried(t *testing.T) {
	errDown := errors.New("db down")
	var calls atomic.Int64
	b := container.NewBuilder()
	require.NoError(t, b.Bind(mediate.KeyOf[Ping, string](), container.Singleton, func() (container.Instance, error) {
		if calls.Add(1) == 1 {
			return container.Instance{}, errDown
		}
		h := &pingHandler{}
		return container.Instance{Value: h, Invoker: mediate.Erase[Ping, string](h)}, nil
	}))
	c := b.Build()

	_, err := mediate.Send[string](context.Background(), mediate.New(c.NewScope()), Ping{})
	require.ErrorIs(t, err, errDown)

	require.Equal(t, "Handled: again", send[string](t, c.NewScope(), Ping{Message: "again"}))
	require.Equal(t, "Handled: cached", send[string](t, c.NewScope(), Ping{Message: "cached"}))
	require.EqualValues(t, 2, calls.Load())
}

func TestContainerCloseStopsSingletons(t *testing.T) {
	ctor := &countingCtor{}
	b := container.NewBuilder(container.WithDefaultLifetime(container.Singleton))
	require.NoError(t, b.AddModules(ctor.module()))
	c := b.Build()

	_ = send[int](t, c.NewScope(), Count{})
	require.NoError(t, c.Close())
	require.EqualValues(t, 1, ctor.closed.Load())

	_, err := mediate.Send[int](context.Background(), mediate.New(c.NewScope()), Count{})
	require.ErrorIs(t, err, container.ErrContainerClosed)

	require.NoError(t, c.Close())
	require.EqualValues(t, 1, ctor.closed.Load(), "second Close must not close again")
}

func TestContainerCloseConcurrentWithResolve(t *testing.T) {
	ctor := &countingCtor{}
	b := container.NewBuilder(container.WithDefaultLifetime(container.Singleton))
	require.NoError(t, b.AddModules(ctor.module()))
	c := b.Build()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := c.NewScope()
			defer s.Close()
			_, err := mediate.Send[int](context.Background(), mediate.New(s), Count{})
			if err != nil && !errors.Is(err, container.ErrContainerClosed) {
				t.Errorf("Send: %v", err)
			}
		}()
	}
	require.NoError(t, c.Close())
	wg.Wait()

	// A singleton made before Close is closed by it; none is made after.
	require.LessOrEqual(t, ctor.made.Load(), int64(1))
	require.Equal(t, ctor.made.Load(), ctor.closed.Load())
}
