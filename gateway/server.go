package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gogogo1024/mediate"
	"github.com/gogogo1024/mediate/container"
	"github.com/gogogo1024/mediate/internal/ctxlog"
)

const (
	DefaultAddr         = ":9000"
	DefaultIdleTimeout  = 5 * time.Minute
	DefaultWriteTimeout = 10 * time.Second

	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

var (
	ErrNilRouter = errors.New("gateway: router is required")
	ErrNoScopes  = errors.New("gateway: scope factory is required")
)

// Scope is the unit of work one request is resolved in.
type Scope interface {
	mediate.Resolver
	Close() error
}

// ScopeFactory opens a Scope per request.
type ScopeFactory func() Scope

// ContainerScopes opens a fresh container scope per request.
func ContainerScopes(c *container.Container) ScopeFactory {
	return func() Scope { return c.NewScope() }
}

type staticScope struct{ mediate.Resolver }

func (staticScope) Close() error { return nil }

type serveOptions struct {
	addr         string
	idleTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger
	scopes       ScopeFactory
}

type ServeOption func(*serveOptions)

func WithAddr(addr string) ServeOption {
	return func(o *serveOptions) { o.addr = addr }
}

// WithIdleTimeout sets how long a connection may stay silent between
// frames. Zero disables the read deadline.
func WithIdleTimeout(d time.Duration) ServeOption {
	return func(o *serveOptions) { o.idleTimeout = d }
}

// WithWriteTimeout bounds writing one response. Zero disables it.
func WithWriteTimeout(d time.Duration) ServeOption {
	return func(o *serveOptions) { o.writeTimeout = d }
}

func WithLogger(l *slog.Logger) ServeOption {
	return func(o *serveOptions) { o.logger = l }
}

func WithScopes(f ScopeFactory) ServeOption {
	return func(o *serveOptions) { o.scopes = f }
}

// WithResolver serves every request from r without a per-request scope.
func WithResolver(r mediate.Resolver) ServeOption {
	return func(o *serveOptions) {
		o.scopes = func() Scope { return staticScope{r} }
	}
}

func buildOptions(opts []ServeOption) serveOptions {
	o := serveOptions{
		idleTimeout:  DefaultIdleTimeout,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// normalizeAddr picks the listen address: an explicit addr wins over
// WithAddr, and DefaultAddr applies when neither is set.
func normalizeAddr(addr string, opts []ServeOption) string {
	if addr != "" {
		return addr
	}
	if o := buildOptions(opts); o.addr != "" {
		return o.addr
	}
	return DefaultAddr
}

func nextAcceptBackoff(cur time.Duration) time.Duration {
	if cur <= 0 {
		return minAcceptBackoff
	}
	return min(cur*2, maxAcceptBackoff)
}

// ListenAndServe listens on addr and serves the gateway protocol until ctx
// is cancelled.
func ListenAndServe(ctx context.Context, addr string, router *Router, opts ...ServeOption) error {
	addr = normalizeAddr(addr, opts)
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return ServeWithContext(ctx, ln, router, opts...)
}

// ServeWithContext accepts connections from ln until ctx is cancelled,
// then closes ln, waits for open connections and returns nil.
func ServeWithContext(ctx context.Context, ln net.Listener, router *Router, opts ...ServeOption) error {
	if router == nil {
		return ErrNilRouter
	}
	o := buildOptions(opts)
	if o.scopes == nil {
		return ErrNoScopes
	}
	d := &dispatcher{router: router, scopes: o.scopes}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	o.logger.Info("Gateway listening.", "addr", ln.Addr().String(), "commands", len(router.Commands()))

	var wg sync.WaitGroup
	defer wg.Wait()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			backoff = nextAcceptBackoff(backoff)
			o.logger.Warn("Accept failed, backing off.", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			logger := o.logger.With("remote", conn.RemoteAddr().String())
			cctx := ctxlog.WithLogger(ctx, logger)
			if err := handleConn(cctx, conn, d, o.idleTimeout, o.writeTimeout); err != nil {
				logger.Debug("Connection closed with error.", "error", err)
			}
		}()
	}
}
