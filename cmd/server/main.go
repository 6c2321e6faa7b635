package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gogogo1024/mediate/container"
	"github.com/gogogo1024/mediate/gateway"
	"github.com/gogogo1024/mediate/internal/acl"
	"github.com/gogogo1024/mediate/internal/app"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	// `go test ./...` may execute command mains; never start a listener
	// from a test binary.
	if strings.HasSuffix(filepath.Base(os.Args[0]), ".test") {
		return
	}

	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(os.Stderr, cfg.logLevel, cfg.logFormat)
	slog.SetDefault(logger)
	cfg.logSources(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped.", "error", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(ctx context.Context, cfg serverConfig, logger *slog.Logger) error {
	store, health, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	c, err := app.BuildContainer(app.Options{
		Store:      store,
		Duplicates: cfg.duplicates,
		Lifetime:   cfg.lifetime,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("Closing singletons failed.", "error", err)
		}
	}()

	router := app.Routes()
	if err := app.Validate(router, c); err != nil {
		return fmt.Errorf("handler wiring: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gateway.ListenAndServe(gctx, cfg.addr, router, cfg.serveOptions(c, logger)...)
	})
	if health != nil && cfg.redis.healthInterval > 0 {
		g.Go(func() error {
			watchStore(gctx, health, cfg.redis.healthInterval, logger)
			return nil
		})
	}
	err = g.Wait()
	logger.Info("Shutting down.")
	return err
}

// watchStore pings the store every interval until ctx is done, logging
// when it becomes unreachable and when it recovers.
func watchStore(ctx context.Context, ping func(context.Context) error, interval time.Duration, logger *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		pctx, cancel := context.WithTimeout(ctx, interval)
		err := ping(pctx)
		cancel()
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil && healthy:
			logger.Warn("ACL store unreachable; batch checks deny until it recovers.", "error", err)
			healthy = false
		case err == nil && !healthy:
			logger.Info("ACL store reachable again.")
			healthy = true
		}
	}
}

func (c serverConfig) serveOptions(ct *container.Container, logger *slog.Logger) []gateway.ServeOption {
	return []gateway.ServeOption{
		gateway.WithIdleTimeout(c.idleTimeout),
		gateway.WithWriteTimeout(c.writeTimeout),
		gateway.WithLogger(logger),
		gateway.WithScopes(gateway.ContainerScopes(ct)),
	}
}

// openStore returns the ACL store selected by acl.store, a health check
// (nil for the in-memory store) and a func releasing the store.
func openStore(ctx context.Context, cfg serverConfig, logger *slog.Logger) (acl.Store, func(context.Context) error, func(), error) {
	if cfg.aclStore != "redis" {
		logger.Info("Using in-memory ACL store.")
		return acl.NewInMemoryStore(), nil, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.redis.addr,
		Password:     cfg.redis.password,
		DB:           cfg.redis.db,
		DialTimeout:  cfg.redis.dialTimeout,
		ReadTimeout:  cfg.redis.readTimeout,
		WriteTimeout: cfg.redis.writeTimeout,
	})
	pctx, cancel := context.WithTimeout(ctx, cfg.redis.dialTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, fmt.Errorf("redis ping %s: %w", cfg.redis.addr, err)
	}
	logger.Info("Using redis ACL store.", "addr", cfg.redis.addr, "db", cfg.redis.db, "prefix", cfg.redis.keyPrefix)
	health := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	return acl.NewRedisStore(rdb, cfg.redis.keyPrefix), health, func() { _ = rdb.Close() }, nil
}
