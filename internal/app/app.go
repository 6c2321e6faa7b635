// Package app wires the handler modules, the container and the gateway
// routes shared by the binaries.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogogo1024/mediate"
	"github.com/gogogo1024/mediate/container"
	"github.com/gogogo1024/mediate/gateway"
	"github.com/gogogo1024/mediate/internal/acl"
	"github.com/gogogo1024/mediate/internal/ping"
	"github.com/gogogo1024/mediate/protocol"
	"github.com/gogogo1024/mediate/registry"
)

type Options struct {
	Store      acl.Store
	Duplicates container.DuplicatePolicy
	Lifetime   container.Lifetime
	Logger     *slog.Logger
}

func Modules(store acl.Store) []registry.Module {
	return []registry.Module{
		ping.Module(),
		acl.Module(store),
	}
}

// BuildContainer registers every module. A nil Store means an in-memory
// ACL store.
func BuildContainer(o Options) (*container.Container, error) {
	store := o.Store
	if store == nil {
		store = acl.NewInMemoryStore()
	}
	opts := []container.Option{
		container.WithDuplicatePolicy(o.Duplicates),
		container.WithDefaultLifetime(o.Lifetime),
	}
	if o.Logger != nil {
		opts = append(opts, container.WithLogger(o.Logger))
	}
	b := container.NewBuilder(opts...)
	if err := b.AddModules(Modules(store)...); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// Routes maps every protocol command to its request type.
func Routes() *gateway.Router {
	r := gateway.NewRouter()
	gateway.Route[ping.Ping, string](r, protocol.CmdPing)
	gateway.Route[ping.VoidPing, mediate.Unit](r, protocol.CmdVoidPing)

	gateway.Route[acl.SetVisibility, mediate.Unit](r, protocol.CmdACLSetVisibility)
	gateway.Route[acl.Grant, mediate.Unit](r, protocol.CmdACLGrant)
	gateway.Route[acl.Revoke, mediate.Unit](r, protocol.CmdACLRevoke)
	gateway.Route[acl.RevokeAllUser, mediate.Unit](r, protocol.CmdACLRevokeAllUser)
	gateway.Route[acl.CheckBatch, []string](r, protocol.CmdACLCheckBatch)
	gateway.Route[acl.ListGrants, []string](r, protocol.CmdACLListGrants)
	return r
}

// Validate reports routes without a bound handler and bindings no route
// reaches.
func Validate(r *gateway.Router, c *container.Container) error {
	var errs []error
	routed := make(map[mediate.Key]bool)
	for _, cmd := range r.Commands() {
		key, _ := r.Key(cmd)
		routed[key] = true
		if !c.Has(key) {
			errs = append(errs, fmt.Errorf("command 0x%04X routes to %s, which has no handler", cmd, key))
		}
	}
	for _, key := range c.Keys() {
		if !routed[key] {
			errs = append(errs, fmt.Errorf("handler for %s is not routed", key))
		}
	}
	return errors.Join(errs...)
}
