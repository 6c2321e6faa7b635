// Package container is a small scoped handler container. It plays both
// collaborator roles around the mediator: a Builder binds handler factories
// by key at startup (from generic Provide calls or from registry modules),
// and a Scope resolves live handlers for one unit of work.
//
//	b := container.NewBuilder()
//	_ = container.Provide[ping.Ping, string](b, ping.NewHandler)
//	_ = b.AddModules(acl.Module(store))
//	c := b.Build()
//
//	scope := c.NewScope()
//	defer scope.Close()
//	out, err := mediate.Send[string](ctx, mediate.New(scope), ping.Ping{Message: "hi"})
package container
