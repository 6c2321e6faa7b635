// Package ping holds the smallest handlers the gateway serves, used for
// liveness checks and as a wiring example.
package ping

import (
	"context"

	"github.com/gogogo1024/mediate"
	"github.com/gogogo1024/mediate/registry"
)

type Ping struct {
	mediate.Returns[string]
	Message string `json:"message"`
}

type VoidPing struct {
	mediate.Void
}

type Handler struct{}

func (Handler) Handle(_ context.Context, req Ping) (string, error) {
	return "Handled: " + req.Message, nil
}

func (Handler) HandleVoid(context.Context, VoidPing) error {
	return nil
}

func Module() registry.Module {
	return registry.Module{
		Name:         "ping",
		Constructors: []any{func() Handler { return Handler{} }},
	}
}
