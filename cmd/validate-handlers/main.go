// Command validate-handlers checks that every gateway route reaches a
// registered handler and that every handler is reachable from a route.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/gogogo1024/mediate"
	"github.com/gogogo1024/mediate/container"
	"github.com/gogogo1024/mediate/gateway"
	"github.com/gogogo1024/mediate/internal/app"
	"github.com/gogogo1024/mediate/protocol"
)

type issue struct {
	msg string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("validate-handlers", flag.ContinueOnError)
	requireAll := fs.Bool("require-all", false, "if true, require every command defined in protocol to be routed")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := app.BuildContainer(app.Options{})
	if err != nil {
		fmt.Fprintf(out, "- build container: %v\n", err)
		return 1
	}
	defer c.Close()
	r := app.Routes()

	issues := validate(r, c, *requireAll)
	if len(issues) == 0 {
		fmt.Fprintf(out,
			"ok: handler wiring looks consistent (defs=%d routed=%d handled=%d)\n",
			len(protocol.CommandNames()),
			len(r.Commands()),
			c.Len(),
		)
		return 0
	}

	sort.Slice(issues, func(i, j int) bool { return issues[i].msg < issues[j].msg })
	for _, it := range issues {
		fmt.Fprintf(out, "- %s\n", it.msg)
	}
	return 1
}

func validate(r *gateway.Router, c *container.Container, requireAll bool) []issue {
	var issues []issue
	issues = append(issues, validateRoutesAreDefined(r)...)
	issues = append(issues, validateRoutesHaveHandlers(r, c)...)
	issues = append(issues, validateHandlersAreRouted(r, c)...)
	if requireAll {
		issues = append(issues, validateAllDefinedAreRouted(r)...)
	}
	return issues
}

func validateRoutesAreDefined(r *gateway.Router) []issue {
	var issues []issue
	for _, cmd := range r.Commands() {
		if _, ok := protocol.CommandName(cmd); !ok {
			issues = append(issues, issue{msg: fmt.Sprintf("command 0x%04X is routed but not defined in protocol", cmd)})
		}
	}
	return issues
}

func validateRoutesHaveHandlers(r *gateway.Router, c *container.Container) []issue {
	var issues []issue
	for _, cmd := range r.Commands() {
		key, _ := r.Key(cmd)
		if !c.Has(key) {
			issues = append(issues, issue{msg: fmt.Sprintf("command %s routes to %s, which has no handler", label(cmd), key)})
		}
	}
	return issues
}

func validateHandlersAreRouted(r *gateway.Router, c *container.Container) []issue {
	routed := make(map[mediate.Key]bool)
	for _, cmd := range r.Commands() {
		key, _ := r.Key(cmd)
		routed[key] = true
	}
	var issues []issue
	for _, key := range c.Keys() {
		if !routed[key] {
			issues = append(issues, issue{msg: fmt.Sprintf("handler for %s is registered but not routed", key)})
		}
	}
	return issues
}

func validateAllDefinedAreRouted(r *gateway.Router) []issue {
	var issues []issue
	for _, name := range protocol.CommandNames() {
		cmd, _ := protocol.CommandByName(name)
		if _, ok := r.Lookup(cmd); !ok {
			issues = append(issues, issue{msg: fmt.Sprintf("command %s is defined but not routed (require-all)", label(cmd))})
		}
	}
	return issues
}

func label(cmd uint16) string {
	if name, ok := protocol.CommandName(cmd); ok {
		return fmt.Sprintf("0x%04X(%s)", cmd, name)
	}
	return fmt.Sprintf("0x%04X", cmd)
}
