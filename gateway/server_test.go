package gateway

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gogogo1024/mediate"
	"github.com/gogogo1024/mediate/container"
	"github.com/gogogo1024/mediate/protocol"
)

func TestNextAcceptBackoffDoublesUntilCapped(t *testing.T) {
	cur := nextAcceptBackoff(0)
	if cur != 5*time.Millisecond {
		t.Fatalf("expected 5ms start, got %s", cur)
	}
	cur = nextAcceptBackoff(cur)
	if cur != 10*time.Millisecond {
		t.Fatalf("expected 10ms, got %s", cur)
	}
	cur = nextAcceptBackoff(cur)
	if cur != 20*time.Millisecond {
		t.Fatalf("expected 20ms, got %s", cur)
	}
}

func TestNextAcceptBackoffCappedAtOneSecond(t *testing.T) {
	cur := nextAcceptBackoff(800 * time.Millisecond)
	if cur != time.Second {
		t.Fatalf("expected 1s cap, got %s", cur)
	}
	if cur = nextAcceptBackoff(cur); cur != time.Second {
		t.Fatalf("expected to stay capped at 1s, got %s", cur)
	}
}

func TestNormalizeAddrRules(t *testing.T) {
	if got := normalizeAddr("127.0.0.1:1234", []ServeOption{WithAddr(":9000")}); got != "127.0.0.1:1234" {
		t.Fatalf("normalizeAddr explicit addr: got %q", got)
	}
	if got := normalizeAddr("", nil); got != DefaultAddr {
		t.Fatalf("normalizeAddr default: got %q", got)
	}
	if got := normalizeAddr("", []ServeOption{WithAddr("0.0.0.0:7777")}); got != "0.0.0.0:7777" {
		t.Fatalf("normalizeAddr WithAddr: got %q", got)
	}
}

func TestServeWithContextRequiresRouterAndScopes(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	if err := ServeWithContext(context.Background(), listener, nil); !errors.Is(err, ErrNilRouter) {
		t.Fatalf("nil router: got %v", err)
	}
	if err := ServeWithContext(context.Background(), listener, NewRouter()); !errors.Is(err, ErrNoScopes) {
		t.Fatalf("no scopes: got %v", err)
	}
}

func TestServeWithContextCancelStopsServe(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- ServeWithContext(ctx, listener, testRouter(), WithResolver(testResolver(nil)))
	}()

	// An open, idle connection must not hold up shutdown.
	client, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ServeWithContext returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for ServeWithContext to stop")
	}
}

type counter struct {
	n int
}

func (c *counter) Handle(context.Context, Echo) (string, error) {
	c.n++
	if c.n > 1 {
		return "reused", nil
	}
	return "fresh", nil
}

func TestServeWithContainerScopesUsesFreshScopePerRequest(t *testing.T) {
	b := container.NewBuilder()
	if err := container.Provide[Echo, string](b, func() *counter { return &counter{} }); err != nil {
		t.Fatalf("Provide: %v", err)
	}
	c := b.Build()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ServeWithContext(ctx, listener, testRouter(), WithScopes(ContainerScopes(c))) }()

	client, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	br := bufio.NewReader(client)

	for i := uint64(1); i <= 2; i++ {
		writeRequest(t, client, 0, cmdEcho, i, `{}`)
		resp, _ := readResponse(t, br, client)
		if got := string(resp.Payload); got != `"fresh"` {
			t.Fatalf("request %d: got %s, want a fresh scoped handler", i, got)
		}
	}
}

func TestRouteRejectsDuplicateCommand(t *testing.T) {
	r := NewRouter()
	Route[Echo, string](r, cmdEcho)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate command")
		}
	}()
	Route[Unbound, string](r, cmdEcho)
}

func TestRouterLookupAndCommands(t *testing.T) {
	r := testRouter()

	got := r.Commands()
	want := []uint16{cmdEcho, cmdNotify, cmdFail, cmdUnbound}
	if len(got) != len(want) {
		t.Fatalf("Commands: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Commands: got %v, want %v", got, want)
		}
	}

	if _, ok := r.Lookup(cmdMissing); ok {
		t.Fatalf("Lookup of unrouted command succeeded")
	}
}

type PtrEcho struct {
	mediate.Returns[string]
	Text string `json:"text"`
}

func TestRouterDecodesPointerRequests(t *testing.T) {
	r := NewRouter()
	Route[*PtrEcho, string](r, 0x0042)

	req, err := r.decode(0x0042, []byte(`{"text":"p"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p, ok := req.(*PtrEcho)
	if !ok || p.Text != "p" {
		t.Fatalf("decode: got %#v", req)
	}
}

func TestStatusOfGatewayErrors(t *testing.T) {
	if s := statusOf(ErrUnknownCommand); s != protocol.StatusNotFound {
		t.Fatalf("unknown command: %s", s)
	}
	if s := statusOf(ErrBadPayload); s != protocol.StatusBadRequest {
		t.Fatalf("bad payload: %s", s)
	}
	if s := statusOf(&mediate.DispatchError{Kind: mediate.ErrHandlerContractViolation}); s != protocol.StatusContractViolation {
		t.Fatalf("violation: %s", s)
	}
}

func TestRouterKeyMatchesBindingKey(t *testing.T) {
	r := testRouter()
	Route[*PtrEcho, string](r, 0x0042)

	if k, ok := r.Key(cmdNotify); !ok || k != mediate.KeyOf[Notify, mediate.Unit]() {
		t.Fatalf("Key(notify): got %v", k)
	}
	if k, ok := r.Key(0x0042); !ok || k != mediate.KeyOf[*PtrEcho, string]() {
		t.Fatalf("Key(ptr): got %v", k)
	}
	if _, ok := r.Key(cmdMissing); ok {
		t.Fatalf("Key of unrouted command succeeded")
	}
}
