package gateway

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gogogo1024/mediate"
	"github.com/gogogo1024/mediate/protocol"
)

const (
	cmdEcho    uint16 = 0x0001
	cmdNotify  uint16 = 0x0002
	cmdFail    uint16 = 0x0003
	cmdUnbound uint16 = 0x0004
	cmdMissing uint16 = 0x00FF
)

type Echo struct {
	mediate.Returns[string]
	Text string `json:"text"`
}

type Notify struct {
	mediate.Void
	Text string `json:"text"`
}

type Fail struct {
	mediate.Returns[int]
}

type Unbound struct {
	mediate.Returns[string]
}

var errFail = errors.New("fail handler always fails")

func testRouter() *Router {
	r := NewRouter()
	Route[Echo, string](r, cmdEcho)
	Route[Notify, mediate.Unit](r, cmdNotify)
	Route[Fail, int](r, cmdFail)
	Route[Unbound, string](r, cmdUnbound)
	return r
}

func testResolver(notified chan<- string) mediate.MapResolver {
	res := mediate.MapResolver{}
	mediate.Bind[Echo, string](res, mediate.HandlerFunc[Echo, string](func(_ context.Context, req Echo) (string, error) {
		return "echo: " + req.Text, nil
	}))
	mediate.BindVoid[Notify](res, mediate.VoidHandlerFunc[Notify](func(_ context.Context, req Notify) error {
		if notified != nil {
			notified <- req.Text
		}
		return nil
	}))
	mediate.Bind[Fail, int](res, mediate.HandlerFunc[Fail, int](func(context.Context, Fail) (int, error) {
		return 0, errFail
	}))
	return res
}

func testDispatcher(notified chan<- string) *dispatcher {
	res := testResolver(notified)
	return &dispatcher{
		router: testRouter(),
		scopes: func() Scope { return staticScope{res} },
	}
}

// serveOne accepts a single connection on a loopback listener and returns
// a client connected to it.
func serveOne(t *testing.T, d *dispatcher) net.Conn {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = handleConn(context.Background(), conn, d, 5*time.Second, 5*time.Second)
	}()

	client, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func writeRequest(t *testing.T, conn net.Conn, flags uint8, cmd uint16, id uint64, payload string) {
	t.Helper()
	f, err := protocol.Pack(flags, &protocol.Message{Command: cmd, RequestID: id, Payload: []byte(payload)})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if err := protocol.WriteFrame(conn, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
}

func readResponse(t *testing.T, br *bufio.Reader, conn net.Conn) (*protocol.Message, protocol.Frame) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := protocol.ReadFrame(br)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	m, err := protocol.Unpack(f)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	return m, f
}

func errorText(t *testing.T, m *protocol.Message) string {
	t.Helper()
	var body ErrorBody
	if err := sonic.Unmarshal(m.Payload, &body); err != nil {
		t.Fatalf("error body %q: %v", m.Payload, err)
	}
	return body.Error
}

func mustContain(t *testing.T, s, sub string) {
	t.Helper()
	if !strings.Contains(s, sub) {
		t.Fatalf("%q does not contain %q", s, sub)
	}
}
