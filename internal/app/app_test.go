package app_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gogogo1024/mediate"
	"github.com/gogogo1024/mediate/container"
	"github.com/gogogo1024/mediate/gateway"
	"github.com/gogogo1024/mediate/internal/acl"
	"github.com/gogogo1024/mediate/internal/app"
	"github.com/gogogo1024/mediate/internal/ping"
	"github.com/gogogo1024/mediate/protocol"
	"github.com/stretchr/testify/require"
)

func TestEveryRouteHasAHandlerAndViceVersa(t *testing.T) {
	c, err := app.BuildContainer(app.Options{})
	require.NoError(t, err)

	r := app.Routes()
	require.Len(t, r.Commands(), 8)
	require.Equal(t, 8, c.Len())
	require.NoError(t, app.Validate(r, c))
}

func TestValidateReportsGaps(t *testing.T) {
	b := container.NewBuilder()
	require.NoError(t, b.AddModules(ping.Module()))
	c := b.Build()

	r := gateway.NewRouter()
	gateway.Route[ping.Ping, string](r, protocol.CmdPing)
	gateway.Route[acl.Revoke, mediate.Unit](r, protocol.CmdACLRevoke)

	err := app.Validate(r, c)
	require.Error(t, err)
	require.Contains(t, err.Error(), "command 0x0103 routes to acl.Revoke -> mediate.Unit, which has no handler")
	require.Contains(t, err.Error(), "handler for ping.VoidPing -> mediate.Unit is not routed")
}

func TestBuildContainerRejectsDuplicateModules(t *testing.T) {
	b := container.NewBuilder()
	require.NoError(t, b.AddModules(app.Modules(acl.NewInMemoryStore())...))
	require.ErrorIs(t, b.AddModules(ping.Module()), container.ErrDuplicateBinding)
}

// A Ping round trip through the real server wiring.
func TestGatewayServesPing(t *testing.T) {
	c, err := app.BuildContainer(app.Options{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = gateway.ServeWithContext(ctx, ln, app.Routes(), gateway.WithScopes(gateway.ContainerScopes(c)))
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	payload, err := sonic.Marshal(ping.Ping{Message: "Hello"})
	require.NoError(t, err)
	f, err := protocol.Pack(0, &protocol.Message{Command: protocol.CmdPing, RequestID: 1, Payload: payload})
	require.NoError(t, err)
	require.NoError(t, protocol.WriteFrame(conn, f))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	out, err := protocol.ReadFrame(bufio.NewReader(conn))
	require.NoError(t, err)
	resp, err := protocol.Unpack(out)
	require.NoError(t, err)

	require.Equal(t, protocol.StatusOK, resp.Status)
	var got string
	require.NoError(t, sonic.Unmarshal(resp.Payload, &got))
	require.Equal(t, "Handled: Hello", got)
}
