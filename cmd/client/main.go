package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gogogo1024/mediate/protocol"
	"github.com/google/uuid"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type clientConfig struct {
	addr     string
	cmd      uint16
	payload  []byte
	reqID    uint64
	compress bool
	oneWay   bool
	timeout  time.Duration
}

var errNotOK = errors.New("request failed")

func run(args []string, out io.Writer) error {
	cfg, list, err := parseFlags(args)
	if err != nil {
		return err
	}
	if list {
		for _, name := range protocol.CommandNames() {
			cmd, _ := protocol.CommandByName(name)
			fmt.Fprintf(out, "0x%04X %s\n", cmd, name)
		}
		return nil
	}

	conn, err := net.DialTimeout("tcp", cfg.addr, cfg.timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	var flags uint8
	if cfg.compress {
		flags |= protocol.FlagCompressed
	}
	if cfg.oneWay {
		flags |= protocol.FlagOneWay
	}
	req := &protocol.Message{Command: cfg.cmd, RequestID: cfg.reqID, Payload: cfg.payload}
	f, err := protocol.Pack(flags, req)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(cfg.timeout))
	if err := protocol.WriteFrame(conn, f); err != nil {
		return err
	}

	if cfg.oneWay {
		fmt.Fprintf(out, "sent one-way: cmd=%s request_id=%d\n", commandLabel(req.Command), req.RequestID)
		return nil
	}

	_ = conn.SetReadDeadline(time.Now().Add(cfg.timeout))
	rf, err := protocol.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		return err
	}
	resp, err := protocol.Unpack(rf)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "resp: cmd=%s request_id=%d status=%s payload=%s\n",
		commandLabel(resp.Command), resp.RequestID, resp.Status, resp.Payload)
	if resp.Status != protocol.StatusOK {
		return fmt.Errorf("%w: %s", errNotOK, resp.Status)
	}
	return nil
}

func parseFlags(args []string) (clientConfig, bool, error) {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:9000", "server address")
	cmd := fs.String("cmd", "ping", "command name (see -list) or id, e.g. 0x0001")
	payload := fs.String("payload", `{"message":"ping"}`, "JSON request payload")
	reqID := fs.Uint64("id", 0, "request id (0 derives one from a random uuid)")
	compress := fs.Bool("compress", false, "gzip the frame body")
	oneWay := fs.Bool("oneway", false, "do not wait for a response")
	timeout := fs.Duration("timeout", 3*time.Second, "dial, write and read timeout")
	list := fs.Bool("list", false, "list known commands and exit")
	if err := fs.Parse(args); err != nil {
		return clientConfig{}, false, err
	}
	if *list {
		return clientConfig{}, true, nil
	}

	id, err := parseCommand(*cmd)
	if err != nil {
		return clientConfig{}, false, err
	}
	body := []byte(*payload)
	if len(body) > 0 && !sonic.Valid(body) {
		return clientConfig{}, false, fmt.Errorf("payload is not valid JSON: %s", body)
	}
	return clientConfig{
		addr:     *addr,
		cmd:      id,
		payload:  body,
		reqID:    requestID(*reqID),
		compress: *compress,
		oneWay:   *oneWay,
		timeout:  *timeout,
	}, false, nil
}

func parseCommand(s string) (uint16, error) {
	if cmd, ok := protocol.CommandByName(s); ok {
		return cmd, nil
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown command %q", s)
	}
	return uint16(v), nil
}

func requestID(id uint64) uint64 {
	for id == 0 {
		u := uuid.New()
		id = binary.BigEndian.Uint64(u[:8])
	}
	return id
}

func commandLabel(cmd uint16) string {
	if name, ok := protocol.CommandName(cmd); ok {
		return fmt.Sprintf("0x%04X(%s)", cmd, name)
	}
	return fmt.Sprintf("0x%04X", cmd)
}
