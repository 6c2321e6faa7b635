package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/gogogo1024/mediate/protocol"
)

var (
	errQuotaExceeded = errors.New("gateway: connection buffer quota exceeded")
	errRateLimited   = errors.New("gateway: rate limit exceeded")

	errResponseTooLarge = errors.New("gateway: response exceeds max frame body")
)

// quotaReader charges every byte read from the connection against the
// connection's buffer quota until the frame holding it is handled.
type quotaReader struct {
	r      io.Reader
	limits *connLimits
	held   int
}

func (q *quotaReader) Read(p []byte) (int, error) {
	n, err := q.r.Read(p)
	if n > 0 {
		q.held += n
		if !q.limits.reserve(n) {
			return n, errQuotaExceeded
		}
	}
	return n, err
}

// settle releases the quota held by bytes the bufio.Reader has handed out.
func (q *quotaReader) settle(buffered int) {
	done := q.held - buffered
	if done > 0 {
		q.limits.release(done)
		q.held -= done
	}
}

func handleConn(ctx context.Context, conn net.Conn, d *dispatcher, idleTimeout, writeTimeout time.Duration) error {
	if d == nil {
		return ErrNilRouter
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	limits := newConnLimits()
	qr := &quotaReader{r: conn, limits: limits}
	br := bufio.NewReaderSize(qr, readBufferSize)
	defer func() { limits.release(qr.held) }()

	for {
		if idleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		}
		frame, err := protocol.ReadFrame(br)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		qr.settle(br.Buffered())

		if err := handleFrame(ctx, conn, d, limits, frame, writeTimeout); err != nil {
			return err
		}
	}
}

func handleFrame(ctx context.Context, conn net.Conn, d *dispatcher, limits *connLimits, frame protocol.Frame, writeTimeout time.Duration) error {
	msg, err := protocol.Unpack(frame)
	if err != nil {
		return err
	}

	var resp *protocol.Message
	if limits.allow() {
		resp = d.dispatch(ctx, msg)
	} else {
		resp = d.failure(ctx, msg, errRateLimited)
	}
	if frame.OneWay() {
		return nil
	}

	flags := frame.Flags & protocol.FlagCompressed
	b, err := encodeReply(flags, resp)
	if errors.Is(err, protocol.ErrFrameTooLarge) {
		b, err = encodeReply(flags, d.failure(ctx, msg, fmt.Errorf("%w: %d byte payload", errResponseTooLarge, len(resp.Payload))))
	}
	if err != nil {
		return err
	}
	return writeAll(conn, b, writeTimeout)
}

func encodeReply(flags uint8, m *protocol.Message) ([]byte, error) {
	f, err := protocol.Pack(flags, m)
	if err != nil {
		return nil, err
	}
	return f.MarshalBinary()
}

// writeAll writes data under a write deadline and clears the deadline
// afterwards, on success and on error.
func writeAll(conn net.Conn, data []byte, timeout time.Duration) error {
	if timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()

	for len(data) > 0 {
		n, err := conn.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
