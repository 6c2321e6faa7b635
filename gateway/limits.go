package gateway

import (
	"sync/atomic"
	"time"

	"github.com/gogogo1024/mediate/protocol"
)

const (
	readBufferSize = 8 * 1024

	// defaultMaxBuffer admits one maximal frame plus the reader's read-ahead.
	defaultMaxBuffer = protocol.FrameHeaderLen + protocol.MaxFrameBody + readBufferSize
	defaultRate      = 100
	defaultBurst     = 200
)

// connLimits bounds one connection's buffered bytes and request rate
// (token bucket). Allow is called from the connection goroutine only.
type connLimits struct {
	bufferUsed atomic.Int64
	maxBuffer  int64

	tokens     int64
	rate       int64
	burst      int64
	lastRefill time.Time
	now        func() time.Time
}

func newConnLimits() *connLimits {
	l := &connLimits{
		maxBuffer: defaultMaxBuffer,
		tokens:    defaultRate,
		rate:      defaultRate,
		burst:     defaultBurst,
		now:       time.Now,
	}
	l.lastRefill = l.now()
	return l
}

func (l *connLimits) reserve(n int) bool {
	return l.bufferUsed.Add(int64(n)) <= l.maxBuffer
}

func (l *connLimits) release(n int) {
	l.bufferUsed.Add(-int64(n))
}

func (l *connLimits) allow() bool {
	now := l.now()
	add := int64(now.Sub(l.lastRefill)) * l.rate / int64(time.Second)
	if add > 0 {
		l.tokens = min(l.tokens+add, l.burst)
		l.lastRefill = now
	}
	if l.tokens <= 0 {
		return false
	}
	l.tokens--
	return true
}
