package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// FrameMagic opens every frame ("ME").
	FrameMagic uint16 = 0x4D45
	// FrameVersion is the only supported frame version.
	FrameVersion uint8 = 1

	// FrameHeaderLen is magic(2) + version(1) + flags(1) + body length(4).
	FrameHeaderLen = 8
	// MaxFrameBody bounds a frame body on the wire and after decompression.
	MaxFrameBody = 1 << 20
)

const (
	FlagCompressed uint8 = 1 << 0
	FlagOneWay     uint8 = 1 << 1

	knownFlags = FlagCompressed | FlagOneWay
)

var (
	ErrBadMagic           = errors.New("protocol: bad frame magic")
	ErrUnsupportedVersion = errors.New("protocol: unsupported frame version")
	ErrFrameTooLarge      = errors.New("protocol: frame too large")
	ErrUnknownFlags       = errors.New("protocol: unknown frame flags")
)

// Frame is the transport envelope of one Message.
type Frame struct {
	Flags uint8
	Body  []byte
}

// OneWay reports whether the sender expects no response.
func (f Frame) OneWay() bool { return f.Flags&FlagOneWay != 0 }

func (f Frame) MarshalBinary() ([]byte, error) {
	if f.Flags&^knownFlags != 0 {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownFlags, f.Flags)
	}
	if len(f.Body) > MaxFrameBody {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, FrameHeaderLen+len(f.Body))
	binary.BigEndian.PutUint16(buf[0:2], FrameMagic)
	buf[2] = FrameVersion
	buf[3] = f.Flags
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(f.Body)))
	copy(buf[FrameHeaderLen:], f.Body)
	return buf, nil
}

func parseHeader(h []byte) (flags uint8, bodyLen int, err error) {
	if magic := binary.BigEndian.Uint16(h[0:2]); magic != FrameMagic {
		return 0, 0, fmt.Errorf("%w: 0x%04X", ErrBadMagic, magic)
	}
	if h[2] != FrameVersion {
		return 0, 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h[2])
	}
	flags = h[3]
	if flags&^knownFlags != 0 {
		return 0, 0, fmt.Errorf("%w: 0x%02X", ErrUnknownFlags, flags)
	}
	n := binary.BigEndian.Uint32(h[4:8])
	if n > MaxFrameBody {
		return 0, 0, ErrFrameTooLarge
	}
	return flags, int(n), nil
}

// ParseFrame decodes the frame at the start of buf. It returns a nil frame
// and zero length when buf does not yet hold a whole frame. The body
// aliases buf.
func ParseFrame(buf []byte) (*Frame, int, error) {
	if len(buf) < FrameHeaderLen {
		return nil, 0, nil
	}
	flags, n, err := parseHeader(buf[:FrameHeaderLen])
	if err != nil {
		return nil, 0, err
	}
	total := FrameHeaderLen + n
	if len(buf) < total {
		return nil, 0, nil
	}
	return &Frame{Flags: flags, Body: buf[FrameHeaderLen:total]}, total, nil
}

// ReadFrame reads one whole frame from r. It returns io.EOF only when r
// ends cleanly between frames.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	var h [FrameHeaderLen]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return Frame{}, err
	}
	flags, n, err := parseHeader(h[:])
	if err != nil {
		return Frame{}, err
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	return Frame{Flags: flags, Body: body}, nil
}

// WriteFrame writes f to w in one Write call.
func WriteFrame(w io.Writer, f Frame) error {
	b, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
