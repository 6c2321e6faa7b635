package protocol

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
)

var ErrBodyTooLarge = errors.New("protocol: decompressed body too large")

// Pack encodes m into a frame, gzip-compressing the body when flags has
// FlagCompressed.
func Pack(flags uint8, m *Message) (Frame, error) {
	body, err := m.MarshalBinary()
	if err != nil {
		return Frame{}, err
	}
	if flags&FlagCompressed != 0 {
		if body, err = compress(body); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Flags: flags, Body: body}, nil
}

// Unpack decodes the message carried by f.
func Unpack(f Frame) (*Message, error) {
	body := f.Body
	if f.Flags&FlagCompressed != 0 {
		var err error
		if body, err = decompress(body, MaxFrameBody); err != nil {
			return nil, err
		}
	}
	m := &Message{}
	if err := m.UnmarshalBinary(body); err != nil {
		return nil, err
	}
	return m, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte, limit int) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, ErrBodyTooLarge
	}
	return out, nil
}
