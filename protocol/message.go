package protocol

import (
	"encoding/binary"
	"errors"
)

// MessageHeaderLen is Command(2) + RequestID(8) + Status(1).
const MessageHeaderLen = 2 + 8 + 1

var ErrShortMessage = errors.New("protocol: message too short")

type Message struct {
	Command   uint16
	RequestID uint64
	Status    Status
	Payload   []byte
}

func (m *Message) MarshalBinary() ([]byte, error) {
	buf := make([]byte, MessageHeaderLen+len(m.Payload))
	binary.BigEndian.PutUint16(buf[0:2], m.Command)
	binary.BigEndian.PutUint64(buf[2:10], m.RequestID)
	buf[10] = byte(m.Status)
	copy(buf[MessageHeaderLen:], m.Payload)
	return buf, nil
}

// UnmarshalBinary decodes data into m. Payload aliases data.
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) < MessageHeaderLen {
		return ErrShortMessage
	}
	m.Command = binary.BigEndian.Uint16(data[0:2])
	m.RequestID = binary.BigEndian.Uint64(data[2:10])
	m.Status = Status(data[10])
	m.Payload = data[MessageHeaderLen:]
	return nil
}
