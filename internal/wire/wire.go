// Package wire defines the fixed-layout records exchanged between the
// streaming client and server: the negotiation ControlMessage and the
// StreamPacket carried on the TCP and UDP stream ports.
//
// Records use the platform's native byte order. Both ends are assumed to run
// on the same architecture; the layout is not meant to be portable.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// ControlDataSize is the capacity of ControlMessage.Data, NUL included.
	ControlDataSize = 256
	// PayloadSize is the capacity of StreamPacket.Payload.
	PayloadSize = 1024

	// ControlMessageSize is the encoded size of a ControlMessage.
	ControlMessageSize = 4 + 4 + ControlDataSize
	// StreamPacketSize is the encoded size of a StreamPacket.
	StreamPacketSize = 4 + PayloadSize
)

// Control message types.
const (
	TypeRequest int32 = 1
	TypeReply   int32 = 2
)

// EndOfStreamSeq is the reserved sequence number of the UDP end-of-stream
// sentinel.
const EndOfStreamSeq int32 = -1

const endOfStreamPayload = "END"

var (
	// ErrShortRecord is returned when a read ends inside a record.
	ErrShortRecord = errors.New("wire: short record")

	// ErrRecordSize is returned when a buffer passed to a decoder is not
	// exactly one record long.
	ErrRecordSize = errors.New("wire: invalid record size")
)

var order = binary.NativeEndian

// ControlMessage is the negotiation record sent on the base port.
type ControlMessage struct {
	Type   int32
	Length int32
	Data   [ControlDataSize]byte
}

// NewRequest builds a type=1 request naming the wanted resolution.
func NewRequest(resolution string) ControlMessage {
	m := ControlMessage{Type: TypeRequest}
	m.Length = int32(putText(m.Data[:], resolution))
	return m
}

// NewReply builds a type=2 reply carrying a human-readable acknowledgment.
func NewReply(text string) ControlMessage {
	m := ControlMessage{Type: TypeReply}
	m.Length = int32(putText(m.Data[:], text))
	return m
}

// Text returns Data up to the first NUL byte.
func (m ControlMessage) Text() string {
	return cString(m.Data[:])
}

// StreamPacket is one media record on a stream port.
type StreamPacket struct {
	Seq     int32
	Payload [PayloadSize]byte
}

// NewPacket builds a regular packet with the given sequence number and
// payload text.
func NewPacket(seq int32, payload string) StreamPacket {
	p := StreamPacket{Seq: seq}
	putText(p.Payload[:], payload)
	return p
}

// EndOfStream returns the UDP end-of-stream sentinel.
func EndOfStream() StreamPacket {
	return NewPacket(EndOfStreamSeq, endOfStreamPayload)
}

// IsEndOfStream reports whether p is the UDP end-of-stream sentinel.
func (p StreamPacket) IsEndOfStream() bool {
	return p.Seq == EndOfStreamSeq && bytes.HasPrefix(p.Payload[:], []byte(endOfStreamPayload))
}

// PayloadText returns Payload up to the first NUL byte.
func (p StreamPacket) PayloadText() string {
	return cString(p.Payload[:])
}

// EncodeControlMessage returns the wire form of m.
func EncodeControlMessage(m ControlMessage) []byte {
	buf := make([]byte, ControlMessageSize)
	order.PutUint32(buf[0:4], uint32(m.Type))
	order.PutUint32(buf[4:8], uint32(m.Length))
	copy(buf[8:], m.Data[:])
	return buf
}

// DecodeControlMessage parses exactly one encoded ControlMessage.
func DecodeControlMessage(b []byte) (ControlMessage, error) {
	if len(b) != ControlMessageSize {
		return ControlMessage{}, fmt.Errorf("%w: control message is %d bytes, got %d", ErrRecordSize, ControlMessageSize, len(b))
	}
	m := ControlMessage{
		Type:   int32(order.Uint32(b[0:4])),
		Length: int32(order.Uint32(b[4:8])),
	}
	copy(m.Data[:], b[8:])
	return m, nil
}

// EncodeStreamPacket returns the wire form of p.
func EncodeStreamPacket(p StreamPacket) []byte {
	buf := make([]byte, StreamPacketSize)
	order.PutUint32(buf[0:4], uint32(p.Seq))
	copy(buf[4:], p.Payload[:])
	return buf
}

// DecodeStreamPacket parses exactly one encoded StreamPacket.
func DecodeStreamPacket(b []byte) (StreamPacket, error) {
	if len(b) != StreamPacketSize {
		return StreamPacket{}, fmt.Errorf("%w: stream packet is %d bytes, got %d", ErrRecordSize, StreamPacketSize, len(b))
	}
	p := StreamPacket{Seq: int32(order.Uint32(b[0:4]))}
	copy(p.Payload[:], b[4:])
	return p, nil
}

// ReadControlMessage reads one full ControlMessage from r. It returns io.EOF
// when r ends before any byte was read and ErrShortRecord when it ends
// inside the record.
func ReadControlMessage(r io.Reader) (ControlMessage, error) {
	buf := make([]byte, ControlMessageSize)
	if err := readRecord(r, buf); err != nil {
		return ControlMessage{}, err
	}
	return DecodeControlMessage(buf)
}

// WriteControlMessage writes m to w as one record.
func WriteControlMessage(w io.Writer, m ControlMessage) error {
	_, err := w.Write(EncodeControlMessage(m))
	return err
}

// ReadStreamPacket reads one full StreamPacket from r with the same end of
// input rules as ReadControlMessage.
func ReadStreamPacket(r io.Reader) (StreamPacket, error) {
	buf := make([]byte, StreamPacketSize)
	if err := readRecord(r, buf); err != nil {
		return StreamPacket{}, err
	}
	return DecodeStreamPacket(buf)
}

// WriteStreamPacket writes p to w as one record.
func WriteStreamPacket(w io.Writer, p StreamPacket) error {
	_, err := w.Write(EncodeStreamPacket(p))
	return err
}

func readRecord(r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: got %d of %d bytes", ErrShortRecord, n, len(buf))
	default:
		return err
	}
}

// putText copies s into dst, truncating so that a terminating NUL always
// fits, zeroes the remainder and returns the number of text bytes stored.
func putText(dst []byte, s string) int {
	n := copy(dst[:len(dst)-1], s)
	clear(dst[n:])
	return n
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
