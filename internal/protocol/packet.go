// Package protocol implements the framed request/reply packet codec
// used on the supervisor's control FIFOs: one version byte, one type
// byte, a size, and a payload.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Version is the only protocol version this module understands.
const Version = 1

// Packet types.
const (
	TypeCommand = 'C' // request: one command byte
	TypeQuery   = 'Q' // request: status query, no payload
	TypeError   = 'E' // reply: 4-byte big-endian error code
	TypeStatus  = 'S' // reply: status record payload
)

// EPROTO is the error code replied for malformed requests, version
// mismatches, and unknown commands.
const EPROTO = 71

// maxPayload bounds the size field against runaway allocation; the
// largest real payload (a status record) is well under this.
const maxPayload = 4096

// Packet is a decoded request or reply.
type Packet struct {
	Version byte
	Type    byte
	Payload []byte
}

// headerSize is version(1) + type(1) + size(2, big-endian uint16).
const headerSize = 4

// Encode serializes p into its wire form.
func Encode(p Packet) []byte {
	buf := make([]byte, headerSize+len(p.Payload))
	buf[0] = p.Version
	buf[1] = p.Type
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(p.Payload)))
	copy(buf[4:], p.Payload)
	return buf
}

// WriteTo writes p's encoded form to w in a single call, matching
// pkt_write()'s single-transaction semantics.
func WriteTo(w io.Writer, p Packet) error {
	_, err := w.Write(Encode(p))
	return err
}

// ReadFrom reads exactly one framed packet from r. It does not
// validate Version or Type — callers decide how to respond to an
// unsupported version or unknown type (typically an EPROTO reply).
func ReadFrom(r io.Reader) (Packet, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Packet{}, fmt.Errorf("read packet header: %w", err)
	}

	size := binary.BigEndian.Uint16(hdr[2:4])
	if size > maxPayload {
		return Packet{}, fmt.Errorf("packet payload too large: %d bytes", size)
	}

	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Packet{}, fmt.Errorf("read packet payload: %w", err)
		}
	}

	return Packet{Version: hdr[0], Type: hdr[1], Payload: payload}, nil
}

// ErrorPacket builds an 'E' reply carrying a non-negative error code
// (0 means success), matching proto_error() in perpetrate.c.
func ErrorPacket(code uint32) Packet {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, code)
	return Packet{Version: Version, Type: TypeError, Payload: payload}
}

// StatusPacket builds an 'S' reply carrying the current status record.
func StatusPacket(statusBytes []byte) Packet {
	return Packet{Version: Version, Type: TypeStatus, Payload: statusBytes}
}

// DecodeCommand extracts the target slot selector and command byte
// from a 'C' packet payload: bytes above 0x7f target the log slot
// after subtracting 0x7f.
func DecodeCommand(payload []byte) (cmd byte, toLog bool, err error) {
	if len(payload) != 1 {
		return 0, false, fmt.Errorf("command payload must be exactly 1 byte, got %d", len(payload))
	}
	b := payload[0]
	if b > 0x7f {
		return b - 0x7f, true, nil
	}
	return b, false, nil
}
