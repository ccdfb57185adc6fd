// Package wire encodes and decodes the two packet shapes this protocol
// puts on the datagram socket: a data packet (seq + checksum + payload)
// sent by the sender, and a bare cumulative ACK sent by the receiver.
package wire

import "encoding/binary"

const (
	// SeqSize is the width in bytes of the big-endian sequence number.
	SeqSize = 4
	// ChecksumSize is the width in bytes of the big-endian checksum.
	ChecksumSize = 2
	// HeaderSize is the combined width of seq + checksum preceding the
	// payload in a data packet.
	HeaderSize = SeqSize + ChecksumSize
	// AckSize is the width in bytes of an ACK packet.
	AckSize = 4
)

// Checksum sums the payload bytes modulo 65535. An empty payload checksums
// to zero.
func Checksum(payload []byte) uint16 {
	var sum uint32
	for _, b := range payload {
		sum += uint32(b)
	}
	return uint16(sum % 65535)
}

// EncodePacket serializes a data packet: 4-byte seq, 2-byte checksum, then
// the payload verbatim.
func EncodePacket(seq uint32, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:SeqSize], seq)
	binary.BigEndian.PutUint16(buf[SeqSize:HeaderSize], Checksum(payload))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Packet is a parsed data packet.
type Packet struct {
	Seq      uint32
	Checksum uint16
	Payload  []byte
}

// DecodePacket parses a data packet off the wire. It returns ok=false for
// a truncated datagram (fewer than HeaderSize bytes); the caller discards
// such datagrams silently per the protocol's error handling design.
func DecodePacket(buf []byte) (Packet, bool) {
	if len(buf) < HeaderSize {
		return Packet{}, false
	}
	p := Packet{
		Seq:      binary.BigEndian.Uint32(buf[0:SeqSize]),
		Checksum: binary.BigEndian.Uint16(buf[SeqSize:HeaderSize]),
		Payload:  buf[HeaderSize:],
	}
	return p, true
}

// ValidChecksum reports whether the packet's payload matches its carried
// checksum.
func (p Packet) ValidChecksum() bool {
	return Checksum(p.Payload) == p.Checksum
}

// EncodeAck serializes a cumulative ACK: the next byte offset the receiver
// expects.
func EncodeAck(ackNum uint32) []byte {
	buf := make([]byte, AckSize)
	binary.BigEndian.PutUint32(buf, ackNum)
	return buf
}

// DecodeAck parses an ACK packet. It returns ok=false for anything other
// than exactly AckSize bytes.
func DecodeAck(buf []byte) (uint32, bool) {
	if len(buf) != AckSize {
		return 0, false
	}
	return binary.BigEndian.Uint32(buf), true
}
