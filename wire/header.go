// Package wire implements the fixed-layout on-wire encoding for voicecore's
// media and control frames: the 19-byte audio packet header, the 1/9/9-byte
// control frames, and the 20-byte relay session prefix.
package wire

import "encoding/binary"

// HeaderSize is the fixed size of an encoded AudioHeader.
const HeaderSize = 19

// AudioHeader is the fixed 19-byte, big-endian audio packet header that
// precedes every codec payload on the wire.
type AudioHeader struct {
	Sequence     uint32
	TimestampUs  uint64
	SampleRate   uint32
	Channels     uint8
	PayloadLen   uint16
}

// Encode serializes h into a new 19-byte big-endian buffer.
func (h AudioHeader) Encode() []byte {
	buf := make([]byte, HeaderSize)
	h.EncodeInto(buf)
	return buf
}

// EncodeInto writes h into buf, which must be at least HeaderSize bytes.
func (h AudioHeader) EncodeInto(buf []byte) {
	_ = buf[HeaderSize-1] // bounds check hint
	binary.BigEndian.PutUint32(buf[0:4], h.Sequence)
	binary.BigEndian.PutUint64(buf[4:12], h.TimestampUs)
	binary.BigEndian.PutUint32(buf[12:16], h.SampleRate)
	buf[16] = h.Channels
	binary.BigEndian.PutUint16(buf[17:19], h.PayloadLen)
}

// DecodeHeader parses a 19-byte big-endian audio header. It returns ok=false
// for inputs shorter than HeaderSize; it does not validate PayloadLen against
// the carrier datagram — that is the receiver's responsibility.
func DecodeHeader(data []byte) (h AudioHeader, ok bool) {
	if len(data) < HeaderSize {
		return AudioHeader{}, false
	}
	h.Sequence = binary.BigEndian.Uint32(data[0:4])
	h.TimestampUs = binary.BigEndian.Uint64(data[4:12])
	h.SampleRate = binary.BigEndian.Uint32(data[12:16])
	h.Channels = data[16]
	h.PayloadLen = binary.BigEndian.Uint16(data[17:19])
	return h, true
}
