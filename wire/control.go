package wire

import "encoding/binary"

// Control frame tags. Keepalive is a single zero byte; ping/pong carry an
// 8-byte big-endian millisecond timestamp after their tag byte.
const (
	TagPing uint8 = 0x50 // 'P'
	TagPong uint8 = 0x4F // 'O'

	keepaliveByte = 0x00

	pingPongSize = 9
)

// Keepalive is the canonical 1-byte keepalive frame body.
var Keepalive = []byte{keepaliveByte}

// IsKeepalive reports whether data is a keepalive frame: length <= 1. Per
// spec, any 1-byte payload other than a recognized tag is also treated as
// a keepalive by the receive path.
func IsKeepalive(data []byte) bool {
	return len(data) <= 1
}

// EncodePing builds a 9-byte ping frame carrying tsMs.
func EncodePing(tsMs uint64) []byte {
	return encodeTagged(TagPing, tsMs)
}

// EncodePong builds a 9-byte pong frame echoing tsMs from the ping.
func EncodePong(tsMs uint64) []byte {
	return encodeTagged(TagPong, tsMs)
}

func encodeTagged(tag uint8, tsMs uint64) []byte {
	buf := make([]byte, pingPongSize)
	buf[0] = tag
	binary.BigEndian.PutUint64(buf[1:9], tsMs)
	return buf
}

// DecodePingPong parses a 9-byte ping or pong frame. ok is false unless data
// is exactly 9 bytes and starts with TagPing or TagPong.
func DecodePingPong(data []byte) (tag uint8, tsMs uint64, ok bool) {
	if len(data) != pingPongSize {
		return 0, 0, false
	}
	if data[0] != TagPing && data[0] != TagPong {
		return 0, 0, false
	}
	return data[0], binary.BigEndian.Uint64(data[1:9]), true
}
