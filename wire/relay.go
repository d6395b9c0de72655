package wire

// SessionIDSize is the fixed width of the zero-padded relay session
// identifier prefix.
const SessionIDSize = 20

// RelayHeaderSize is the size of a relay frame's prefix before the codec
// payload: session identifier followed by the audio packet header.
const RelayHeaderSize = SessionIDSize + HeaderSize

// SessionID is a fixed 20-byte, zero-padded relay session identifier.
type SessionID [SessionIDSize]byte

// NewSessionID copies s into a zero-padded SessionID, truncating if s is
// longer than SessionIDSize.
func NewSessionID(s string) SessionID {
	var id SessionID
	copy(id[:], s)
	return id
}

// EncodeRelay builds a relay frame: session identifier, then the audio
// header, then payload.
func EncodeRelay(session SessionID, h AudioHeader, payload []byte) []byte {
	buf := make([]byte, RelayHeaderSize+len(payload))
	copy(buf[0:SessionIDSize], session[:])
	h.EncodeInto(buf[SessionIDSize : SessionIDSize+HeaderSize])
	copy(buf[RelayHeaderSize:], payload)
	return buf
}

// DecodeRelay parses a relay frame into its session identifier, audio
// header, and payload slice (a view into data, not a copy). ok is false if
// data is shorter than RelayHeaderSize.
func DecodeRelay(data []byte) (session SessionID, h AudioHeader, payload []byte, ok bool) {
	if len(data) < RelayHeaderSize {
		return SessionID{}, AudioHeader{}, nil, false
	}
	copy(session[:], data[0:SessionIDSize])
	h, ok = DecodeHeader(data[SessionIDSize : SessionIDSize+HeaderSize])
	if !ok {
		return SessionID{}, AudioHeader{}, nil, false
	}
	return session, h, data[RelayHeaderSize:], true
}

// IsSelfLoop reports whether a relay frame's session identifier matches the
// local session identifier, meaning the relay echoed our own frame back to
// us. Receivers must discard such frames.
func IsSelfLoop(frameSession, local SessionID) bool {
	return frameSession == local
}
