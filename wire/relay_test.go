package wire

import "testing"

func TestRelayFrameRoundTrip(t *testing.T) {
	session := NewSessionID("room-42")
	h := AudioHeader{Sequence: 7, TimestampUs: 9000, SampleRate: 48000, Channels: 1, PayloadLen: 4}
	payload := []byte{1, 2, 3, 4}

	frame := EncodeRelay(session, h, payload)
	if len(frame) != RelayHeaderSize+len(payload) {
		t.Fatalf("frame length = %d, want %d", len(frame), RelayHeaderSize+len(payload))
	}

	gotSession, gotHeader, gotPayload, ok := DecodeRelay(frame)
	if !ok {
		t.Fatal("DecodeRelay: ok=false on valid frame")
	}
	if gotSession != session {
		t.Fatalf("session mismatch: got %v, want %v", gotSession, session)
	}
	if gotHeader != h {
		t.Fatalf("header mismatch: got %+v, want %+v", gotHeader, h)
	}
	if string(gotPayload) != string(payload) {
		t.Fatalf("payload mismatch: got % x, want % x", gotPayload, payload)
	}
}

func TestSessionIDZeroPadded(t *testing.T) {
	id := NewSessionID("ab")
	for i := 2; i < SessionIDSize; i++ {
		if id[i] != 0 {
			t.Fatalf("byte %d = %x, want zero padding", i, id[i])
		}
	}
}

func TestIsSelfLoop(t *testing.T) {
	local := NewSessionID("self")
	other := NewSessionID("other")

	if !IsSelfLoop(local, local) {
		t.Fatal("IsSelfLoop: false for matching session identifiers")
	}
	if IsSelfLoop(other, local) {
		t.Fatal("IsSelfLoop: true for distinct session identifiers")
	}
}

func TestDecodeRelayShort(t *testing.T) {
	if _, _, _, ok := DecodeRelay(make([]byte, RelayHeaderSize-1)); ok {
		t.Fatal("DecodeRelay: ok=true on undersized buffer")
	}
}
