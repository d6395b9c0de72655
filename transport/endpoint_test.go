package transport

import (
	"net"
	"testing"
	"time"
)

func TestBindAssignsPort(t *testing.T) {
	ep, err := Bind(0)
	if err != nil {
		t.Fatalf("Bind(0) error: %v", err)
	}
	defer ep.Close()

	if ep.LocalPort() == 0 {
		t.Fatal("LocalPort() = 0 after binding an ephemeral port")
	}
}

func TestSendReceiveLoopback(t *testing.T) {
	a, err := Bind(0)
	if err != nil {
		t.Fatalf("Bind(0) for a: %v", err)
	}
	defer a.Close()

	b, err := Bind(0)
	if err != nil {
		t.Fatalf("Bind(0) for b: %v", err)
	}
	defer b.Close()

	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: b.LocalPort()}
	payload := []byte("hello voicecore")
	if err := a.Send(dst, payload); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if err := b.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SetReadDeadline() error: %v", err)
	}
	buf := make([]byte, MaxDatagramSize)
	n, src, err := b.Receive(buf)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("Receive() payload = %q, want %q", buf[:n], payload)
	}
	if src.Port != a.LocalPort() {
		t.Fatalf("Receive() src port = %d, want %d", src.Port, a.LocalPort())
	}
}

func TestSendRejectsOversizedDatagram(t *testing.T) {
	ep, err := Bind(0)
	if err != nil {
		t.Fatalf("Bind(0) error: %v", err)
	}
	defer ep.Close()

	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: ep.LocalPort()}
	if err := ep.Send(dst, make([]byte, MaxDatagramSize+1)); err == nil {
		t.Fatal("Send() accepted an oversized datagram")
	}
}

func TestReceiveTimesOut(t *testing.T) {
	ep, err := Bind(0)
	if err != nil {
		t.Fatalf("Bind(0) error: %v", err)
	}
	defer ep.Close()

	if err := ep.SetReadDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		t.Fatalf("SetReadDeadline() error: %v", err)
	}
	buf := make([]byte, MaxDatagramSize)
	if _, _, err := ep.Receive(buf); err == nil {
		t.Fatal("Receive() succeeded with nothing sent and a short deadline")
	}
}
