package stream

import (
	"fmt"
	"testing"
	"time"

	"github.com/loopwire/voicecore/codec"
	"github.com/loopwire/voicecore/wire"
)

// waitUntil spins until cond reports true or timeout elapses.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("condition not met within %v", timeout)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func silentFrames(n, frameLen int) [][]int16 {
	frames := make([][]int16, n)
	for i := range frames {
		frames[i] = make([]int16, frameLen)
	}
	return frames
}

func TestBindTransitionsIdleToBound(t *testing.T) {
	ctrl := NewController(&fakeDeviceSelector{}, nil, nil, wire.NewSessionID("local"))
	if ctrl.State() != StateIdle {
		t.Fatalf("new controller state = %s, want Idle", ctrl.State())
	}
	port, err := ctrl.Bind(0)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if port == 0 {
		t.Fatalf("Bind(0) returned ephemeral port 0")
	}
	if ctrl.State() != StateBound {
		t.Fatalf("state after Bind = %s, want Bound", ctrl.State())
	}
	if err := ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if ctrl.State() != StateIdle {
		t.Fatalf("state after Stop = %s, want Idle", ctrl.State())
	}
}

func TestBindWhileNotIdleRejected(t *testing.T) {
	ctrl := NewController(&fakeDeviceSelector{}, nil, nil, wire.NewSessionID("local"))
	if _, err := ctrl.Bind(0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, err := ctrl.Bind(0); err == nil {
		t.Fatalf("second Bind on a Bound controller should fail")
	}
}

func TestStartDirectRequiresAPeer(t *testing.T) {
	ctrl := NewController(&fakeDeviceSelector{capture: newFakeCapture(nil), playback: newFakePlayback()}, nil, nil, wire.NewSessionID("local"))
	if _, err := ctrl.Bind(0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := ctrl.StartDirect(); err == nil {
		t.Fatalf("start_direct with no peers should fail")
	}
}

func TestStartRelayRequiresConfiguration(t *testing.T) {
	ctrl := NewController(&fakeDeviceSelector{capture: newFakeCapture(nil), playback: newFakePlayback()}, nil, nil, wire.NewSessionID("local"))
	if _, err := ctrl.Bind(0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := ctrl.StartRelay(); err == nil {
		t.Fatalf("start_relay with no relay configured should fail")
	}
}

// TestLoopbackDirectPerfectNetwork is the scenario from spec §8: bind a
// socket, add itself (127.0.0.1:port) as a peer, stream 100 silent frames,
// and expect sent == received == 100 with no losses and a non-empty
// playback ring.
func TestLoopbackDirectPerfectNetwork(t *testing.T) {
	capture := newFakeCapture(silentFrames(100, codec.FrameSamples(DefaultChannels)))
	playback := newFakePlayback()
	devices := &fakeDeviceSelector{capture: capture, playback: playback}

	ctrl := NewController(devices, nil, nil, wire.NewSessionID("loopback-test"))
	port, err := ctrl.Bind(0)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := ctrl.AddPeer(fmt.Sprintf("127.0.0.1:%d", port)); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if err := ctrl.StartDirect(); err != nil {
		t.Fatalf("StartDirect: %v", err)
	}

	waitUntil(t, 5*time.Second, func() bool {
		s := ctrl.GetStats()
		return s.Sent >= 100 && s.Received >= 100
	})

	stats := ctrl.GetStats()
	if err := ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if stats.Sent != 100 {
		t.Errorf("packets_sent = %d, want 100", stats.Sent)
	}
	if stats.Received != 100 {
		t.Errorf("packets_received = %d, want 100", stats.Received)
	}
	if stats.Lost != 0 {
		t.Errorf("packets_lost = %d, want 0", stats.Lost)
	}
	if playback.frameCount() == 0 {
		t.Errorf("expected at least one frame written to the playback device")
	}
}

func TestSetMutedDiscardsBeforeEncoding(t *testing.T) {
	capture := newFakeCapture(silentFrames(20, codec.FrameSamples(DefaultChannels)))
	playback := newFakePlayback()
	devices := &fakeDeviceSelector{capture: capture, playback: playback}

	ctrl := NewController(devices, nil, nil, wire.NewSessionID("muted-test"))
	port, err := ctrl.Bind(0)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := ctrl.AddPeer(fmt.Sprintf("127.0.0.1:%d", port)); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	ctrl.SetMuted(true)
	if err := ctrl.StartDirect(); err != nil {
		t.Fatalf("StartDirect: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	stats := ctrl.GetStats()
	if err := ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stats.Sent != 0 {
		t.Errorf("packets_sent while muted = %d, want 0", stats.Sent)
	}
}

func TestSetBitrateClampsAndAppliesLive(t *testing.T) {
	devices := &fakeDeviceSelector{capture: newFakeCapture(nil), playback: newFakePlayback()}
	ctrl := NewController(devices, nil, nil, wire.NewSessionID("bitrate-test"))
	ctrl.SetBitrate(1) // below MinBitrateKbps
	if got := ctrl.bitrateBps.Load(); got != int64(MinBitrateKbps)*1000 {
		t.Errorf("bitrate clamp low: got %d bps, want %d", got, MinBitrateKbps*1000)
	}
	ctrl.SetBitrate(9999) // above MaxBitrateKbps
	if got := ctrl.bitrateBps.Load(); got != int64(MaxBitrateKbps)*1000 {
		t.Errorf("bitrate clamp high: got %d bps, want %d", got, MaxBitrateKbps*1000)
	}

	enc, err := codec.NewEncoder(DefaultChannels, codec.DefaultBitrate)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	ctrl.enc = enc
	ctrl.SetBitrate(64)
	if got := enc.Bitrate(); got != 64000 {
		t.Errorf("live encoder bitrate = %d bps, want 64000", got)
	}
}

func TestSetJitterTargetClamps(t *testing.T) {
	devices := &fakeDeviceSelector{capture: newFakeCapture(nil), playback: newFakePlayback()}
	ctrl := NewController(devices, nil, nil, wire.NewSessionID("jitter-test"))
	ctrl.SetJitterTarget(0)
	if got := ctrl.jitterTarget.Load(); got != MinJitterTarget {
		t.Errorf("jitter target clamp low: got %d, want %d", got, MinJitterTarget)
	}
	ctrl.SetJitterTarget(1000)
	if got := ctrl.jitterTarget.Load(); got != MaxJitterTarget {
		t.Errorf("jitter target clamp high: got %d, want %d", got, MaxJitterTarget)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	ctrl := NewController(&fakeDeviceSelector{}, nil, nil, wire.NewSessionID("idle-stop"))
	if err := ctrl.Stop(); err != nil {
		t.Fatalf("Stop on an Idle controller should be a no-op, got: %v", err)
	}
}

