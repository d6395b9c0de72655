package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/loopwire/voicecore/codec"
)

var errCaptureExhausted = fmt.Errorf("fake capture device: no more frames")

// fakeCaptureStream yields a fixed queue of frames, pacing each Read at one
// frame duration to stand in for a real blocking device, then returns
// errCaptureExhausted once the queue is drained — stopping captureLoop
// cleanly at an exact, deterministic frame count instead of free-running
// past it.
type fakeCaptureStream struct {
	mu     sync.Mutex
	frames [][]int16
	pos    int
	closed bool
}

func newFakeCapture(frames [][]int16) *fakeCaptureStream {
	return &fakeCaptureStream{frames: frames}
}

func (f *fakeCaptureStream) Read(frame []int16) error {
	time.Sleep(codec.FrameDurationMs * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos >= len(f.frames) {
		return errCaptureExhausted
	}
	copy(frame, f.frames[f.pos])
	f.pos++
	return nil
}

func (f *fakeCaptureStream) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// fakePlaybackStream records every frame written to it.
type fakePlaybackStream struct {
	mu      sync.Mutex
	written [][]int16
	closed  bool
}

func newFakePlayback() *fakePlaybackStream {
	return &fakePlaybackStream{}
}

func (f *fakePlaybackStream) Write(frame []int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]int16(nil), frame...)
	f.written = append(f.written, cp)
	return nil
}

func (f *fakePlaybackStream) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakePlaybackStream) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

// fakeDeviceSelector hands out a single preconfigured capture/playback pair,
// ignoring the requested name.
type fakeDeviceSelector struct {
	capture  *fakeCaptureStream
	playback *fakePlaybackStream
	openErr  error
}

func (d *fakeDeviceSelector) OpenCapture(name string, channels, sampleRate int) (CaptureStream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.capture, nil
}

func (d *fakeDeviceSelector) OpenPlayback(name string, channels, sampleRate int) (PlaybackStream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.playback, nil
}
