package stream

import "sync"

// playbackRingCapacity is the hard cap on buffered samples: 9600
// interleaved samples, i.e. 100ms of 48kHz stereo audio.
const playbackRingCapacity = 9600

// playbackRing is the single shared buffer the output callback drains.
// Pushes from multiple peers for the same scheduling tick are expected to
// be pre-mixed by the caller; Push only handles overflow (drop oldest).
type playbackRing struct {
	mu      sync.Mutex
	buf     []int16
	dropped uint64
}

func newPlaybackRing() *playbackRing {
	return &playbackRing{buf: make([]int16, 0, playbackRingCapacity)}
}

// Push appends frame to the ring, dropping samples from the front when the
// result would exceed playbackRingCapacity.
func (r *playbackRing) Push(frame []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = append(r.buf, frame...)
	if over := len(r.buf) - playbackRingCapacity; over > 0 {
		r.buf = r.buf[over:]
		r.dropped += uint64(over)
	}
}

// Drain removes up to len(out) samples from the front of the ring into out,
// returning the number of samples written. It waits for the ring's lock;
// the real-time output loop uses TryDrain instead.
func (r *playbackRing) Drain(out []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := copy(out, r.buf)
	r.buf = r.buf[n:]
	return n
}

// TryDrain is Drain's try-lock variant for the real-time output callback:
// on contention it substitutes silence rather than blocking.
func (r *playbackRing) TryDrain(out []int16) int {
	if !r.mu.TryLock() {
		for i := range out {
			out[i] = 0
		}
		return 0
	}
	defer r.mu.Unlock()

	n := copy(out, r.buf)
	r.buf = r.buf[n:]
	return n
}

// Len returns the number of samples currently buffered.
func (r *playbackRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// mixFrames sums multiple equal-length PCM frames sample-by-sample,
// saturating to the int16 range (the fixed-point equivalent of clamping a
// normalized float signal to ±1.0).
func mixFrames(frames [][]int16) []int16 {
	if len(frames) == 0 {
		return nil
	}
	if len(frames) == 1 {
		return frames[0]
	}
	n := len(frames[0])
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		var sum int32
		for _, f := range frames {
			if i < len(f) {
				sum += int32(f[i])
			}
		}
		out[i] = saturateInt16(sum)
	}
	return out
}

func saturateInt16(v int32) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}
