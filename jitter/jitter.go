// Package jitter implements the per-peer jitter buffer: a sequence-ordered
// reorder window with an adaptive target depth, sized in 10 ms frame units.
package jitter

// MinDepth and MaxDepth bound target_depth, in 10 ms frame units (20 ms and
// 100 ms of buffered audio respectively).
const (
	MinDepth = 2
	MaxDepth = 10

	// DefaultDepth is the starting target_depth for a newly created Buffer.
	DefaultDepth = 3

	// adaptEvery is how many Push calls elapse between adapt runs.
	adaptEvery = 100

	lateRatioHigh = 0.05
	lateRatioLow  = 0.01
)

// entry is one buffered decoded frame, keyed by its sequence number.
type entry struct {
	sequence uint32
	frame    []byte
}

// Buffer is a single peer's jitter buffer. Not safe for concurrent use; the
// receive pipeline is its sole owner.
type Buffer struct {
	entries map[uint32]entry

	nextExpected uint32
	primedNext   bool // false until the first Pop; until then next_expected follows the lowest pushed sequence
	targetDepth  int

	lateCount  int
	totalCount int
}

// New creates a jitter buffer with target_depth starting at DefaultDepth.
func New() *Buffer {
	return &Buffer{
		entries:     make(map[uint32]entry),
		targetDepth: DefaultDepth,
	}
}

// TargetDepth returns the current adaptive target depth, in 10 ms frames.
func (b *Buffer) TargetDepth() int { return b.targetDepth }

// Len returns the number of frames currently buffered.
func (b *Buffer) Len() int { return len(b.entries) }

// seqDistance returns b-a as a signed 32-bit distance, the modular "how far
// ahead is b of a" rule used throughout the wraparound-safe comparisons here.
func seqDistance(a, b uint32) int32 {
	return int32(b - a)
}

// Push inserts a decoded frame at sequence into the buffer, per spec:
// increment total_count; discard if too far behind next_expected; evict the
// lowest-sequence entry while at or above 2*target_depth; insert/replace;
// adapt every adaptEvery pushes.
func (b *Buffer) Push(sequence uint32, frame []byte) {
	if !b.primedNext && (len(b.entries) == 0 || seqDistance(b.nextExpected, sequence) < 0) {
		b.nextExpected = sequence
	}

	b.totalCount++

	if seqDistance(b.nextExpected, sequence) < -int32(2*b.targetDepth) {
		b.lateCount++
		if b.totalCount >= adaptEvery {
			b.adapt()
		}
		return
	}

	for len(b.entries) >= 2*b.targetDepth {
		b.evictLowest()
	}

	b.entries[sequence] = entry{sequence: sequence, frame: frame}

	if b.totalCount >= adaptEvery {
		b.adapt()
	}
}

// evictLowest removes the buffered entry with the smallest sequence number,
// measured as distance from next_expected so the comparison stays correct
// across a u32 wraparound.
func (b *Buffer) evictLowest() {
	seq, ok := b.lowestSequence()
	if !ok {
		return
	}
	delete(b.entries, seq)
}

func (b *Buffer) lowestSequence() (uint32, bool) {
	var (
		best    uint32
		bestSet bool
		bestD   int32
	)
	for seq := range b.entries {
		d := seqDistance(b.nextExpected, seq)
		if !bestSet || d < bestD {
			best, bestD, bestSet = seq, d, true
		}
	}
	return best, bestSet
}

// adapt adjusts target_depth from the late/total ratio accumulated since the
// last adapt run, then resets both counters.
func (b *Buffer) adapt() {
	if b.totalCount > 0 {
		ratio := float64(b.lateCount) / float64(b.totalCount)
		switch {
		case ratio > lateRatioHigh && b.targetDepth < MaxDepth:
			b.targetDepth++
		case ratio < lateRatioLow && b.targetDepth > MinDepth:
			b.targetDepth--
		}
	}
	b.lateCount = 0
	b.totalCount = 0
}

// Pop retrieves the next frame to play, per spec: exact match at
// next_expected; otherwise skip ahead to the lowest buffered sequence once
// the buffer holds at least target_depth/2 frames; otherwise report an
// underrun so the caller can insert silence (PLC).
func (b *Buffer) Pop() (frame []byte, ok bool) {
	if e, found := b.entries[b.nextExpected]; found {
		delete(b.entries, b.nextExpected)
		b.nextExpected++
		b.primedNext = true
		return e.frame, true
	}

	if len(b.entries) >= b.targetDepth/2 {
		seq, found := b.lowestSequence()
		if found {
			e := b.entries[seq]
			delete(b.entries, seq)
			b.nextExpected = seq + 1
			b.primedNext = true
			return e.frame, true
		}
	}

	return nil, false
}
