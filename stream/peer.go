package stream

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/loopwire/voicecore/codec"
	"github.com/loopwire/voicecore/jitter"
)

// PeerStats is the per-peer statistics snapshot exposed to callers, per
// spec §3's Peer Entry.
type PeerStats struct {
	Addr            string
	PacketsReceived uint64
	PacketsLost     uint64
	LastSequence    uint32
	AudioLevel      float64 // RMS, in [0,1]
}

// peer holds one remote endpoint's address, optional reflexive address, and
// the receive-side state (decoder and jitter buffer). The decoder is only
// ever touched by the receive task; the jitter buffer is shared with the
// jitter-drain tick and is guarded by mu, per spec §5's "jitter buffers ...
// guarded by mutual exclusion" policy.
type peer struct {
	addr      *net.UDPAddr
	reflexive *net.UDPAddr // optional, filled in by NAT probing

	dec *codec.Decoder

	mu              sync.Mutex
	jb              *jitter.Buffer
	packetsReceived uint64
	packetsLost     uint64
	lastSequence    uint32
	haveLastSeq     bool
	audioLevel      float64
	concealed       map[uint32]struct{}
}

func newPeer(addr *net.UDPAddr, channels int) (*peer, error) {
	dec, err := codec.NewDecoder(channels)
	if err != nil {
		return nil, err
	}
	return &peer{
		addr:      addr,
		dec:       dec,
		jb:        jitter.New(),
		concealed: make(map[uint32]struct{}),
	}, nil
}

func (p *peer) stats() PeerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PeerStats{
		Addr:            p.addr.String(),
		PacketsReceived: p.packetsReceived,
		PacketsLost:     p.packetsLost,
		LastSequence:    p.lastSequence,
		AudioLevel:      p.audioLevel,
	}
}

// recordReceived updates stats for a successfully decoded frame. The
// sequence watermark only ever advances; a reordered, already-superseded
// packet still counts toward packets_received but does not regress
// last_sequence (which is the reference point for future loss detection).
func (p *peer) recordReceived(seq uint32, level float64) {
	p.mu.Lock()
	if !p.haveLastSeq || int32(seq-p.lastSequence) > 0 {
		p.lastSequence = seq
		p.haveLastSeq = true
	}
	p.packetsReceived++
	p.audioLevel = level
	p.mu.Unlock()
}

// lastSeqSnapshot returns the current watermark and whether one exists yet.
func (p *peer) lastSeqSnapshot() (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSequence, p.haveLastSeq
}

func (p *peer) recordLost(n uint64) {
	p.mu.Lock()
	p.packetsLost += n
	p.mu.Unlock()
}

// markConcealed records sequence as synthesized so a later, in-window
// arrival for it can retract the provisional loss instead of double
// counting a reorder as a loss.
func (p *peer) markConcealed(sequence uint32) {
	p.mu.Lock()
	p.concealed[sequence] = struct{}{}
	p.mu.Unlock()
}

// retractIfConcealed reports whether sequence was previously concealed and,
// if so, clears the mark and decrements packetsLost: the frame that just
// arrived was a late reorder, not a real loss.
func (p *peer) retractIfConcealed(sequence uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.concealed[sequence]; !ok {
		return false
	}
	delete(p.concealed, sequence)
	if p.packetsLost > 0 {
		p.packetsLost--
	}
	return true
}

// pushJitter inserts a decoded (or concealed) frame into the jitter buffer
// under the peer's lock, since the receive task and the jitter-drain tick
// touch it from different goroutines. jitter.Buffer stores opaque byte
// payloads, so PCM samples are packed/unpacked at this boundary.
func (p *peer) pushJitter(sequence uint32, frame []int16) {
	p.mu.Lock()
	p.jb.Push(sequence, pcmToBytes(frame))
	p.mu.Unlock()
}

// popJitter pops the next playable frame from the jitter buffer.
func (p *peer) popJitter() ([]int16, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw, ok := p.jb.Pop()
	if !ok {
		return nil, false
	}
	return bytesToPCM(raw), true
}

func pcmToBytes(frame []int16) []byte {
	buf := make([]byte, len(frame)*2)
	for i, s := range frame {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func bytesToPCM(buf []byte) []int16 {
	out := make([]int16, len(buf)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return out
}

// jitterLen returns the number of frames currently buffered.
func (p *peer) jitterLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jb.Len()
}
