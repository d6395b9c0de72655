package stream

import (
	"encoding/hex"
	"log"
	"net"
	"time"

	"github.com/loopwire/voicecore/codec"
	"github.com/loopwire/voicecore/transport"
	"github.com/loopwire/voicecore/wire"
)

// receiveTask is the Receive Pipeline's read loop: a 100ms read timeout so
// stop() is observed promptly, per datagram routed to demux/loss-detect/
// decode/jitter-push.
func (c *Controller) receiveTask() {
	defer c.wg.Done()

	c.mu.Lock()
	ep := c.ep
	c.mu.Unlock()

	buf := make([]byte, transport.MaxDatagramSize)
	for c.running.Load() {
		if err := ep.SetReadDeadline(time.Now().Add(receiveReadTimeout)); err != nil {
			log.Printf("[stream] set read deadline: %v", err)
			return
		}
		n, src, err := ep.Receive(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			log.Printf("[stream] receive: %v", err)
			continue
		}
		c.handleDatagram(buf[:n], src)
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// handleDatagram implements spec §4.7 steps 1-3: keepalive/undersize
// filtering, relay demultiplexing with self-loop rejection, and header
// parsing.
func (c *Controller) handleDatagram(data []byte, src *net.UDPAddr) {
	if wire.IsKeepalive(data) {
		return
	}

	mode := Mode(c.mode.Load())

	var hdr wire.AudioHeader
	var payload []byte
	var key string

	if mode == ModeRelay {
		session, h, p, ok := wire.DecodeRelay(data)
		if !ok {
			return
		}
		if wire.IsSelfLoop(session, c.localSession) {
			return
		}
		hdr, payload = h, p
		key = "relay:" + hex.EncodeToString(session[:])
	} else {
		h, ok := wire.DecodeHeader(data)
		if !ok {
			return
		}
		hdr = h
		payload = data[wire.HeaderSize:]
		key = src.String()
	}

	p, err := c.getOrCreatePeer(key, src)
	if err != nil {
		log.Printf("[stream] create peer state for %s: %v", key, err)
		return
	}
	c.ingest(p, hdr, payload)
}

func (c *Controller) getOrCreatePeer(key string, addr *net.UDPAddr) (*peer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.peers[key]; ok {
		return p, nil
	}
	p, err := newPeer(addr, c.channels)
	if err != nil {
		return nil, err
	}
	c.peers[key] = p
	c.peerOrder = append(c.peerOrder, key)
	return p, nil
}

// ingest implements spec §4.7 steps 4-5: per-peer loss detection with
// FEC-aware/PLC concealment, then normal decode and jitter-buffer push.
func (c *Controller) ingest(p *peer, hdr wire.AudioHeader, payload []byte) {
	if p.retractIfConcealed(hdr.Sequence) {
		c.lost.Add(^uint64(0)) // subtract 1: this was a late reorder, not a loss
	}

	last, haveLast := p.lastSeqSnapshot()

	if haveLast {
		delta := int32(hdr.Sequence - last)
		if delta > 1 && delta <= 10 {
			n := uint32(delta - 1)
			for i := uint32(1); i <= n; i++ {
				missingSeq := last + i
				p.markConcealed(missingSeq)
				if frame := concealFrame(p.dec, payload, i == n); frame != nil {
					p.pushJitter(missingSeq, frame)
				}
			}
			p.recordLost(uint64(n))
			c.lost.Add(uint64(n))
		}
	}

	frame, err := p.dec.Decode(payload)
	if err != nil {
		log.Printf("[stream] decode from %s: %v", p.addr, err)
		return
	}

	p.recordReceived(hdr.Sequence, rms(frame))
	c.received.Add(1)
	p.pushJitter(hdr.Sequence, frame)
}

// concealFrame synthesizes one missing frame. The frame immediately
// preceding the packet that just arrived may be recoverable from that
// packet's embedded in-band FEC data; every earlier gap frame falls back to
// plain packet-loss concealment.
func concealFrame(dec *codec.Decoder, arrivedPayload []byte, tryFEC bool) []int16 {
	if tryFEC {
		if frame, err := dec.DecodeFEC(arrivedPayload); err == nil {
			return frame
		}
	}
	frame, err := dec.Decode(nil)
	if err != nil {
		return nil
	}
	return frame
}

// jitterDrainLoop periodically pops one frame per active peer, mixes them,
// and appends the result to the shared playback ring.
func (c *Controller) jitterDrainLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(codec.FrameDurationMs * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.drainJitterBuffers()
		}
	}
}

func (c *Controller) drainJitterBuffers() {
	c.mu.Lock()
	peers := make([]*peer, 0, len(c.peers))
	for _, p := range c.peers {
		peers = append(peers, p)
	}
	ring := c.ring
	c.mu.Unlock()
	if ring == nil {
		return
	}

	frames := make([][]int16, 0, len(peers))
	for _, p := range peers {
		if frame, ok := p.popJitter(); ok {
			frames = append(frames, frame)
		}
	}
	if len(frames) == 0 {
		return
	}
	ring.Push(mixFrames(frames))
}

// outputLoop is the real-time output "callback": it blocks writing one
// frame at a time to the playback device, substituting silence when the
// ring has nothing buffered.
func (c *Controller) outputLoop() {
	defer c.wg.Done()

	c.mu.Lock()
	playback := c.playback
	channels := c.channels
	c.mu.Unlock()

	frameLen := codec.FrameSamples(channels)
	out := make([]int16, frameLen)
	for c.running.Load() {
		n := c.ring.TryDrain(out)
		for i := n; i < frameLen; i++ {
			out[i] = 0
		}
		if err := playback.Write(out); err != nil {
			log.Printf("[stream] playback device write: %v", err)
			return
		}
	}
}
