package stream

import (
	"log"
	"time"

	"github.com/loopwire/voicecore/codec"
	"github.com/loopwire/voicecore/wire"
)

// pcmQueueCapacity bounds the capture-to-send handoff channel: 32 frames is
// 320ms at 10ms/frame, comfortably more than a send hiccup should ever need.
const pcmQueueCapacity = 32

// captureLoop is the real-time input "callback": it blocks on the capture
// device for one 10ms frame at a time and pushes it onto the bounded PCM
// queue, dropping the newest frame rather than ever blocking the device.
func (c *Controller) captureLoop() {
	defer c.wg.Done()

	c.mu.Lock()
	capture := c.capture
	channels := c.channels
	c.mu.Unlock()

	frameLen := codec.FrameSamples(channels)
	for c.running.Load() {
		frame := make([]int16, frameLen)
		if err := capture.Read(frame); err != nil {
			log.Printf("[stream] capture device read: %v", err)
			return
		}
		select {
		case c.pcmQueue <- frame:
		default:
			// Bounded queue is full: drop the newest frame rather than
			// blocking the real-time capture thread.
		}
	}
}

// sendTask consumes captured PCM, computes input level, and — unless
// muted — frames, encodes, and transmits it to every peer or to the relay.
func (c *Controller) sendTask() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		case frame, ok := <-c.pcmQueue:
			if !ok {
				return
			}
			c.inputLevel.Store(rms(frame) * 100)

			if c.muted.Load() {
				continue
			}
			c.encodeAndSend(frame)
		}
	}
}

func (c *Controller) encodeAndSend(frame []int16) {
	c.mu.Lock()
	enc := c.enc
	channels := c.channels
	c.mu.Unlock()

	payload, err := enc.Encode(frame)
	if err != nil {
		log.Printf("[stream] encode: %v", err)
		return
	}

	seq := c.sequence.Add(1) - 1
	hdr := wire.AudioHeader{
		Sequence:    seq,
		TimestampUs: uint64(time.Now().UnixMicro()),
		SampleRate:  codec.SampleRate,
		Channels:    uint8(channels),
		PayloadLen:  uint16(len(payload)),
	}

	switch Mode(c.mode.Load()) {
	case ModeDirect:
		c.sendDirect(hdr, payload)
	case ModeRelay:
		c.sendRelay(hdr, payload)
	}
	c.sent.Add(1)
}

func (c *Controller) sendDirect(hdr wire.AudioHeader, payload []byte) {
	datagram := make([]byte, wire.HeaderSize+len(payload))
	hdr.EncodeInto(datagram[:wire.HeaderSize])
	copy(datagram[wire.HeaderSize:], payload)

	c.mu.Lock()
	ep := c.ep
	peers := make([]*peer, 0, len(c.peers))
	for _, p := range c.peers {
		peers = append(peers, p)
	}
	c.mu.Unlock()

	for _, p := range peers {
		if err := ep.Send(p.addr, datagram); err != nil {
			log.Printf("[stream] send to %s: %v", p.addr, err)
		}
	}
}

func (c *Controller) sendRelay(hdr wire.AudioHeader, payload []byte) {
	c.mu.Lock()
	ep := c.ep
	relayAddr := c.relayAddr
	session := c.relaySession
	c.mu.Unlock()

	frame := wire.EncodeRelay(session, hdr, payload)
	if err := ep.Send(relayAddr, frame); err != nil {
		log.Printf("[stream] send to relay %s: %v", relayAddr, err)
	}
}

// keepaliveTask sends a 1-byte keepalive to every peer (direct mode) or the
// relay (relay mode) every KeepaliveInterval while Streaming.
func (c *Controller) keepaliveTask() {
	defer c.wg.Done()

	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sendKeepalives()
		}
	}
}

func (c *Controller) sendKeepalives() {
	c.mu.Lock()
	ep := c.ep
	mode := Mode(c.mode.Load())
	relayAddr := c.relayAddr
	peers := make([]*peer, 0, len(c.peers))
	for _, p := range c.peers {
		peers = append(peers, p)
	}
	c.mu.Unlock()

	switch mode {
	case ModeDirect:
		for _, p := range peers {
			if err := ep.Send(p.addr, wire.Keepalive); err != nil {
				log.Printf("[stream] keepalive to %s: %v", p.addr, err)
			}
		}
	case ModeRelay:
		if err := ep.Send(relayAddr, wire.Keepalive); err != nil {
			log.Printf("[stream] keepalive to relay %s: %v", relayAddr, err)
		}
	}
}
