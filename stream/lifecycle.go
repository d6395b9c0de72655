package stream

import (
	"fmt"
	"log"

	"github.com/loopwire/voicecore/codec"
)

// StartDirect transitions Bound -> Streaming sending media straight to each
// configured peer. Requires at least one peer.
func (c *Controller) StartDirect() error {
	c.mu.Lock()
	peerCount := len(c.peers)
	c.mu.Unlock()
	if peerCount == 0 {
		return newErr(ErrStateInvalid, "start_direct", fmt.Errorf("no peers configured"))
	}
	return c.start(ModeDirect)
}

// StartRelay transitions Bound -> Streaming sending media through the
// configured relay. Requires a relay address and session id.
func (c *Controller) StartRelay() error {
	c.mu.Lock()
	hasRelay := c.hasRelay
	c.mu.Unlock()
	if !hasRelay {
		return newErr(ErrStateInvalid, "start_relay", fmt.Errorf("no relay configured"))
	}
	return c.start(ModeRelay)
}

func (c *Controller) start(mode Mode) error {
	if c.State() != StateBound {
		return newErr(ErrStateInvalid, "start", fmt.Errorf("controller is %s, want Bound", c.State()))
	}

	c.mu.Lock()
	channels := c.channels
	inputName := c.inputName
	outputName := c.outputName
	c.mu.Unlock()

	enc, err := codec.NewEncoder(channels, int(c.bitrateBps.Load()))
	if err != nil {
		return newErr(ErrCodec, "start", err)
	}

	capture, err := c.devices.OpenCapture(inputName, channels, codec.SampleRate)
	if err != nil {
		return newErr(ErrDeviceOpen, "start", err)
	}
	playback, err := c.devices.OpenPlayback(outputName, channels, codec.SampleRate)
	if err != nil {
		capture.Close()
		return newErr(ErrDeviceOpen, "start", err)
	}

	c.mu.Lock()
	c.enc = enc
	c.capture = capture
	c.playback = playback
	c.channels = channels
	c.mu.Unlock()

	c.ring = newPlaybackRing()
	c.pcmQueue = make(chan []int16, pcmQueueCapacity)
	c.stopCh = make(chan struct{})
	c.mode.Store(int32(mode))
	c.sequence.Store(0)
	c.sent.Store(0)
	c.received.Store(0)
	c.lost.Store(0)

	c.running.Store(true)
	c.state.Store(int32(StateStreaming))

	c.wg.Add(6)
	go c.captureLoop()
	go c.sendTask()
	go c.receiveTask()
	go c.jitterDrainLoop()
	go c.outputLoop()
	go c.keepaliveTask()

	return nil
}

// Stop transitions Streaming (or Bound) back to Idle: signals every task to
// exit, waits for them, releases devices, and clears the peer list, jitter
// buffers, playback ring, and sequence counter.
func (c *Controller) Stop() error {
	if c.State() == StateIdle {
		return nil
	}

	c.running.Store(false)
	if c.stopCh != nil {
		close(c.stopCh)
	}
	c.wg.Wait()

	c.mu.Lock()
	if c.capture != nil {
		if err := c.capture.Close(); err != nil {
			log.Printf("[stream] close capture device: %v", err)
		}
		c.capture = nil
	}
	if c.playback != nil {
		if err := c.playback.Close(); err != nil {
			log.Printf("[stream] close playback device: %v", err)
		}
		c.playback = nil
	}
	if c.ep != nil {
		if err := c.ep.Close(); err != nil {
			log.Printf("[stream] close socket: %v", err)
		}
		c.ep = nil
	}
	c.peers = make(map[string]*peer)
	c.peerOrder = nil
	c.enc = nil
	c.mu.Unlock()

	c.ring = nil
	c.pcmQueue = nil
	c.stopCh = nil
	c.sequence.Store(0)
	c.mode.Store(int32(ModeNone))
	c.state.Store(int32(StateIdle))

	return nil
}
