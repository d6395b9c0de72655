// Package stream implements the Stream Controller, Send/Receive Pipelines,
// and Peer Entry described in spec §3, §4.6–§4.8: the engine that ties the
// wire, transport, natprobe, codec, and jitter packages into a running
// peer-to-peer voice session.
package stream

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loopwire/voicecore/codec"
	"github.com/loopwire/voicecore/natprobe"
	"github.com/loopwire/voicecore/transport"
	"github.com/loopwire/voicecore/wire"
)

// State is the Stream Controller's lifecycle state: Idle -> Bound ->
// Streaming -> Idle.
type State int32

const (
	StateIdle State = iota
	StateBound
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateBound:
		return "Bound"
	case StateStreaming:
		return "Streaming"
	default:
		return "Unknown"
	}
}

// Mode selects how Streaming sends and receives media.
type Mode int32

const (
	ModeNone Mode = iota
	ModeDirect
	ModeRelay
)

// Tunables from spec §4.8/§5.
const (
	KeepaliveInterval   = 5 * time.Second
	RelayLatencyTimeout = 2 * time.Second
	receiveReadTimeout  = 100 * time.Millisecond

	// MinJitterTarget/MaxJitterTarget bound the set_jitter_target command's
	// input clamp. This is wider than jitter.MinDepth/jitter.MaxDepth,
	// which bound the buffer's own internal adaptation; the recorded target
	// is not applied to the buffers.
	MinJitterTarget = 2
	MaxJitterTarget = 15

	MinBitrateKbps = 16
	MaxBitrateKbps = 256

	DefaultChannels = 2
)

// UdpStats is the aggregate statistics snapshot returned by get_stats.
type UdpStats struct {
	Sent       uint64
	Received   uint64
	Lost       uint64
	LossRate   float64
	Peers      int
	Running    bool
	JBSize     int
	JBTarget   int
	InputLevel float64 // RMS of the most recently captured frame, scaled to 0-100
}

// Controller is the Stream Controller.
type Controller struct {
	stunServer    *net.UDPAddr
	altStunServer *net.UDPAddr
	devices       DeviceSelector
	localSession  wire.SessionID

	state atomic.Int32
	mode  atomic.Int32

	running atomic.Bool
	muted   atomic.Bool

	sequence atomic.Uint32
	sent     atomic.Uint64
	received atomic.Uint64
	lost     atomic.Uint64

	bitrateBps   atomic.Int64
	jitterTarget atomic.Int64

	inputLevel atomicFloat64

	mu           sync.Mutex
	peers        map[string]*peer
	peerOrder    []string
	relayAddr    *net.UDPAddr
	relaySession wire.SessionID
	hasRelay     bool
	inputName    string
	outputName   string
	channels     int
	lastErr      error

	ep  *transport.Endpoint
	enc *codec.Encoder

	capture  CaptureStream
	playback PlaybackStream
	ring     *playbackRing

	pcmQueue chan []int16

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewController creates an idle Stream Controller. stunServer is the
// build-time-constant STUN endpoint (spec §6); altStunServer may be nil —
// without it, detect_nat can discover a reflexive address but cannot
// distinguish Full Cone from Symmetric NAT.
func NewController(devices DeviceSelector, stunServer, altStunServer *net.UDPAddr, localSession wire.SessionID) *Controller {
	c := &Controller{
		devices:       devices,
		stunServer:    stunServer,
		altStunServer: altStunServer,
		localSession:  localSession,
		peers:         make(map[string]*peer),
		channels:      DefaultChannels,
	}
	c.bitrateBps.Store(int64(codec.DefaultBitrate))
	c.jitterTarget.Store(3)
	c.state.Store(int32(StateIdle))
	return c
}

func (c *Controller) State() State { return State(c.state.Load()) }

// Bind opens the Datagram Endpoint on port (0 for an ephemeral port) and
// transitions Idle -> Bound.
func (c *Controller) Bind(port int) (int, error) {
	if c.State() != StateIdle {
		return 0, newErr(ErrStateInvalid, "bind", fmt.Errorf("controller is %s, want Idle", c.State()))
	}

	ep, err := transport.Bind(port)
	if err != nil {
		return 0, newErr(ErrBind, "bind", err)
	}

	c.mu.Lock()
	c.ep = ep
	c.mu.Unlock()

	c.state.Store(int32(StateBound))
	return ep.LocalPort(), nil
}

// SetPeers replaces the peer list wholesale.
func (c *Controller) SetPeers(addrs []string) error {
	peers := make(map[string]*peer, len(addrs))
	order := make([]string, 0, len(addrs))
	for _, a := range addrs {
		udpAddr, err := net.ResolveUDPAddr("udp4", a)
		if err != nil {
			return newErr(ErrAddrParse, "set_peers", err)
		}
		p, err := newPeer(udpAddr, c.channels)
		if err != nil {
			return newErr(ErrCodec, "set_peers", err)
		}
		peers[udpAddr.String()] = p
		order = append(order, udpAddr.String())
	}

	c.mu.Lock()
	c.peers = peers
	c.peerOrder = order
	c.mu.Unlock()
	return nil
}

// AddPeer adds one peer to the list, creating its decoder and jitter buffer.
func (c *Controller) AddPeer(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return newErr(ErrAddrParse, "add_peer", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := udpAddr.String()
	if _, exists := c.peers[key]; exists {
		return nil
	}
	p, err := newPeer(udpAddr, c.channels)
	if err != nil {
		return newErr(ErrCodec, "add_peer", err)
	}
	c.peers[key] = p
	c.peerOrder = append(c.peerOrder, key)
	return nil
}

// ClearPeers removes every peer.
func (c *Controller) ClearPeers() {
	c.mu.Lock()
	c.peers = make(map[string]*peer)
	c.peerOrder = nil
	c.mu.Unlock()
}

// SetDevices selects the named input/output devices used by the next
// start_direct/start_relay call.
func (c *Controller) SetDevices(input, output string) {
	c.mu.Lock()
	c.inputName = input
	c.outputName = output
	c.mu.Unlock()
}

// SetBitrate sets the encoder's target bitrate, clamped to
// [MinBitrateKbps, MaxBitrateKbps].
func (c *Controller) SetBitrate(kbps int) {
	if kbps < MinBitrateKbps {
		kbps = MinBitrateKbps
	}
	if kbps > MaxBitrateKbps {
		kbps = MaxBitrateKbps
	}
	bps := int64(kbps) * 1000
	c.bitrateBps.Store(bps)

	c.mu.Lock()
	enc := c.enc
	c.mu.Unlock()
	if enc != nil {
		if err := enc.SetBitrate(int(bps)); err != nil {
			log.Printf("[stream] set_bitrate: %v", err)
		}
	}
}

// SetJitterTarget clamps and records the jitter target, in 10ms frame
// units; get_stats reports the recorded value as jb_target. Peer jitter
// buffers do not read it: each starts at jitter.DefaultDepth and adapts
// within [jitter.MinDepth, jitter.MaxDepth] on its own.
func (c *Controller) SetJitterTarget(frames int) {
	if frames < MinJitterTarget {
		frames = MinJitterTarget
	}
	if frames > MaxJitterTarget {
		frames = MaxJitterTarget
	}
	c.jitterTarget.Store(int64(frames))
}

// SetMuted toggles whether captured PCM is discarded before encoding.
func (c *Controller) SetMuted(muted bool) {
	c.muted.Store(muted)
}

// SetRelay configures the relay address and session id used by start_relay.
func (c *Controller) SetRelay(addr string, sessionID string) error {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return newErr(ErrAddrParse, "set_relay", err)
	}
	c.mu.Lock()
	c.relayAddr = udpAddr
	c.relaySession = wire.NewSessionID(sessionID)
	c.hasRelay = true
	c.mu.Unlock()
	return nil
}

// SetPeerReflexive records a peer's previously-discovered reflexive
// address (learned out-of-band, e.g. exchanged through the signaling layer
// after each side ran detect_nat) for later use by attempt_p2p.
func (c *Controller) SetPeerReflexive(addr, reflexive string) error {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return newErr(ErrAddrParse, "set_peer_reflexive", err)
	}
	reflAddr, err := net.ResolveUDPAddr("udp4", reflexive)
	if err != nil {
		return newErr(ErrAddrParse, "set_peer_reflexive", err)
	}

	c.mu.Lock()
	p, ok := c.peers[udpAddr.String()]
	c.mu.Unlock()
	if !ok {
		return newErr(ErrStateInvalid, "set_peer_reflexive", fmt.Errorf("unknown peer %s", addr))
	}

	p.mu.Lock()
	p.reflexive = reflAddr
	p.mu.Unlock()
	return nil
}

// GetStats returns the aggregate statistics snapshot.
func (c *Controller) GetStats() UdpStats {
	sent := c.sent.Load()
	received := c.received.Load()
	lost := c.lost.Load()

	var lossRate float64
	if total := received + lost; total > 0 {
		lossRate = float64(lost) / float64(total)
	}

	c.mu.Lock()
	peerCount := len(c.peers)
	peers := make([]*peer, 0, peerCount)
	for _, p := range c.peers {
		peers = append(peers, p)
	}
	c.mu.Unlock()

	var jbSize int
	for _, p := range peers {
		jbSize += p.jitterLen()
	}

	return UdpStats{
		Sent:       sent,
		Received:   received,
		Lost:       lost,
		LossRate:   lossRate,
		Peers:      peerCount,
		Running:    c.running.Load(),
		JBSize:     jbSize,
		JBTarget:   int(c.jitterTarget.Load()),
		InputLevel: c.inputLevel.Load(),
	}
}

// InputLevel returns the most recently captured frame's RMS level, scaled
// to 0-100, for UI polling.
func (c *Controller) InputLevel() float64 {
	return c.inputLevel.Load()
}

// GetPeerStats returns a stats snapshot for every known peer.
func (c *Controller) GetPeerStats() []PeerStats {
	c.mu.Lock()
	order := append([]string(nil), c.peerOrder...)
	peers := c.peers
	c.mu.Unlock()

	out := make([]PeerStats, 0, len(order))
	for _, key := range order {
		if p, ok := peers[key]; ok {
			out = append(out, p.stats())
		}
	}
	return out
}

// DetectNAT probes the configured STUN server(s) and returns the NAT
// classification (Unknown if no alternate server was configured) and the
// primary reflexive address.
func (c *Controller) DetectNAT() (natprobe.NATType, *net.UDPAddr, error) {
	if c.State() == StateIdle {
		return natprobe.NATUnknown, nil, newErr(ErrStateInvalid, "detect_nat", fmt.Errorf("controller is Idle"))
	}

	c.mu.Lock()
	ep := c.ep
	c.mu.Unlock()

	primary, err := natprobe.Reflexive(ep, c.stunServer)
	if err != nil {
		return natprobe.NATUnknown, nil, translateProbeErr("detect_nat", err)
	}
	if c.altStunServer == nil {
		return natprobe.NATUnknown, primary, nil
	}

	alt, err := natprobe.Reflexive(ep, c.altStunServer)
	if err != nil {
		return natprobe.NATUnknown, primary, translateProbeErr("detect_nat", err)
	}
	return natprobe.Classify(primary, alt), primary, nil
}

// AttemptP2P hole-punches toward addr's reflexive address as recorded by
// SetPeerReflexive, or toward addr itself when no reflexive address has
// been recorded for that peer.
func (c *Controller) AttemptP2P(addr string) error {
	if c.State() == StateIdle {
		return newErr(ErrStateInvalid, "attempt_p2p", fmt.Errorf("controller is Idle"))
	}

	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return newErr(ErrAddrParse, "attempt_p2p", err)
	}

	c.mu.Lock()
	p, ok := c.peers[udpAddr.String()]
	ep := c.ep
	c.mu.Unlock()
	if !ok {
		return newErr(ErrStateInvalid, "attempt_p2p", fmt.Errorf("unknown peer %s", addr))
	}

	target := p.reflexive
	if target == nil {
		target = p.addr
	}
	if err := natprobe.HolePunch(ep, target); err != nil {
		return newErr(ErrSocketIO, "attempt_p2p", err)
	}
	return nil
}

// MeasureRelayLatency pings the configured relay and returns the round
// trip time, bounded by RelayLatencyTimeout.
func (c *Controller) MeasureRelayLatency() (time.Duration, error) {
	c.mu.Lock()
	relayAddr := c.relayAddr
	hasRelay := c.hasRelay
	ep := c.ep
	c.mu.Unlock()

	if !hasRelay {
		return 0, newErr(ErrStateInvalid, "measure_relay_latency", fmt.Errorf("no relay configured"))
	}
	if c.State() == StateIdle {
		return 0, newErr(ErrStateInvalid, "measure_relay_latency", fmt.Errorf("controller is Idle"))
	}

	sendTime := time.Now()
	ping := wire.EncodePing(uint64(sendTime.UnixMilli()))
	if err := ep.Send(relayAddr, ping); err != nil {
		return 0, newErr(ErrSocketIO, "measure_relay_latency", err)
	}

	if err := ep.SetReadDeadline(time.Now().Add(RelayLatencyTimeout)); err != nil {
		return 0, newErr(ErrSocketIO, "measure_relay_latency", err)
	}

	buf := make([]byte, transport.MaxDatagramSize)
	for {
		n, _, err := ep.Receive(buf)
		if err != nil {
			return 0, newErr(ErrSocketIO, "measure_relay_latency", fmt.Errorf("no pong within %s: %w", RelayLatencyTimeout, err))
		}
		tag, _, ok := wire.DecodePingPong(buf[:n])
		if ok && tag == wire.TagPong {
			return time.Since(sendTime), nil
		}
		// Not our pong (e.g. stray media); keep waiting until the deadline.
	}
}

func translateProbeErr(op string, err error) error {
	var pe *natprobe.ProbeError
	if e, ok := err.(*natprobe.ProbeError); ok {
		pe = e
	}
	if pe == nil {
		return newErr(ErrSocketIO, op, err)
	}
	switch pe.Kind {
	case natprobe.ErrStunTimeout:
		return newErr(ErrStunTimeout, op, err)
	case natprobe.ErrStunParse:
		return newErr(ErrStunParse, op, err)
	default:
		return newErr(ErrSocketIO, op, err)
	}
}
