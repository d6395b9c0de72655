package stream

// Commands wraps a Controller with the JSON-tagged request/response shapes
// from spec §6's command table. Keep this thin — all logic lives on
// Controller; these methods only adapt primitive/JSON-friendly inputs and
// outputs for a command-dispatch transport (CLI, RPC, IPC).
type Commands struct {
	c *Controller
}

// NewCommands wraps c.
func NewCommands(c *Controller) *Commands {
	return &Commands{c: c}
}

// BindResult is bind_udp's result.
type BindResult struct {
	Port int `json:"port"`
}

// BindUDP binds the datagram endpoint and returns the bound port.
func (cmd *Commands) BindUDP(port int) (BindResult, error) {
	actual, err := cmd.c.Bind(port)
	if err != nil {
		return BindResult{}, err
	}
	return BindResult{Port: actual}, nil
}

// AddPeer adds one peer by "ip:port".
func (cmd *Commands) AddPeer(addr string) error {
	return cmd.c.AddPeer(addr)
}

// SetMuted toggles whether captured audio is sent.
func (cmd *Commands) SetMuted(muted bool) {
	cmd.c.SetMuted(muted)
}

// StartDirect starts peer-to-peer streaming.
func (cmd *Commands) StartDirect() error {
	return cmd.c.StartDirect()
}

// StartRelay starts relayed streaming.
func (cmd *Commands) StartRelay() error {
	return cmd.c.StartRelay()
}

// Stop ends streaming and releases devices and the socket.
func (cmd *Commands) Stop() error {
	return cmd.c.Stop()
}

// StatsResult is get_stats's result.
type StatsResult struct {
	Sent       uint64  `json:"sent"`
	Received   uint64  `json:"received"`
	Lost       uint64  `json:"lost"`
	LossRate   float64 `json:"loss_rate"`
	Peers      int     `json:"peers"`
	Running    bool    `json:"running"`
	JBSize     int     `json:"jb_size"`
	JBTarget   int     `json:"jb_target"`
	InputLevel float64 `json:"input_level"`
}

// GetStats returns the aggregate statistics snapshot.
func (cmd *Commands) GetStats() StatsResult {
	s := cmd.c.GetStats()
	return StatsResult{
		Sent:       s.Sent,
		Received:   s.Received,
		Lost:       s.Lost,
		LossRate:   s.LossRate,
		Peers:      s.Peers,
		Running:    s.Running,
		JBSize:     s.JBSize,
		JBTarget:   s.JBTarget,
		InputLevel: s.InputLevel,
	}
}

// DetectNATResult is detect_nat's result.
type DetectNATResult struct {
	NATType       string `json:"nat_type"`
	ReflexiveAddr string `json:"reflexive_addr"`
}

// DetectNAT runs the NAT probe and returns its classification.
func (cmd *Commands) DetectNAT() (DetectNATResult, error) {
	kind, reflexive, err := cmd.c.DetectNAT()
	if err != nil {
		return DetectNATResult{}, err
	}
	result := DetectNATResult{NATType: string(kind)}
	if reflexive != nil {
		result.ReflexiveAddr = reflexive.String()
	}
	return result, nil
}

// RelayLatencyResult is measure_relay_latency's result.
type RelayLatencyResult struct {
	RTTMs int64 `json:"rtt_ms"`
}

// MeasureRelayLatency pings the relay and returns the round trip time.
func (cmd *Commands) MeasureRelayLatency() (RelayLatencyResult, error) {
	rtt, err := cmd.c.MeasureRelayLatency()
	if err != nil {
		return RelayLatencyResult{}, err
	}
	return RelayLatencyResult{RTTMs: rtt.Milliseconds()}, nil
}

// The remaining operations from spec §3/§6 that the table marks
// non-representative but still names (set_peers, clear_peers, set_devices,
// set_bitrate, set_jitter_target, set_relay, get_peer_stats, attempt_p2p)
// pass straight through; they need no JSON reshaping beyond what Controller
// already returns.

// SetPeers replaces the peer list wholesale.
func (cmd *Commands) SetPeers(addrs []string) error {
	return cmd.c.SetPeers(addrs)
}

// ClearPeers removes every peer.
func (cmd *Commands) ClearPeers() {
	cmd.c.ClearPeers()
}

// SetDevices selects the named input/output devices.
func (cmd *Commands) SetDevices(input, output string) {
	cmd.c.SetDevices(input, output)
}

// SetBitrate sets the encoder's target bitrate in kbps.
func (cmd *Commands) SetBitrate(kbps int) {
	cmd.c.SetBitrate(kbps)
}

// SetJitterTarget sets the jitter buffer depth target, in 10ms frame units.
func (cmd *Commands) SetJitterTarget(frames int) {
	cmd.c.SetJitterTarget(frames)
}

// SetRelay configures the relay address and session id.
func (cmd *Commands) SetRelay(addr, sessionID string) error {
	return cmd.c.SetRelay(addr, sessionID)
}

// GetPeerStats returns a stats snapshot for every known peer.
func (cmd *Commands) GetPeerStats() []PeerStats {
	return cmd.c.GetPeerStats()
}

// AttemptP2P hole-punches toward a peer's recorded reflexive address, or
// toward the peer's own address when none is recorded.
func (cmd *Commands) AttemptP2P(addr string) error {
	return cmd.c.AttemptP2P(addr)
}
