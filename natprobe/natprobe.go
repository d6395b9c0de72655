// Package natprobe implements reflexive address discovery via STUN, NAT
// type classification from reflexive-address comparisons, and the UDP
// hole-punch routine.
package natprobe

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pion/stun/v3"

	"github.com/loopwire/voicecore/transport"
	"github.com/loopwire/voicecore/wire"
)

// reflexiveTimeout is the read deadline for a STUN Binding Response.
const reflexiveTimeout = 3 * time.Second

// maxSTUNResponseSize bounds the read buffer for a Binding Response.
const maxSTUNResponseSize = 256

// ErrorKind classifies a NAT Probe failure per spec §4.3.
type ErrorKind int

const (
	// ErrStunIo covers socket-level send/receive failures.
	ErrStunIo ErrorKind = iota
	// ErrStunTimeout means no Binding Response arrived within the deadline.
	ErrStunTimeout
	// ErrStunParse means a response arrived but could not be parsed into a
	// usable reflexive address.
	ErrStunParse
)

// ProbeError wraps a NAT Probe failure with its classification.
type ProbeError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("natprobe: %s: %v", e.Kind, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

func (k ErrorKind) String() string {
	switch k {
	case ErrStunTimeout:
		return "StunTimeout"
	case ErrStunParse:
		return "StunParse"
	default:
		return "StunIo"
	}
}

// NATType is the classification the Stream Controller exposes by name.
type NATType string

const (
	NATUnknown        NATType = "Unknown"
	NATFullConeOrOpen NATType = "Full Cone/Unknown-Open"
	NATSymmetric      NATType = "Symmetric"
	NATPortRestricted NATType = "Port-Restricted"
)

// Reflexive sends a STUN Binding Request to server over ep and returns the
// reflexive (public) address reported back, preferring XOR-MAPPED-ADDRESS
// over MAPPED-ADDRESS. Only IPv4 reflexive addresses are accepted.
func Reflexive(ep *transport.Endpoint, server *net.UDPAddr) (*net.UDPAddr, error) {
	req, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return nil, &ProbeError{Kind: ErrStunIo, Err: fmt.Errorf("build binding request: %w", err)}
	}

	if err := ep.Send(server, req.Raw); err != nil {
		return nil, &ProbeError{Kind: ErrStunIo, Err: err}
	}

	if err := ep.SetReadDeadline(time.Now().Add(reflexiveTimeout)); err != nil {
		return nil, &ProbeError{Kind: ErrStunIo, Err: err}
	}

	buf := make([]byte, maxSTUNResponseSize)
	n, _, err := ep.Receive(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &ProbeError{Kind: ErrStunTimeout, Err: err}
		}
		return nil, &ProbeError{Kind: ErrStunIo, Err: err}
	}

	var resp stun.Message
	resp.Raw = append([]byte(nil), buf[:n]...)
	if err := resp.Decode(); err != nil {
		return nil, &ProbeError{Kind: ErrStunParse, Err: err}
	}

	var xor stun.XORMappedAddress
	if err := xor.GetFrom(&resp); err == nil {
		if ip4 := xor.IP.To4(); ip4 != nil {
			return &net.UDPAddr{IP: ip4, Port: xor.Port}, nil
		}
		return nil, &ProbeError{Kind: ErrStunParse, Err: fmt.Errorf("XOR-MAPPED-ADDRESS is not IPv4")}
	}

	var mapped stun.MappedAddress
	if err := mapped.GetFrom(&resp); err == nil {
		if ip4 := mapped.IP.To4(); ip4 != nil {
			return &net.UDPAddr{IP: ip4, Port: mapped.Port}, nil
		}
		return nil, &ProbeError{Kind: ErrStunParse, Err: fmt.Errorf("MAPPED-ADDRESS is not IPv4")}
	}

	return nil, &ProbeError{Kind: ErrStunParse, Err: fmt.Errorf("no mapped-address attribute in response")}
}

// Classify maps a comparison of reflexive addresses seen from two different
// STUN servers (or the same server probed twice) onto the NAT taxonomy:
// identical everywhere maps to Full Cone/Unknown-Open, a different IP means
// the mapping varies by destination (Symmetric), and a matching IP with a
// different port means Port-Restricted.
func Classify(primary, alternate *net.UDPAddr) NATType {
	if primary == nil || alternate == nil {
		return NATUnknown
	}
	sameIP := primary.IP.Equal(alternate.IP)
	samePort := primary.Port == alternate.Port

	switch {
	case sameIP && samePort:
		return NATFullConeOrOpen
	case sameIP && !samePort:
		return NATPortRestricted
	default:
		return NATSymmetric
	}
}

// HolePunch sends three 1-byte keepalives to target's reflexive address at
// 100ms spacing, then returns. Success means the routine completed, not
// that the path is verified — verification comes later from observing
// inbound media or keepalives.
func HolePunch(ep *transport.Endpoint, target *net.UDPAddr) error {
	const punches = 3
	for i := 0; i < punches; i++ {
		if err := ep.Send(target, wire.Keepalive); err != nil {
			return fmt.Errorf("natprobe: hole punch packet %d/%d: %w", i+1, punches, err)
		}
		if i < punches-1 {
			time.Sleep(100 * time.Millisecond)
		}
	}
	return nil
}
