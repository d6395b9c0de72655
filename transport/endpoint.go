// Package transport implements the Datagram Endpoint: a non-blocking UDP
// socket with best-effort DSCP Expedited Forwarding marking on outgoing
// traffic.
package transport

import (
	"fmt"
	"log"
	"net"
	"time"
)

// MaxDatagramSize is the largest datagram this endpoint will send or accept.
const MaxDatagramSize = 1500

// Endpoint is a bound, non-blocking UDP socket.
type Endpoint struct {
	conn *net.UDPConn
	port int
}

// Bind opens a UDP socket on port (0 lets the OS pick one), puts it in
// non-blocking mode, and attempts to mark outgoing traffic DSCP Expedited
// Forwarding (IP_TOS=184). DSCP failures are logged, not returned: per spec
// this is best-effort.
func Bind(port int) (*Endpoint, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("transport: bind port %d: %w", port, err)
	}

	actual := conn.LocalAddr().(*net.UDPAddr).Port

	if rc, rcErr := conn.SyscallConn(); rcErr == nil {
		if dscpErr := setDSCP(rc); dscpErr != nil {
			log.Printf("[transport] DSCP EF marking unavailable on port %d: %v", actual, dscpErr)
		}
	} else {
		log.Printf("[transport] could not access raw socket for DSCP on port %d: %v", actual, rcErr)
	}

	return &Endpoint{conn: conn, port: actual}, nil
}

// LocalPort returns the bound local port.
func (e *Endpoint) LocalPort() int { return e.port }

// Send writes data to dst. data longer than MaxDatagramSize is rejected.
func (e *Endpoint) Send(dst *net.UDPAddr, data []byte) error {
	if len(data) > MaxDatagramSize {
		return fmt.Errorf("transport: datagram of %d bytes exceeds max %d", len(data), MaxDatagramSize)
	}
	_, err := e.conn.WriteToUDP(data, dst)
	if err != nil {
		return fmt.Errorf("transport: send to %s: %w", dst, err)
	}
	return nil
}

// Receive reads one datagram into buf, returning its length and source
// address. buf should be at least MaxDatagramSize bytes; datagrams larger
// than len(buf) are truncated by the kernel.
func (e *Endpoint) Receive(buf []byte) (int, *net.UDPAddr, error) {
	n, src, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, err
	}
	return n, src, nil
}

// SetReadDeadline sets a deadline for the next Receive call, used by the
// receive pipeline's bounded poll loop to wake periodically and check its
// stop signal.
func (e *Endpoint) SetReadDeadline(t time.Time) error {
	return e.conn.SetReadDeadline(t)
}

// Close releases the underlying socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}
