// Package firewall best-effort configures the local firewall to allow
// inbound UDP on the port range voicecored binds from, the same
// runtime.GOOS-gated, error-swallowing shape the teacher used to adjust its
// desktop environment at startup.
package firewall

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"
)

// PortRangeStart and PortRangeEnd bound the ephemeral UDP ports voicecored
// may bind to.
const (
	PortRangeStart = 10000
	PortRangeEnd   = 65535

	ruleName = "voicecore-udp"
)

// AllowInboundUDP best-effort registers a local firewall rule allowing
// inbound UDP on [PortRangeStart, PortRangeEnd]. It is a no-op on every
// platform but Windows, and it never returns an error — a failed rule is
// logged, not fatal, since voicecore works without it for any peer the
// local firewall would already accept traffic from (e.g. after the peer's
// own outbound packet opened a NAT/firewall pinhole).
func AllowInboundUDP() {
	if runtime.GOOS != "windows" {
		return
	}
	if err := addWindowsRule(); err != nil {
		log.Printf("[firewall] could not register inbound UDP rule: %v", err)
	}
}

func addWindowsRule() error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	args := []string{
		"advfirewall", "firewall", "add", "rule",
		fmt.Sprintf("name=%s", ruleName),
		"dir=in",
		"action=allow",
		"protocol=UDP",
		fmt.Sprintf("localport=%d-%d", PortRangeStart, PortRangeEnd),
		fmt.Sprintf("program=%s", exePath),
	}
	cmd := exec.Command("netsh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("netsh %v: %w (%s)", args, err, out)
	}
	return nil
}
