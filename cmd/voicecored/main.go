// Command voicecored is a thin command-line driver for the Stream
// Controller: it wires a PortAudio device selector and a STUN server into a
// Controller and runs one session per invocation: either detect_nat, or
// bind, configure, stream for -duration, print get_stats as JSON, and stop.
// It is not a UI; a desktop shell would sit on top of the same Commands
// surface this binary calls directly.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/loopwire/voicecore/firewall"
	"github.com/loopwire/voicecore/stream"
	"github.com/loopwire/voicecore/wire"
)

func mustResolveUDP(addr string) *net.UDPAddr {
	if addr == "" {
		return nil
	}
	resolved, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		log.Fatalf("resolve %q: %v", addr, err)
	}
	return resolved
}

func main() {
	stunAddr := flag.String("stun", "stun.l.google.com:19302", "primary STUN server")
	altStunAddr := flag.String("stun-alt", "", "alternate STUN server (enables Full-Cone/Symmetric classification)")
	sessionID := flag.String("session", "", "local relay session id (defaults to voicecored-<pid>)")
	port := flag.Int("port", 0, "UDP port to bind (0 = ephemeral)")
	peers := flag.String("peers", "", "comma-separated ip:port list to add before starting")
	relay := flag.String("relay", "", "relay ip:port; if set, starts in relay mode instead of direct")
	relaySession := flag.String("relay-session", "", "remote relay session id")
	input := flag.String("input", "", "named capture device (empty = system default)")
	output := flag.String("output", "", "named playback device (empty = system default)")
	bitrate := flag.Int("bitrate-kbps", 96, "Opus target bitrate in kbps")
	duration := flag.Duration("duration", 10*time.Second, "how long to stream before reporting stats and exiting")
	detectNAT := flag.Bool("detect-nat", false, "run detect_nat and exit instead of streaming")
	flag.Parse()

	firewall.AllowInboundUDP()

	if err := portaudio.Initialize(); err != nil {
		log.Fatalf("initialize portaudio: %v", err)
	}
	defer portaudio.Terminate()

	local := *sessionID
	if local == "" {
		local = fmt.Sprintf("voicecored-%d", os.Getpid())
	}

	devices := stream.PortAudioDevices{}
	ctrl := stream.NewController(devices, mustResolveUDP(*stunAddr), mustResolveUDP(*altStunAddr), wire.NewSessionID(local))
	cmd := stream.NewCommands(ctrl)

	if *detectNAT {
		runDetectNAT(cmd, *port)
		return
	}

	boundPort, err := cmd.BindUDP(*port)
	if err != nil {
		log.Fatalf("bind_udp: %v", err)
	}
	log.Printf("bound UDP port %d", boundPort.Port)

	cmd.SetDevices(*input, *output)
	cmd.SetBitrate(*bitrate)

	if *relay != "" {
		if err := cmd.SetRelay(*relay, *relaySession); err != nil {
			log.Fatalf("set_relay: %v", err)
		}
		if err := cmd.StartRelay(); err != nil {
			log.Fatalf("start_relay: %v", err)
		}
		log.Printf("streaming via relay %s", *relay)
	} else {
		for _, addr := range splitNonEmpty(*peers) {
			if err := cmd.AddPeer(addr); err != nil {
				log.Fatalf("add_peer %s: %v", addr, err)
			}
		}
		if err := cmd.StartDirect(); err != nil {
			log.Fatalf("start_direct: %v", err)
		}
		log.Printf("streaming direct to %d peer(s)", len(splitNonEmpty(*peers)))
	}

	time.Sleep(*duration)

	stats := cmd.GetStats()
	if err := cmd.Stop(); err != nil {
		log.Fatalf("stop: %v", err)
	}
	printJSON(stats)
}

func runDetectNAT(cmd *stream.Commands, port int) {
	if _, err := cmd.BindUDP(port); err != nil {
		log.Fatalf("bind_udp: %v", err)
	}
	result, err := cmd.DetectNAT()
	if err != nil {
		log.Fatalf("detect_nat: %v", err)
	}
	printJSON(result)
	_ = cmd.Stop()
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("marshal result: %v", err)
	}
	fmt.Println(string(out))
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
