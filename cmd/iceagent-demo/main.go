// Command iceagent-demo drives one Trickle-ICE agent over a single UDP
// host candidate. It has no signalling channel of its own (§1's scope is
// the agent core, not offer/answer transport): the local ufrag, password,
// and bound address are printed to stdout, and the peer's equivalents are
// supplied via flags, exactly as two operators would copy them between
// terminals by hand.
package main

import (
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/lanikai/iceagent/ice"
)

var (
	controlling  = pflag.BoolP("controlling", "c", false, "act as the controlling agent")
	bindAddr     = pflag.StringP("bind", "b", "0.0.0.0", "local address to bind the host candidate to")
	bindPort     = pflag.IntP("port", "p", 0, "local UDP port (0 picks an ephemeral port)")
	remoteAddr   = pflag.String("remote-addr", "", "peer's candidate address (ip:port)")
	remoteUfrag  = pflag.String("remote-ufrag", "", "peer's ICE username fragment")
	remotePwd    = pflag.String("remote-pwd", "", "peer's ICE password")
	useCandidate = pflag.Bool("nominate", false, "send USE-CANDIDATE on every paced connectivity check")
	timeoutSec   = pflag.Int("timeout", 30, "seconds to wait for the checklist to settle")
)

func main() {
	pflag.Parse()

	ufrag := randomToken(8)
	pwd := randomToken(24)

	agent, err := ice.NewAgent(ice.AgentConfig{
		Controlling:   *controlling,
		LocalUfrag:    ufrag,
		LocalPassword: pwd,
	})
	if err != nil {
		fatal("NewAgent", err)
	}
	defer agent.Close()

	laddr := ice.MakeTransportAddress(net.ParseIP(*bindAddr), *bindPort)
	priority := ice.ComputePriority(ice.TypeHost, 1)
	lid, err := agent.AddLocal(1, ice.ProtocolUDP, priority, laddr, laddr, ice.TypeHost, ice.TCPTypeNone, nil, 0)
	if err != nil {
		fatal("AddLocal", err)
	}
	laddr = agent.LocalCandidateAddress(lid)

	fmt.Printf("local candidate : %s\n", laddr)
	fmt.Printf("local ufrag     : %s\n", ufrag)
	fmt.Printf("local password  : %s\n", pwd)
	fmt.Println("give the three lines above to the peer, then pass its values via --remote-*")

	if *remoteAddr == "" || *remoteUfrag == "" || *remotePwd == "" {
		color.Yellow("no --remote-addr/--remote-ufrag/--remote-pwd given; exiting after printing local candidate")
		return
	}

	remoteHost, remotePortStr, err := net.SplitHostPort(*remoteAddr)
	if err != nil {
		fatal("parse --remote-addr", err)
	}
	remotePort := 0
	if _, err := fmt.Sscanf(remotePortStr, "%d", &remotePort); err != nil {
		fatal("parse --remote-addr port", err)
	}
	raddr := ice.MakeTransportAddress(net.ParseIP(remoteHost), remotePort)

	if _, err := agent.AddRemote(1, "peer", ice.ProtocolUDP, priority, raddr, ice.TypeHost, ice.TCPTypeNone); err != nil {
		fatal("AddRemote", err)
	}
	agent.SetRemoteUfrag(*remoteUfrag)
	agent.SetRemotePwd(*remotePwd)

	established := make(chan *ice.CandidatePair, 1)
	failed := make(chan struct{}, 1)

	onEstablished := func(p *ice.CandidatePair, _ []byte, _ interface{}) {
		select {
		case established <- p:
		default:
		}
	}
	onFailed := func(_ int, _ uint16, _ *ice.CandidatePair, _ interface{}) {
		select {
		case failed <- struct{}{}:
		default:
		}
	}

	if err := agent.StartChecklist(20, *useCandidate, onEstablished, onFailed, nil); err != nil {
		fatal("StartChecklist", err)
	}

	select {
	case p := <-established:
		color.Green("pair established: %s", p)
	case <-failed:
		color.Red("checklist failed: no pair succeeded")
		os.Exit(1)
	case <-time.After(time.Duration(*timeoutSec) * time.Second):
		color.Red("timed out waiting for checklist to settle")
		os.Exit(1)
	}
}

func randomToken(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		fatal("randomToken", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}

func fatal(op string, err error) {
	color.Red("%s: %v", op, err)
	os.Exit(1)
}
