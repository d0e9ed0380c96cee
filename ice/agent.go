package ice

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/iceagent/internal/logging"
	"github.com/lanikai/iceagent/ice/stun"
)

var agentLog = logging.DefaultLogger.WithTag("ice/agent")

// AgentConfig carries the construction-time parameters of Alloc/NewAgent.
// The core has no CLI or file format (spec §1), so this is a plain
// struct; cmd/iceagent-demo builds one from flags.
type AgentConfig struct {
	Controlling   bool
	LocalUfrag    string
	LocalPassword string
}

// Agent is the Trickle-ICE agent core of §1-§9: it owns the candidate
// registries, the derived pairs, and at most one Checklist, and drives a
// single cooperative event loop per §5.
type Agent struct {
	controlling bool
	tieBreaker  uint64

	localUfrag     string
	localPassword  string
	remoteUfrag    string
	remotePassword string

	localCandidates  []LocalCandidate
	remoteCandidates []RemoteCandidate

	allPairs   []*CandidatePair
	nextPairID pairID

	checklist      *Checklist
	triggeredQueue []*CandidatePair

	tcpListeners  []*tcpListener
	tcpConnByKey  map[string]*tcpConnection

	transport *stun.Transport

	paceC <-chan time.Time

	checkResults chan *checkOutcome
	rxC          chan rxEvent

	ctx    context.Context
	cancel context.CancelFunc
}

type checkOutcome struct {
	pair       *CandidatePair
	resp       *stun.Message
	submitErr  error
	useCand    bool
}

// rxEvent carries an already-decoded inbound STUN message from a socket's
// readLoop goroutine onto the agent's single event-loop goroutine, so
// that the only work done off-loop is decoding (pure, stateless) and
// every state mutation still happens on loop() per §5.
type rxEvent struct {
	lid      localCandidateID
	protocol Protocol
	src      net.Addr
	msg      *stun.Message
}

// NewAgent implements §6's `alloc`: it validates lufrag (>=4 chars) and
// lpwd (>=22 chars), exactly per original_source/src/trice/trice.c's
// trice_alloc (`str_len(lufrag) < 4 || str_len(lpwd) < 22` -> EINVAL).
func NewAgent(cfg AgentConfig) (*Agent, error) {
	if len(cfg.LocalUfrag) < 4 {
		return nil, newError("NewAgent", InvalidArgument, errors.New("localUfrag must be at least 4 characters"))
	}
	if len(cfg.LocalPassword) < 22 {
		return nil, newError("NewAgent", InvalidArgument, errors.New("localPassword must be at least 22 characters"))
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &Agent{
		controlling:   cfg.Controlling,
		tieBreaker:    randomTieBreaker(),
		localUfrag:    cfg.LocalUfrag,
		localPassword: cfg.LocalPassword,
		tcpConnByKey:  make(map[string]*tcpConnection),
		checkResults:  make(chan *checkOutcome, 8),
		rxC:           make(chan rxEvent, 32),
		ctx:           ctx,
		cancel:        cancel,
	}
	// a.newTimer is a method on a, so the transport's timer factory can
	// only be wired up once a itself exists, not inline in the literal
	// above.
	a.transport = stun.NewTransport(func() stun.Timer { return a.newTimer() })

	go a.loop()

	return a, nil
}

func randomTieBreaker() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}

// SetRemoteUfrag sets the peer's ICE username fragment.
func (a *Agent) SetRemoteUfrag(ufrag string) {
	a.remoteUfrag = ufrag
}

// SetRemotePwd sets the peer's ICE password. StartChecklist requires this
// to be non-empty.
func (a *Agent) SetRemotePwd(pwd string) {
	a.remotePassword = pwd
}

// IsControlling reports the agent's current ICE role.
func (a *Agent) IsControlling() bool {
	return a.controlling
}

// ChecklistIsCompleted reports whether every pair in the active checklist
// has completed, per §3. Returns false if no checklist has been started.
func (a *Agent) ChecklistIsCompleted() bool {
	return a.checklist != nil && a.checklist.IsCompleted()
}

// ChecklistState returns the active checklist's top-level state, or
// ChecklistRunning's zero value if no checklist exists yet.
func (a *Agent) ChecklistState() ChecklistState {
	if a.checklist == nil {
		return ChecklistRunning
	}
	return a.checklist.State()
}

// Checklist is the read-only §6 `checklist()` view.
func (a *Agent) Checklist() []*CandidatePair {
	if a.checklist == nil {
		return nil
	}
	return a.checklist.Pairs()
}

// ValidList is the read-only §6 `validList()` view.
func (a *Agent) ValidList() []*CandidatePair {
	if a.checklist == nil {
		return nil
	}
	return a.checklist.ValidList()
}

// LocalCandidateAddress returns the current address of a local candidate
// previously returned by AddLocal. For a UDP host candidate bound to an
// ephemeral port, this reflects the port the kernel actually assigned,
// not the (possibly zero) port passed to AddLocal.
func (a *Agent) LocalCandidateAddress(id localCandidateID) TransportAddress {
	return a.localCandidates[id].Address
}

func (a *Agent) newTimer() Timer {
	return newSystemTimer()
}

// Close cascades teardown per §5: checklist -> valid list -> check list ->
// local candidates -> remote candidates -> TCP connection list ->
// credential strings.
func (a *Agent) Close() {
	a.cancel()
	if a.checklist != nil {
		a.checklist.timer.Stop()
	}
	for _, lc := range a.localCandidates {
		if lc.socket != nil {
			_ = lc.socket.Close()
		}
	}
	for _, ln := range a.tcpListeners {
		_ = ln.Close()
	}
	for _, conn := range a.tcpConnByKey {
		_ = conn.conn.Close()
	}
	a.checklist = nil
	a.allPairs = nil
	a.localCandidates = nil
	a.remoteCandidates = nil
	a.tcpConnByKey = nil
	a.localUfrag, a.localPassword, a.remoteUfrag, a.remotePassword = "", "", "", ""
}

// loop is the single goroutine that owns every mutation of this agent's
// state (§5: "no two handlers of the same agent run concurrently"). It is
// grounded on the teacher's Agent.loop (internal/ice/agent.go) but
// generalized: the teacher spawns one loop per network base and selects
// over a pace ticker and a checklist-update channel; this selects over
// the pace timer, completed connectivity checks, and shutdown.
func (a *Agent) loop() {
	for {
		// StartChecklist arms the first pace timer from its caller's
		// goroutine, so while no pace channel exists yet the loop wakes
		// periodically to pick it up rather than blocking on a nil channel.
		paceC := a.paceC
		var idleC <-chan time.Time
		if paceC == nil {
			idleC = time.After(5 * time.Millisecond)
		}

		select {
		case <-a.ctx.Done():
			return
		case <-idleC:
		case <-paceC:
			a.paceTick()
		case outcome := <-a.checkResults:
			a.handleCheckOutcome(outcome)
		case ev := <-a.rxC:
			a.processSTUN(ev.lid, ev.protocol, ev.src, ev.msg)
		}
	}
}

// onReceive is the receive hook registered on each Host/UDP local
// candidate's socket (§4.8). It runs on that socket's readLoop goroutine,
// not the event loop, so it does only the stateless part of demuxing
// (decode) here and hands the decoded message to loop() for everything
// that touches agent state.
func (a *Agent) onReceive(lid localCandidateID, buf []byte, src net.Addr) bool {
	msg, err := stun.Decode(buf)
	if err != nil {
		return false
	}
	select {
	case a.rxC <- rxEvent{lid: lid, protocol: ProtocolUDP, src: src, msg: msg}:
	case <-a.ctx.Done():
	}
	return true
}

func (a *Agent) onTCPAccept(lid localCandidateID, conn net.Conn) {
	local := &a.localCandidates[lid]
	key := tcpConnectionKey(local.ComponentID, local.Address, transportAddressFromNetAddr(conn.RemoteAddr()))
	tc := &tcpConnection{
		componentID: local.ComponentID,
		local:       local.Address,
		peer:        transportAddressFromNetAddr(conn.RemoteAddr()),
		conn:        conn,
	}
	a.tcpConnByKey[key] = tc

	a.startTCPReadLoop(lid, conn)
}

// startTCPReadLoop decodes inbound STUN messages off a TCP connection's
// own goroutine and hands them to loop() via rxC, exactly like onReceive
// does for UDP. Shared by both the accept path (onTCPAccept, for
// Passive/Simultaneous-Open local candidates) and the dial-out path
// (tcpWriterForPair, for Active local candidates).
func (a *Agent) startTCPReadLoop(lid localCandidateID, conn net.Conn) {
	go func() {
		buf := make([]byte, 1500)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			msg, err := stun.Decode(buf[:n])
			if err != nil {
				continue
			}
			select {
			case a.rxC <- rxEvent{lid: lid, protocol: ProtocolTCP, src: conn.RemoteAddr(), msg: msg}:
			case <-a.ctx.Done():
				return
			}
		}
	}()
}
