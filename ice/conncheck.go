package ice

import (
	"net"

	"github.com/pkg/errors"

	"github.com/lanikai/iceagent/ice/stun"
)

// errTCPNotReady is returned by ConnCheckSend when a TCP pair has no
// connection yet: a Passive or Simultaneous-Open local candidate has
// nothing to check with until the peer dials in (onTCPAccept), so this is
// not a check failure, just "not yet", and the pace loop leaves the pair's
// state untouched instead of marking it Failed.
var errTCPNotReady = errors.New("ice: tcp pair has no connection yet")

// peerReflexivePriority is the PRIORITY attribute value for a check sent
// from local: local's own priority with its type-preference octet (the
// high byte) replaced by the Peer-Reflexive preference, per RFC 8445
// §7.1.1's requirement that the PRIORITY attribute reflect the priority
// the candidate would have if the peer learned it as peer-reflexive.
func peerReflexivePriority(local *LocalCandidate) uint32 {
	return local.Priority&0x00FFFFFF | TypePeerReflexive.typePreference()<<24
}

// ConnCheckSend implements §4.5's connCheckSend: build and submit a STUN
// Binding Request carrying the ICE attribute set, then asynchronously
// route the response back onto the agent's single event-loop goroutine.
// For TCP pairs, the request goes out (or is refused with errTCPNotReady)
// through the pair's associated connection, per §4.5's "for TCP, through
// the associated connection", rather than through local.socket (which is
// only ever populated for UDP host candidates).
func (a *Agent) ConnCheckSend(p *CandidatePair, useCandidate bool) error {
	local := &a.localCandidates[p.Local]
	remote := &a.remoteCandidates[p.Remote]

	var writer stun.Writer
	var dst net.Addr
	switch local.Protocol {
	case ProtocolTCP:
		w, err := a.tcpWriterForPair(p, local, remote)
		if err != nil {
			return err
		}
		writer = w
		dst = p.tcpConn.conn.RemoteAddr()
	default:
		writer = local.socket
		dst = &net.UDPAddr{IP: remote.Address.IP, Port: remote.Address.Port}
	}

	p.State = InProgress

	msg := stun.New(stun.ClassRequest, stun.MethodBinding)
	msg.SetUsername(a.remoteUfrag + ":" + a.localUfrag)
	msg.SetPriority(peerReflexivePriority(local))
	if a.controlling {
		msg.SetIceControlling(a.tieBreaker)
	} else {
		msg.SetIceControlled(a.tieBreaker)
	}
	if useCandidate {
		msg.SetUseCandidate()
	}
	msg.AddMessageIntegrity([]byte(a.remotePassword))
	msg.AddFingerprint()

	go func() {
		resp, err := a.transport.Submit(a.ctx, dst, msg, writer)
		select {
		case a.checkResults <- &checkOutcome{pair: p, resp: resp, submitErr: err, useCand: useCandidate}:
		case <-a.ctx.Done():
		}
	}()

	return nil
}

// tcpWriterForPair resolves the shared tcpConnection for a TCP pair,
// dialing out if the local candidate is Active and no connection exists
// yet (§5's "shared resources" rule: one connection per componentId/
// local/peer triple, reused by every pair that needs it). A Passive or
// Simultaneous-Open local candidate never dials; it waits for
// onTCPAccept to populate the connection from an inbound accept.
func (a *Agent) tcpWriterForPair(p *CandidatePair, local *LocalCandidate, remote *RemoteCandidate) (stun.Writer, error) {
	if p.tcpConn != nil {
		return tcpWriter{p.tcpConn.conn}, nil
	}

	key := tcpConnectionKey(local.ComponentID, local.Address, remote.Address)
	if tc, ok := a.tcpConnByKey[key]; ok {
		p.tcpConn = tc
		return tcpWriter{tc.conn}, nil
	}

	if local.TCPType != TCPTypeActive {
		return nil, errTCPNotReady
	}

	laddr := &net.TCPAddr{IP: local.Address.IP, Port: local.Address.Port}
	raddr := &net.TCPAddr{IP: remote.Address.IP, Port: remote.Address.Port}
	conn, err := net.DialTCP("tcp", laddr, raddr)
	if err != nil {
		return nil, errors.Wrap(err, "ConnCheckSend: dial TCP candidate pair")
	}

	tc := &tcpConnection{componentID: local.ComponentID, local: local.Address, peer: remote.Address, conn: conn}
	a.tcpConnByKey[key] = tc
	p.tcpConn = tc
	a.startTCPReadLoop(p.Local, conn)

	return tcpWriter{conn}, nil
}

// handleCheckOutcome implements §4.5's response handling. It always runs
// on the agent's single event-loop goroutine.
func (a *Agent) handleCheckOutcome(o *checkOutcome) {
	p := o.pair

	if o.submitErr != nil {
		p.ErrorCode = 1
		p.StunCode = 0
		p.State = Failed
		a.fireFailed(p)
		a.checklistUpdate()
		return
	}

	resp := o.resp
	switch resp.Class {
	case stun.ClassSuccessResponse:
		a.handleCheckSuccess(p, resp, o.useCand)
	case stun.ClassErrorResponse:
		a.handleCheckError(p, resp)
	}
	a.checklistUpdate()
}

// handleCheckSuccess implements §4.5's 2xx handling, including the
// required verification that the response's XOR-MAPPED-ADDRESS equals
// pair.local.address before the pair can be trusted: a 2xx with a missing
// or mismatched mapped address is not a valid confirmation (it could be a
// reflected/forged response, or a NAT rebind mid-check) and is treated the
// same as a STUN error response.
func (a *Agent) handleCheckSuccess(p *CandidatePair, resp *stun.Message, useCandidate bool) {
	local := &a.localCandidates[p.Local]
	mapped, err := resp.XorMappedAddress()
	if err != nil || !transportAddressFromNetAddr(mapped).equal(local.Address) {
		p.ErrorCode = 2
		p.StunCode = 0
		p.State = Failed
		a.fireFailed(p)
		return
	}

	p.Valid = true
	p.Established = true
	p.State = Succeeded
	if useCandidate {
		p.Nominated = true
	}

	cl := a.checklist
	if cl != nil {
		cl.valid = append(cl.valid, p)
		if p.Nominated {
			cl.selected = p
		}
	}

	if cl != nil && cl.onEstablished != nil {
		cl.onEstablished(p, resp.Encode(), cl.arg)
	}
}

func (a *Agent) handleCheckError(p *CandidatePair, resp *stun.Message) {
	code, _, _ := resp.ErrorCode()

	if code == stun.CodeRoleConflict {
		// Flip role, recompute every pair's priority, re-sort, and put
		// this pair back in Waiting to retry on a later tick, per §4.5.
		a.controlling = !a.controlling
		a.prioOrder(a.controlling)
		p.State = Waiting
		return
	}

	p.ErrorCode = 0
	p.StunCode = uint16(code)
	p.State = Failed
	a.fireFailed(p)
}

func (a *Agent) fireFailed(p *CandidatePair) {
	cl := a.checklist
	if cl != nil && cl.onFailed != nil {
		cl.onFailed(p.ErrorCode, p.StunCode, p, cl.arg)
	}
}
