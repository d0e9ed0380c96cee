package ice

import (
	"net"
	"strings"

	"github.com/lanikai/iceagent/ice/stun"
)

// processSTUN is the §4.6 entry point: dispatch an already-decoded STUN
// message to either the embedded server (inbound requests) or the STUN
// transaction layer (inbound responses), exactly per
// original_source/src/trice/trice.c's trice_stun_process. It always runs
// on the agent's single event-loop goroutine (§5): decoding happens
// eagerly in onReceive/onTCPAccept so only state mutation is deferred
// onto the loop, never the demux decision itself.
func (a *Agent) processSTUN(lid localCandidateID, protocol Protocol, src net.Addr, msg *stun.Message) {
	if msg.Method != stun.MethodBinding {
		return
	}

	switch msg.Class {
	case stun.ClassRequest:
		a.handleBindingRequest(lid, protocol, src, msg)
	case stun.ClassSuccessResponse, stun.ClassErrorResponse:
		a.transport.Deliver(msg)
	}
}

// handleBindingRequest implements the embedded STUN server of §4.6 step 3.
func (a *Agent) handleBindingRequest(lid localCandidateID, protocol Protocol, src net.Addr, req *stun.Message) {
	local := &a.localCandidates[lid]

	if !req.VerifyMessageIntegrity([]byte(a.localPassword)) {
		a.sendErrorResponse(local, src, req, stun.CodeUnauthorized, "unauthorized")
		return
	}

	username, ok := req.Username()
	if !ok || !strings.HasPrefix(username, a.localUfrag+":") {
		a.sendErrorResponse(local, src, req, stun.CodeUnauthorized, "bad username")
		return
	}

	peerControlling, peerTieBreaker, present := req.IceControlRole()
	if present && peerControlling == a.controlling {
		if a.tieBreaker >= peerTieBreaker {
			a.sendErrorResponse(local, src, req, stun.CodeRoleConflict, "role conflict")
			return
		}
		a.controlling = !a.controlling
		a.prioOrder(a.controlling)
	}

	a.sendBindingSuccess(local, src, req)

	srcAddr := transportAddressFromNetAddr(src)
	rid, ok := a.FindRemote(local.ComponentID, protocol, srcAddr)
	if !ok {
		rid = a.adoptPeerReflexiveCandidate(local.ComponentID, protocol, srcAddr, req)
	}

	p := a.findOrCreatePair(lid, rid)
	if p != nil {
		if req.HasUseCandidate() {
			p.triggeredUseCandidate = true
			p.Nominated = p.Nominated || p.Valid
		}
		a.triggerCheck(p)
	}
}

func (a *Agent) sendBindingSuccess(local *LocalCandidate, src net.Addr, req *stun.Message) {
	resp := stun.NewResponse(stun.ClassSuccessResponse, stun.MethodBinding, req.TransactionID)
	if udpAddr, ok := src.(*net.UDPAddr); ok {
		resp.SetXorMappedAddress(udpAddr)
	}
	// The response is authenticated with the same key used to verify the
	// request: this agent's own local password.
	resp.AddMessageIntegrity([]byte(a.localPassword))
	resp.AddFingerprint()
	_, _ = local.socket.WriteTo(resp.Encode(), src)
}

func (a *Agent) sendErrorResponse(local *LocalCandidate, src net.Addr, req *stun.Message, code int, reason string) {
	resp := stun.NewResponse(stun.ClassErrorResponse, stun.MethodBinding, req.TransactionID)
	resp.SetErrorCode(code, reason)
	resp.AddFingerprint()
	if local.socket != nil {
		_, _ = local.socket.WriteTo(resp.Encode(), src)
	}
}

// adoptPeerReflexiveCandidate implements §4.6's "learn a peer-reflexive
// remote candidate" step, grounded on the teacher's
// adoptPeerReflexiveCandidate (internal/ice/agent.go): a remote candidate
// is synthesised from the packet's source address when it matches no
// known remote candidate, using the priority the peer advertised in its
// PRIORITY attribute.
func (a *Agent) adoptPeerReflexiveCandidate(componentID int, protocol Protocol, src TransportAddress, req *stun.Message) remoteCandidateID {
	priority, ok := req.Priority()
	if !ok {
		priority = computePriority(TypePeerReflexive, componentID)
	}
	rid := remoteCandidateID(len(a.remoteCandidates))
	a.remoteCandidates = append(a.remoteCandidates, RemoteCandidate{CandidateAttributes{
		ComponentID: componentID,
		Foundation:  computeFoundation(src, TypePeerReflexive),
		Protocol:    protocol,
		Priority:    priority,
		Address:     src,
		Type:        TypePeerReflexive,
	}})
	a.pairRemoteWithLocals(rid)
	return rid
}

func (a *Agent) findOrCreatePair(lid localCandidateID, rid remoteCandidateID) *CandidatePair {
	for _, p := range a.allPairs {
		if p.Local == lid && p.Remote == rid {
			return p
		}
	}
	local := &a.localCandidates[lid]
	remote := &a.remoteCandidates[rid]
	if !canBePaired(local, remote) {
		return nil
	}
	return a.addPair(lid, rid)
}
