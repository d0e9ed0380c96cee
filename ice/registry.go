package ice

import (
	"net"

	"github.com/pkg/errors"
)

// AddLocal implements §4.1's candidate registry. socket may be nil, in
// which case the registry binds its own; layer controls receive-hook
// ordering on that socket (lower layers observe packets first).
func (a *Agent) AddLocal(componentID int, protocol Protocol, priority uint32, address, base TransportAddress, typ CandidateType, tcpType TCPType, socket DatagramSocket, layer int) (localCandidateID, error) {
	if err := validateCandidateArgs(componentID, protocol, address); err != nil {
		return noCandidateID, newError("AddLocal", InvalidArgument, err)
	}
	if typ != TypeHost {
		if address.Port == 0 {
			return noCandidateID, newError("AddLocal", InvalidArgument, errors.New("non-host candidate requires a port"))
		}
		if !base.isSet() {
			return noCandidateID, newError("AddLocal", InvalidArgument, errors.New("non-host candidate requires a base address"))
		}
		if address.Family != base.Family {
			return noCandidateID, newError("AddLocal", AddressFamilyUnsupported, errors.New("address family mismatch between candidate and base"))
		}
	} else if !base.isSet() {
		base = address
	}

	// UDP dedup: replace iff strictly higher priority, else no-op success.
	// TCP-Active is skipped since port-zero makes address equality
	// undefined, per §4.1.
	if protocol == ProtocolUDP {
		if existing, id, ok := a.findLocalByKey(componentID, protocol, address); ok {
			if priority > existing.Priority {
				a.localCandidates[id].Priority = priority
				a.localCandidates[id].Type = typ
				a.localCandidates[id].TCPType = tcpType
				// Existing pairs already reference this candidate by ID;
				// only their priorities and order change.
				a.prioOrder(a.controlling)
				return id, nil
			}
			return id, nil
		}
	}

	lc := LocalCandidate{
		CandidateAttributes: CandidateAttributes{
			ComponentID: componentID,
			Protocol:    protocol,
			Priority:    priority,
			Address:     address,
			Type:        typ,
			TCPType:     tcpType,
		},
		BaseAddress: base,
	}
	lc.Foundation = computeFoundation(base, typ)

	id := localCandidateID(len(a.localCandidates))
	a.localCandidates = append(a.localCandidates, lc)

	if err := a.wireLocalSocket(id, socket, layer); err != nil {
		a.localCandidates = a.localCandidates[:id]
		return noCandidateID, newError("AddLocal", ProtocolUnsupported, err)
	}

	a.pairLocalWithRemotes(id)

	return id, nil
}

// AddRemote implements the remote half of §4.1. Foundations supplied by
// the peer are stored verbatim.
func (a *Agent) AddRemote(componentID int, foundation string, protocol Protocol, priority uint32, address TransportAddress, typ CandidateType, tcpType TCPType) (remoteCandidateID, error) {
	if err := validateCandidateArgs(componentID, protocol, address); err != nil {
		return noCandidateID, newError("AddRemote", InvalidArgument, err)
	}

	rc := RemoteCandidate{CandidateAttributes{
		ComponentID: componentID,
		Foundation:  foundation,
		Protocol:    protocol,
		Priority:    priority,
		Address:     address,
		Type:        typ,
		TCPType:     tcpType,
	}}

	id := remoteCandidateID(len(a.remoteCandidates))
	a.remoteCandidates = append(a.remoteCandidates, rc)

	a.pairRemoteWithLocals(id)

	return id, nil
}

// FindLocal looks up a local candidate by (componentId, protocol, address).
func (a *Agent) FindLocal(componentID int, protocol Protocol, address TransportAddress) (localCandidateID, bool) {
	_, id, ok := a.findLocalByKey(componentID, protocol, address)
	return id, ok
}

// FindRemote looks up a remote candidate by (componentId, protocol, address).
func (a *Agent) FindRemote(componentID int, protocol Protocol, address TransportAddress) (remoteCandidateID, bool) {
	for i := range a.remoteCandidates {
		c := &a.remoteCandidates[i]
		if c.ComponentID == componentID && c.Protocol == protocol && c.Address.equal(address) {
			return remoteCandidateID(i), true
		}
	}
	return noCandidateID, false
}

func (a *Agent) findLocalByKey(componentID int, protocol Protocol, address TransportAddress) (*LocalCandidate, localCandidateID, bool) {
	for i := range a.localCandidates {
		c := &a.localCandidates[i]
		if c.ComponentID == componentID && c.Protocol == protocol && c.Address.equal(address) {
			return c, localCandidateID(i), true
		}
	}
	return nil, noCandidateID, false
}

func validateCandidateArgs(componentID int, protocol Protocol, address TransportAddress) error {
	if componentID == 0 {
		return errors.New("componentId must be non-zero")
	}
	if !address.isSet() {
		return errors.New("address.ip must be set")
	}
	_ = protocol // protocol is a typed enum in Go; no "unset" state to reject
	return nil
}

// wireLocalSocket implements §4.1(a): for Host/UDP, adopt or bind a socket
// and register the ICE receive hook at the requested layer; for
// Host/TCP-Passive or TCP-SO, start listening and install an accept
// handler that creates a TCP connection record per inbound connection.
// Host/TCP-Active has nothing to wire here: it dials out lazily from
// ConnCheckSend's tcpWriterForPair, once its pair actually needs to send
// a check and knows which remote address to dial.
func (a *Agent) wireLocalSocket(id localCandidateID, socket DatagramSocket, layer int) error {
	lc := &a.localCandidates[id]
	if lc.Type != TypeHost {
		// Reflexive/relayed candidates reuse the base host candidate's
		// socket; nothing new to wire.
		return nil
	}

	switch lc.Protocol {
	case ProtocolUDP:
		if socket == nil {
			udpAddr := &net.UDPAddr{IP: lc.Address.IP, Port: lc.Address.Port}
			s, err := newUDPSocket(nil, udpAddr)
			if err != nil {
				return err
			}
			socket = s
			if lc.Address.Port == 0 {
				// Caller asked for an ephemeral port; reflect the one the
				// kernel actually assigned back into the candidate so it
				// can be exchanged with the peer.
				lc.Address = transportAddressFromNetAddr(s.LocalAddr())
				if !lc.BaseAddress.isSet() || lc.BaseAddress.Port == 0 {
					lc.BaseAddress = lc.Address
				}
			}
		}
		lc.socket = socket
		lc.layer = layer
		socket.RegisterReceiveHook(layer, func(buf []byte, src net.Addr) bool {
			return a.onReceive(id, buf, src)
		})
	case ProtocolTCP:
		if lc.TCPType != TCPTypePassive && lc.TCPType != TCPTypeSimultaneousOpen {
			return nil
		}
		tcpAddr := &net.TCPAddr{IP: lc.Address.IP, Port: lc.Address.Port}
		ln, err := newTCPListener(tcpAddr)
		if err != nil {
			return err
		}
		a.tcpListeners = append(a.tcpListeners, ln)
		ln.Accept(func(conn net.Conn) {
			a.onTCPAccept(id, conn)
		})
	}
	return nil
}
