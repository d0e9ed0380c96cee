package ice

import (
	"net"
	"strconv"
)

// AddressFamily distinguishes IPv4 from IPv6 independently of the textual
// form of an address, since two differently-formatted strings can denote
// the same family.
type AddressFamily int

const (
	AddressFamilyUnknown AddressFamily = iota
	AddressFamilyIPv4
	AddressFamilyIPv6
)

// Protocol is the transport protocol a candidate is reachable over.
type Protocol int

const (
	ProtocolUDP Protocol = iota
	ProtocolTCP
)

func (p Protocol) String() string {
	if p == ProtocolTCP {
		return "tcp"
	}
	return "udp"
}

// CandidateType is the RFC 8445 §5.1.1 candidate type.
type CandidateType int

const (
	TypeHost CandidateType = iota
	TypeServerReflexive
	TypePeerReflexive
	TypeRelayed
)

func (t CandidateType) String() string {
	switch t {
	case TypeHost:
		return "host"
	case TypeServerReflexive:
		return "srflx"
	case TypePeerReflexive:
		return "prflx"
	case TypeRelayed:
		return "relay"
	default:
		return "unknown"
	}
}

// typePreference implements RFC 8445 §5.1.2.2's recommended type
// preferences. gortc/ice and the RFC agree that server- and peer-reflexive
// candidates take distinct preferences (100 and 110); the teacher's
// internal/ice/candidate.go collapses both to 110, which this intentionally
// does not follow since the distinction is observable in §8's invariants.
func (t CandidateType) typePreference() uint32 {
	switch t {
	case TypeHost:
		return 126
	case TypePeerReflexive:
		return 110
	case TypeServerReflexive:
		return 100
	case TypeRelayed:
		return 0
	default:
		return 0
	}
}

// TCPType is the RFC 6544 TCP candidate subtype. Only meaningful when
// Protocol is TCP.
type TCPType int

const (
	TCPTypeNone TCPType = iota
	TCPTypeActive
	TCPTypePassive
	TCPTypeSimultaneousOpen
)

func (t TCPType) String() string {
	switch t {
	case TCPTypeActive:
		return "active"
	case TCPTypePassive:
		return "passive"
	case TCPTypeSimultaneousOpen:
		return "so"
	default:
		return "none"
	}
}

// reverseOf returns the TCP type a remote candidate must carry to be
// pairable with a local candidate of type t, per the transport table in
// spec §4.2: SO<->SO, Active<->Passive.
func reverseOf(t TCPType) TCPType {
	switch t {
	case TCPTypeSimultaneousOpen:
		return TCPTypeSimultaneousOpen
	case TCPTypeActive:
		return TCPTypePassive
	case TCPTypePassive:
		return TCPTypeActive
	default:
		return TCPTypeNone
	}
}

// TransportAddress is an IP address, port, and address family, grounded on
// the teacher's internal/ice/transport.go TransportAddress but extended
// with an explicit AddressFamily field since the registry's invariants
// compare address families independently of the textual IP.
type TransportAddress struct {
	IP     net.IP
	Port   int
	Family AddressFamily
}

func familyOf(ip net.IP) AddressFamily {
	if ip == nil {
		return AddressFamilyUnknown
	}
	if ip.To4() != nil {
		return AddressFamilyIPv4
	}
	return AddressFamilyIPv6
}

// MakeTransportAddress builds a TransportAddress from an IP/port pair,
// inferring the address family.
func MakeTransportAddress(ip net.IP, port int) TransportAddress {
	return TransportAddress{IP: ip, Port: port, Family: familyOf(ip)}
}

func transportAddressFromNetAddr(addr net.Addr) TransportAddress {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return MakeTransportAddress(a.IP, a.Port)
	case *net.TCPAddr:
		return MakeTransportAddress(a.IP, a.Port)
	default:
		return TransportAddress{}
	}
}

func (a TransportAddress) String() string {
	return net.JoinHostPort(a.IP.String(), strconv.Itoa(a.Port))
}

func (a TransportAddress) equal(b TransportAddress) bool {
	return a.Port == b.Port && a.Family == b.Family && a.IP.Equal(b.IP)
}

func (a TransportAddress) isSet() bool {
	return a.IP != nil
}
