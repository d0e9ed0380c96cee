package stun

import (
	"encoding/binary"
	"net"

	"golang.org/x/xerrors"
)

// STUN/ICE attribute type values, RFC 5389 §15 and RFC 8445 §16.1.
const (
	AttrMappedAddress     uint16 = 0x0001
	AttrUsername          uint16 = 0x0006
	AttrMessageIntegrity  uint16 = 0x0008
	AttrErrorCode         uint16 = 0x0009
	AttrUnknownAttributes uint16 = 0x000A
	AttrXorMappedAddress  uint16 = 0x0020
	AttrPriority          uint16 = 0x0024
	AttrUseCandidate      uint16 = 0x0025
	AttrSoftware          uint16 = 0x8022
	AttrFingerprint       uint16 = 0x8028
	AttrIceControlled     uint16 = 0x8029
	AttrIceControlling    uint16 = 0x802A
)

// ICE error-code response codes (RFC 8445 §7.3, §7.1.3.3).
const (
	CodeUnauthorized  = 401
	CodeRoleConflict  = 487
)

func (m *Message) SetUsername(username string) {
	m.Add(AttrUsername, []byte(username))
}

func (m *Message) Username() (string, bool) {
	a, ok := m.Get(AttrUsername)
	if !ok {
		return "", false
	}
	return string(a.Value), true
}

func (m *Message) SetPriority(priority uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, priority)
	m.Add(AttrPriority, v)
}

func (m *Message) Priority() (uint32, bool) {
	a, ok := m.Get(AttrPriority)
	if !ok || len(a.Value) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(a.Value), true
}

func (m *Message) SetUseCandidate() {
	m.Add(AttrUseCandidate, nil)
}

func (m *Message) HasUseCandidate() bool {
	_, ok := m.Get(AttrUseCandidate)
	return ok
}

func (m *Message) SetIceControlling(tiebreaker uint64) {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, tiebreaker)
	m.Add(AttrIceControlling, v)
}

func (m *Message) SetIceControlled(tiebreaker uint64) {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, tiebreaker)
	m.Add(AttrIceControlled, v)
}

// IceControlRole reports whether the message carries ICE-CONTROLLING or
// ICE-CONTROLLED, and its tie-breaker value.
func (m *Message) IceControlRole() (controlling bool, tiebreaker uint64, present bool) {
	if a, ok := m.Get(AttrIceControlling); ok && len(a.Value) == 8 {
		return true, binary.BigEndian.Uint64(a.Value), true
	}
	if a, ok := m.Get(AttrIceControlled); ok && len(a.Value) == 8 {
		return false, binary.BigEndian.Uint64(a.Value), true
	}
	return false, 0, false
}

// SetErrorCode encodes the ERROR-CODE attribute per RFC 5389 §15.6: two
// reserved zero bytes, the class (hundreds digit) in the third byte, the
// number (code mod 100) in the fourth, followed by a human-readable reason
// phrase.
func (m *Message) SetErrorCode(code int, reason string) {
	v := make([]byte, 4+len(reason))
	v[2] = byte(code / 100)
	v[3] = byte(code % 100)
	copy(v[4:], reason)
	m.Add(AttrErrorCode, v)
}

func (m *Message) ErrorCode() (int, string, bool) {
	a, ok := m.Get(AttrErrorCode)
	if !ok || len(a.Value) < 4 {
		return 0, "", false
	}
	code := int(a.Value[2])*100 + int(a.Value[3])
	return code, string(a.Value[4:]), true
}

// SetXorMappedAddress encodes XOR-MAPPED-ADDRESS per RFC 5389 §15.2: the
// port and IPv4 address are XOR'd with the magic cookie; IPv6 addresses
// are additionally XOR'd with the transaction ID.
func (m *Message) SetXorMappedAddress(addr *net.UDPAddr) {
	family := byte(0x01)
	ip4 := addr.IP.To4()
	ip := ip4
	if ip4 == nil {
		family = 0x02
		ip = addr.IP.To16()
	}

	v := make([]byte, 4+len(ip))
	v[1] = family
	var cookie [4]byte
	binary.BigEndian.PutUint32(cookie[:], magicCookie)
	binary.BigEndian.PutUint16(v[2:4], uint16(addr.Port)^binary.BigEndian.Uint16(cookie[0:2]))

	xorBytes(v[4:], ip, xorPad(m.TransactionID))
	m.Add(AttrXorMappedAddress, v)
}

func xorPad(txID TransactionID) []byte {
	var cookie [4]byte
	binary.BigEndian.PutUint32(cookie[:], magicCookie)
	return append(append([]byte{}, cookie[:]...), txID[:]...)
}

func xorBytes(dst, src, pad []byte) {
	for i := range src {
		dst[i] = src[i] ^ pad[i%len(pad)]
	}
}

// XorMappedAddress decodes XOR-MAPPED-ADDRESS back into a *net.UDPAddr.
func (m *Message) XorMappedAddress() (*net.UDPAddr, error) {
	a, ok := m.Get(AttrXorMappedAddress)
	if !ok {
		return nil, xerrors.New("stun: no XOR-MAPPED-ADDRESS attribute")
	}
	if len(a.Value) < 4 {
		return nil, xerrors.New("stun: XOR-MAPPED-ADDRESS too short")
	}

	var cookie [4]byte
	binary.BigEndian.PutUint32(cookie[:], magicCookie)
	port := binary.BigEndian.Uint16(a.Value[2:4]) ^ binary.BigEndian.Uint16(cookie[0:2])

	ipBytes := make([]byte, len(a.Value)-4)
	xorBytes(ipBytes, a.Value[4:], xorPad(m.TransactionID))

	return &net.UDPAddr{IP: net.IP(ipBytes), Port: int(port)}, nil
}
