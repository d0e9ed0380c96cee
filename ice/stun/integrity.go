package stun

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"hash/crc32"

	"golang.org/x/xerrors"
)

// fingerprintXor is the constant STUN XORs into the FINGERPRINT CRC-32 so
// it cannot be confused with a framed protocol's own checksum (RFC 5389
// §15.5).
const fingerprintXor uint32 = 0x5354554e

func (m *Message) encodeAttributesExcept(skip ...uint16) []byte {
	var body []byte
outer:
	for _, a := range m.Attributes {
		for _, s := range skip {
			if a.Type == s {
				continue outer
			}
		}
		body = appendAttribute(body, a)
	}
	return body
}

func (m *Message) encodeHeaderFor(bodyLen int) []byte {
	buf := make([]byte, 20)
	binary.BigEndian.PutUint16(buf[0:2], composeMessageType(m.Class, m.Method))
	binary.BigEndian.PutUint16(buf[2:4], uint16(bodyLen))
	binary.BigEndian.PutUint32(buf[4:8], magicCookie)
	copy(buf[8:20], m.TransactionID[:])
	return buf
}

// AddMessageIntegrity computes HMAC-SHA1 over the message as it would be
// encoded with MESSAGE-INTEGRITY itself appended (but not FINGERPRINT,
// which must come after), per RFC 5389 §15.4. Call this after every other
// attribute has been added, and before AddFingerprint.
func (m *Message) AddMessageIntegrity(key []byte) {
	body := m.encodeAttributesExcept(AttrMessageIntegrity, AttrFingerprint)
	header := m.encodeHeaderFor(len(body) + 24) // +4 attr header + 20 byte HMAC
	mac := hmac.New(sha1.New, key)
	mac.Write(header)
	mac.Write(body)
	m.Add(AttrMessageIntegrity, mac.Sum(nil))
}

// VerifyMessageIntegrity recomputes MESSAGE-INTEGRITY using key and
// reports whether it matches the attribute already on the message.
func (m *Message) VerifyMessageIntegrity(key []byte) bool {
	a, ok := m.Get(AttrMessageIntegrity)
	if !ok || len(a.Value) != 20 {
		return false
	}
	body := m.encodeAttributesExcept(AttrMessageIntegrity, AttrFingerprint)
	header := m.encodeHeaderFor(len(body) + 24)
	mac := hmac.New(sha1.New, key)
	mac.Write(header)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), a.Value)
}

// AddFingerprint appends FINGERPRINT over everything encoded so far,
// including MESSAGE-INTEGRITY if already present. Must be the last
// attribute added.
func (m *Message) AddFingerprint() {
	body := m.encodeAttributesExcept(AttrFingerprint)
	header := m.encodeHeaderFor(len(body) + 8) // +4 attr header + 4 byte CRC
	crc := crc32.ChecksumIEEE(append(append([]byte{}, header...), body...)) ^ fingerprintXor
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, crc)
	m.Add(AttrFingerprint, v)
}

// VerifyFingerprint recomputes FINGERPRINT and reports whether it matches.
func (m *Message) VerifyFingerprint() error {
	a, ok := m.Get(AttrFingerprint)
	if !ok || len(a.Value) != 4 {
		return xerrors.New("stun: no FINGERPRINT attribute")
	}
	body := m.encodeAttributesExcept(AttrFingerprint)
	header := m.encodeHeaderFor(len(body) + 8)
	crc := crc32.ChecksumIEEE(append(append([]byte{}, header...), body...)) ^ fingerprintXor
	if binary.BigEndian.Uint32(a.Value) != crc {
		return xerrors.New("stun: FINGERPRINT mismatch")
	}
	return nil
}
