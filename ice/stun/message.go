// Package stun implements the RFC 5389 STUN message codec and the ICE
// attribute set used by connectivity checks (RFC 8445). It is kept
// separate from package ice so the wire format can be swapped without
// touching the agent core, though this codec is what ships by default.
package stun

import (
	"crypto/rand"
	"encoding/binary"

	"golang.org/x/xerrors"
)

// magicCookie is the fixed constant from RFC 5389 §6 used to distinguish
// STUN from other protocols sharing a port and to XOR-obscure
// XOR-MAPPED-ADDRESS.
const magicCookie uint32 = 0x2112A442

// Class is the two-bit STUN message class (RFC 5389 Figure 3).
type Class uint8

const (
	ClassRequest Class = iota
	ClassIndication
	ClassSuccessResponse
	ClassErrorResponse
)

// Method is the STUN message method. Only Binding is used by ICE.
type Method uint16

const (
	MethodBinding Method = 0x0001
)

// TransactionID is the 96-bit STUN transaction identifier.
type TransactionID [12]byte

// NewTransactionID generates a random transaction ID.
func NewTransactionID() TransactionID {
	var id TransactionID
	_, _ = rand.Read(id[:])
	return id
}

// Message is a decoded STUN message: header fields plus the ordered list
// of attributes, matching the collaborator contract of spec §6 ("decode
// into (class, method, transactionId, attributes)").
type Message struct {
	Class         Class
	Method        Method
	TransactionID TransactionID
	Attributes    []Attribute

	raw []byte // header+attributes as encoded, filled in after Encode
}

// Attribute is a single STUN TLV attribute.
type Attribute struct {
	Type  uint16
	Value []byte
}

func (m *Message) Get(t uint16) (Attribute, bool) {
	for _, a := range m.Attributes {
		if a.Type == t {
			return a, true
		}
	}
	return Attribute{}, false
}

func (m *Message) Add(t uint16, value []byte) {
	m.Attributes = append(m.Attributes, Attribute{Type: t, Value: value})
}

// composeMessageType packs class and method into the 14-bit STUN message
// type field per RFC 5389 Figure 3's interleaved bit layout.
func composeMessageType(class Class, method Method) uint16 {
	m := uint16(method)
	c := uint16(class)
	return (m & 0x0F80 << 2) | (m & 0x0070 << 1) | (m & 0x000F) |
		(c & 0x02 << 7) | (c & 0x01 << 4)
}

func decomposeMessageType(t uint16) (Class, Method) {
	m := (t & 0x3E00 >> 2) | (t & 0x00E0 >> 1) | (t & 0x000F)
	c := (t & 0x0100 >> 7) | (t & 0x0010 >> 4)
	return Class(c), Method(m)
}

// New creates a request/indication message of the given class/method with
// a fresh transaction ID.
func New(class Class, method Method) *Message {
	return &Message{Class: class, Method: method, TransactionID: NewTransactionID()}
}

// NewResponse builds a response sharing the request's transaction ID.
func NewResponse(class Class, method Method, txID TransactionID) *Message {
	return &Message{Class: class, Method: method, TransactionID: txID}
}

func pad4(n int) int {
	if r := n % 4; r != 0 {
		return n + (4 - r)
	}
	return n
}

// Encode serializes the message to wire format, including the 20-byte
// header and every attribute padded to a 4-byte boundary. It does not add
// MESSAGE-INTEGRITY or FINGERPRINT; call AddMessageIntegrity/AddFingerprint
// on the message first if needed, since both attributes must be computed
// over the bytes that precede them.
func (m *Message) Encode() []byte {
	var body []byte
	for _, a := range m.Attributes {
		body = appendAttribute(body, a)
	}

	buf := make([]byte, 20+len(body))
	binary.BigEndian.PutUint16(buf[0:2], composeMessageType(m.Class, m.Method))
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(body)))
	binary.BigEndian.PutUint32(buf[4:8], magicCookie)
	copy(buf[8:20], m.TransactionID[:])
	copy(buf[20:], body)

	m.raw = buf
	return buf
}

func appendAttribute(buf []byte, a Attribute) []byte {
	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], a.Type)
	binary.BigEndian.PutUint16(header[2:4], uint16(len(a.Value)))
	buf = append(buf, header...)
	buf = append(buf, a.Value...)
	padded := pad4(len(a.Value))
	for i := len(a.Value); i < padded; i++ {
		buf = append(buf, 0)
	}
	return buf
}

// Decode parses a STUN message from the wire. Per spec §4.6 step 1, a
// decode failure is not an error condition for the caller — the ICE
// demultiplexer treats it as "not a STUN message" and lets the bytes flow
// to another layer — so Decode returns a plain error rather than an
// *ice.Error, and callers are expected to treat any error as "not
// handled" rather than surfacing it.
func Decode(buf []byte) (*Message, error) {
	if len(buf) < 20 {
		return nil, xerrors.New("stun: message shorter than header")
	}
	typ := binary.BigEndian.Uint16(buf[0:2])
	if typ&0xC000 != 0 {
		return nil, xerrors.New("stun: top two bits of message type must be zero")
	}
	length := int(binary.BigEndian.Uint16(buf[2:4]))
	if length%4 != 0 {
		return nil, xerrors.New("stun: message length not a multiple of 4")
	}
	cookie := binary.BigEndian.Uint32(buf[4:8])
	if cookie != magicCookie {
		return nil, xerrors.New("stun: bad magic cookie")
	}
	if len(buf) < 20+length {
		return nil, xerrors.New("stun: truncated message body")
	}

	class, method := decomposeMessageType(typ)
	m := &Message{Class: class, Method: method, raw: buf[:20+length]}
	copy(m.TransactionID[:], buf[8:20])

	body := buf[20 : 20+length]
	for len(body) > 0 {
		if len(body) < 4 {
			return nil, xerrors.New("stun: truncated attribute header")
		}
		at := binary.BigEndian.Uint16(body[0:2])
		al := int(binary.BigEndian.Uint16(body[2:4]))
		padded := pad4(al)
		if len(body) < 4+padded {
			return nil, xerrors.New("stun: truncated attribute value")
		}
		value := make([]byte, al)
		copy(value, body[4:4+al])
		m.Attributes = append(m.Attributes, Attribute{Type: at, Value: value})
		body = body[4+padded:]
	}

	return m, nil
}
