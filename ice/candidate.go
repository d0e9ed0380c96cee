package ice

import (
	"fmt"
	"hash/fnv"
)

// localCandidateID and remoteCandidateID are arena indices rather than
// pointers, per the cyclic-reference design note: the agent owns every
// candidate in a slice-backed arena and pairs refer to candidates by a
// stable small integer. Pairs themselves are held by pointer (in
// Agent.allPairs, the check list, the valid list and the triggered-check
// queue); a pair's pairID is a sequence number, not an arena index.
type localCandidateID int
type remoteCandidateID int

const noCandidateID = -1

// CandidateAttributes is embedded by value in both LocalCandidate and
// RemoteCandidate (composition, not inheritance, per the design notes).
type CandidateAttributes struct {
	ComponentID int
	Foundation  string
	Protocol    Protocol
	Priority    uint32
	Address     TransportAddress
	Type        CandidateType
	TCPType     TCPType
}

// LocalCandidate extends CandidateAttributes with the fields only a
// locally-owned endpoint needs: the base address it derives from, the
// socket it is reachable through, and the layer at which its receive hook
// is registered.
type LocalCandidate struct {
	CandidateAttributes

	BaseAddress TransportAddress

	socket DatagramSocket
	layer  int
}

// RemoteCandidate is CandidateAttributes alone, supplied via signalling or
// learned as peer-reflexive.
type RemoteCandidate struct {
	CandidateAttributes
}

func (c CandidateAttributes) String() string {
	return fmt.Sprintf("%s/%d %s %s prio=%d", c.Type, c.ComponentID, c.Protocol, c.Address, c.Priority)
}

// computeFoundation renders a hex hash of the candidate's base address
// bytes XOR'd with its type ordinal, truncated to 8 hex characters, per
// §4.1. This mirrors original_source/src/trice/lcand.c's
// compute_foundation (sa_hash(addr) ^ type, "%08x") rather than the
// teacher's FNV+base32 variant, since the original C source is the more
// direct ground truth for this exact wording ("hex hash ... XOR
// type-ordinal").
func computeFoundation(base TransportAddress, typ CandidateType) string {
	h := fnv.New32a()
	h.Write(base.IP)
	v := h.Sum32() ^ uint32(typ)
	return fmt.Sprintf("%08x", v)
}

// computePriority implements RFC 8445 §5.1.2.1: priority = (2^24)*typePref
// + (2^8)*localPref + (2^0)*(256-componentId). localPref is fixed at
// 65535 since this agent does not model multi-homed local preference
// beyond what the caller supplies explicitly via AddLocal's priority
// argument when it chooses to override.
func computePriority(typ CandidateType, componentID int) uint32 {
	const localPref = 65535
	return (typ.typePreference() << 24) + (localPref << 8) + uint32(256-componentID)
}

// ComputePriority exports computePriority for callers (e.g. cmd/iceagent-demo)
// that synthesise their own candidates rather than learning priorities
// from signalling.
func ComputePriority(typ CandidateType, componentID int) uint32 {
	return computePriority(typ, componentID)
}
