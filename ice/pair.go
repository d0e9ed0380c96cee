package ice

import "fmt"

type pairID int

// PairState is the per-pair lifecycle defined in §4.3. The zero value is
// Frozen, the initial state of every newly-created pair.
type PairState int

const (
	Frozen PairState = iota
	Waiting
	InProgress
	Succeeded
	Failed
)

func (s PairState) String() string {
	switch s {
	case Frozen:
		return "frozen"
	case Waiting:
		return "waiting"
	case InProgress:
		return "in-progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// completed reports whether a pair has left the active pipeline, per the
// completion predicate in §3/§4.3.
func (s PairState) completed() bool {
	return s == Succeeded || s == Failed
}

// CandidatePair references one local and one remote candidate by arena ID
// (never by pointer, per the cyclic-reference design note) plus its own
// lifecycle state.
type CandidatePair struct {
	ID pairID

	Local  localCandidateID
	Remote remoteCandidateID

	Foundation string

	pairPriority uint64
	State        PairState

	Valid       bool
	Nominated   bool
	Established bool
	Triggered   bool

	ErrorCode int
	StunCode  uint16

	// triggeredUseCandidate records the USE-CANDIDATE bit carried by the
	// inbound Binding Request that triggered this pair's last out-of-pace
	// check (§4.5), since that bit is per-request, not a static property
	// of the checklist the way cl.useCandidate is for a paced check.
	triggeredUseCandidate bool

	// tcpConn is non-nil only for TCP pairs; it is the shared connection
	// record for (componentId, localAddress, peerAddress), per §5's
	// "shared resources" rule.
	tcpConn *tcpConnection
}

func (p *CandidatePair) String() string {
	return fmt.Sprintf("pair#%d[%s] prio=%d", p.ID, p.State, p.pairPriority)
}

// pairPriority implements RFC 8445 §6.1.2.3 exactly as stated in spec §3:
// G is the controlling side's priority, D is the controlled side's.
// gortc/ice's ComputePriorities(role) swaps G/D based on role before
// calling this; the teacher's CandidatePair.Priority() has a TODO
// admitting it never does this swap, so this follows gortc/ice (and the
// spec's own wording) instead of the teacher's fixed-role formula.
func pairPriority(localPriority, remotePriority uint32, controlling bool) uint64 {
	var g, d uint64
	if controlling {
		g, d = uint64(localPriority), uint64(remotePriority)
	} else {
		g, d = uint64(remotePriority), uint64(localPriority)
	}
	min, max := g, d
	if min > max {
		min, max = max, min
	}
	var b uint64
	if g > d {
		b = 1
	}
	return (min << 32) + (max << 1) + b
}
