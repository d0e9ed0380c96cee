package ice

import "sort"

// ChecklistState is the checklist-level state machine from §3/§4.4. A
// Checklist only exists once StartChecklist has succeeded; there is no
// observable Idle state distinct from "no checklist yet".
type ChecklistState int

const (
	ChecklistRunning ChecklistState = iota
	ChecklistCompleted
	ChecklistFailed
)

func (s ChecklistState) String() string {
	switch s {
	case ChecklistRunning:
		return "running"
	case ChecklistCompleted:
		return "completed"
	case ChecklistFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Checklist holds every CandidatePair derived from the local/remote
// registries, sorted by pairPriority descending, plus the subset that
// completed a successful round trip (the valid list).
type Checklist struct {
	state ChecklistState

	pairs []*CandidatePair
	valid []*CandidatePair

	selected *CandidatePair

	nextPairID pairID

	useCandidate  bool
	intervalMs    int
	onEstablished func(*CandidatePair, []byte, interface{})
	onFailed      func(errCode int, stunCode uint16, pair *CandidatePair, arg interface{})
	arg           interface{}

	timer   Timer
	running bool
}

// State returns the checklist's current top-level state.
func (c *Checklist) State() ChecklistState {
	return c.state
}

// Pairs is a read-only view of the check list, sorted by pairPriority
// descending (§6 checklist()).
func (c *Checklist) Pairs() []*CandidatePair {
	return c.pairs
}

// ValidList is a read-only view of the valid list (§6 validList()).
func (c *Checklist) ValidList() []*CandidatePair {
	return c.valid
}

// IsCompleted implements the completion predicate from §3: every pair is
// Succeeded or Failed.
func (c *Checklist) IsCompleted() bool {
	for _, p := range c.pairs {
		if !p.State.completed() {
			return false
		}
	}
	return true
}

// canBePaired implements the §4.2 pairing predicate: matching componentId
// and protocol-compatible transport (UDP<->UDP, or TCP with the reversed
// tcpType table).
func canBePaired(local *LocalCandidate, remote *RemoteCandidate) bool {
	if local.ComponentID != remote.ComponentID {
		return false
	}
	if local.Protocol != remote.Protocol {
		return false
	}
	if local.Protocol == ProtocolTCP {
		return remote.TCPType == reverseOf(local.TCPType)
	}
	return local.Address.Family == remote.Address.Family || remote.Address.Family == AddressFamilyUnknown
}

// pairLocalWithRemotes pairs one newly-added local candidate against
// every known remote, per §4.1(b).
func (a *Agent) pairLocalWithRemotes(lid localCandidateID) {
	local := &a.localCandidates[lid]
	for rid := range a.remoteCandidates {
		remote := &a.remoteCandidates[rid]
		if canBePaired(local, remote) {
			a.addPair(lid, remoteCandidateID(rid))
		}
	}
}

// pairRemoteWithLocals pairs one newly-added remote candidate against
// every known local, per §4.1(b) ("and vice-versa on remote addition").
func (a *Agent) pairRemoteWithLocals(rid remoteCandidateID) {
	remote := &a.remoteCandidates[rid]
	for lid := range a.localCandidates {
		local := &a.localCandidates[lid]
		if canBePaired(local, remote) {
			a.addPair(localCandidateID(lid), rid)
		}
	}
}

// addPair constructs a new pair in state Frozen, computes its priority
// under the agent's current role, and inserts it into the checklist
// (if one exists yet) at the position dictated by descending priority.
func (a *Agent) addPair(lid localCandidateID, rid remoteCandidateID) *CandidatePair {
	local := &a.localCandidates[lid]
	remote := &a.remoteCandidates[rid]

	p := &CandidatePair{
		ID:           a.nextPairID,
		Local:        lid,
		Remote:       rid,
		Foundation:   local.Foundation + "/" + remote.Foundation,
		State:        Frozen,
		pairPriority: pairPriority(local.Priority, remote.Priority, a.controlling),
	}
	a.nextPairID++
	a.allPairs = append(a.allPairs, p)

	if a.checklist != nil {
		a.checklist.insert(p)
	}
	return p
}

// insert appends p and re-sorts by priority descending (stable so equal
// priorities preserve insertion order per invariant 2). §3 defines the
// check list as containing exactly one pair for every (local, remote)
// with matching componentId and compatible transport, with no redundancy
// exception for pairs sharing a local base address, so every pair built
// by addPair survives here unconditionally.
func (c *Checklist) insert(p *CandidatePair) {
	c.pairs = append(c.pairs, p)
	c.resort()
}

func (c *Checklist) resort() {
	sort.SliceStable(c.pairs, func(i, j int) bool {
		return c.pairs[i].pairPriority > c.pairs[j].pairPriority
	})
}

// prioOrder recomputes every pair's priority under the given role and
// re-sorts, per §4.2. Invoked when the agent flips role due to a role
// conflict (§4.5).
func (a *Agent) prioOrder(controlling bool) {
	for _, p := range a.allPairs {
		local := &a.localCandidates[p.Local]
		remote := &a.remoteCandidates[p.Remote]
		p.pairPriority = pairPriority(local.Priority, remote.Priority, controlling)
	}
	if a.checklist != nil {
		a.checklist.resort()
	}
}

// cmpFoundation reports whether two pairs share a foundation, i.e. the
// component+candidate-attribute hash combination used by
// setWaitingForAllFoundations.
func cmpFoundation(a, b *CandidatePair) bool {
	return a.Foundation == b.Foundation
}

// setWaitingForAllFoundations implements the "unfreeze by foundation" rule
// from §4.3: for every foundation group, the member with the lowest
// componentId (ties broken by highest pairPriority) moves Frozen->Waiting.
// Invoked exactly once, before the first pace tick.
func (a *Agent) setWaitingForAllFoundations() {
	cl := a.checklist
	seen := make(map[string]bool)
	for _, p := range cl.pairs {
		if seen[p.Foundation] {
			continue
		}
		seen[p.Foundation] = true

		best := p
		bestComponent := a.localCandidates[p.Local].ComponentID
		for _, q := range cl.pairs {
			if !cmpFoundation(p, q) {
				continue
			}
			qComponent := a.localCandidates[q.Local].ComponentID
			switch {
			case qComponent < bestComponent:
				best, bestComponent = q, qComponent
			case qComponent == bestComponent && q.pairPriority > best.pairPriority:
				best = q
			}
		}
		if best.State == Frozen {
			best.State = Waiting
		}
	}
}

// checklistUpdate implements the end of §4.4's pace tick: if the
// checklist is completed, transition to Completed (valid list non-empty)
// or Failed, and cancel the pace timer either way.
func (a *Agent) checklistUpdate() {
	cl := a.checklist
	if cl == nil || !cl.IsCompleted() {
		return
	}
	if len(cl.valid) > 0 {
		cl.state = ChecklistCompleted
	} else {
		cl.state = ChecklistFailed
	}
	cl.timer.Stop()
	cl.running = false
}
