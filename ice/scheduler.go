package ice

import (
	"time"

	"github.com/pkg/errors"
)

// StartChecklist implements §4.4's constructor. It fails with
// PreconditionFailed if the remote password has not been set, and with a
// successful no-op (AlreadyStarted) if a checklist already exists,
// mirroring original_source/src/trice/chklist.c's
// trice_checklist_start (`if (icem->checklist) return 0;`).
func (a *Agent) StartChecklist(intervalMs int, useCandidate bool, onEstablished func(*CandidatePair, []byte, interface{}), onFailed func(int, uint16, *CandidatePair, interface{}), arg interface{}) error {
	if a.checklist != nil {
		return nil // AlreadyStarted: success, no-op.
	}
	if a.remotePassword == "" {
		return newError("StartChecklist", PreconditionFailed, errors.New("remote password not set"))
	}

	cl := &Checklist{
		state:         ChecklistRunning,
		pairs:         append([]*CandidatePair(nil), a.allPairs...),
		useCandidate:  useCandidate,
		intervalMs:    intervalMs,
		onEstablished: onEstablished,
		onFailed:      onFailed,
		arg:           arg,
		timer:         a.newTimer(),
	}
	cl.resort()
	a.checklist = cl

	a.setWaitingForAllFoundations()

	cl.running = true
	a.armPaceTimer(1 * time.Millisecond)

	return nil
}

func (a *Agent) armPaceTimer(d time.Duration) {
	a.paceC = a.checklist.timer.After(d)
}

// nextPair selects the pair the pace loop should check next: the
// triggered queue first, then the highest-priority Waiting pair, then the
// highest-priority Frozen pair (which the act of checking implicitly
// unfreezes), exactly per §4.4. The triggered bool reports whether p came
// off the triggered-check queue, in which case the caller must honor
// p.triggeredUseCandidate (the bit carried by the request that triggered
// it) rather than the checklist's static useCandidate config.
func (a *Agent) nextPair() (next *CandidatePair, triggered bool) {
	cl := a.checklist

	if len(a.triggeredQueue) > 0 {
		p := a.triggeredQueue[0]
		a.triggeredQueue = a.triggeredQueue[1:]
		if !p.State.completed() {
			return p, true
		}
	}

	for _, p := range cl.pairs {
		if p.State == Waiting {
			return p, false
		}
	}
	for _, p := range cl.pairs {
		if p.State == Frozen {
			return p, false
		}
	}
	return nil, false
}

// paceTick implements one iteration of §4.4's pace loop: issue at most
// one outbound check, then re-evaluate checklist completion, then
// re-arm (or stop) the pace timer.
func (a *Agent) paceTick() {
	cl := a.checklist
	if cl == nil || cl.state != ChecklistRunning {
		return
	}

	if p, triggered := a.nextPair(); p != nil {
		useCandidate := cl.useCandidate
		if triggered {
			useCandidate = p.triggeredUseCandidate
		}
		if err := a.ConnCheckSend(p, useCandidate); err != nil && err != errTCPNotReady {
			p.State = Failed
			p.ErrorCode = 1
		}
	}

	a.checklistUpdate()

	if a.checklist != nil && a.checklist.running {
		a.armPaceTimer(time.Duration(cl.intervalMs) * time.Millisecond)
	}
}

// triggerCheck implements the "triggered check" behaviour from §4.5/§4.6:
// an inbound Binding Request on a pair that is Frozen, Waiting, or Failed
// queues an immediate out-of-pace check.
func (a *Agent) triggerCheck(p *CandidatePair) {
	if p.State == Frozen || p.State == Waiting || p.State == Failed {
		p.Triggered = true
		a.triggeredQueue = append(a.triggeredQueue, p)
	}
}
