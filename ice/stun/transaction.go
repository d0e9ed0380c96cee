package stun

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/xerrors"
)

// Writer is satisfied by both net.PacketConn and the ice package's
// DatagramSocket; Transport only needs WriteTo, so it is expressed as a
// narrow duck-typed interface rather than importing package ice (which
// would create an import cycle, since ice imports stun).
type Writer interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// Timer is the retransmission clock collaborator: one-shot, cancellable,
// millisecond granularity. This mirrors ice.Timer's method set exactly
// (After/Stop) but is declared locally rather than imported, for the same
// import-cycle reason as Writer above; a caller's ice.Timer value
// satisfies this interface structurally with no adapter needed.
type Timer interface {
	After(d time.Duration) <-chan time.Time
	Stop()
}

// systemTimer is the Timer NewTransport uses when the caller supplies no
// factory: a thin wrapper over time.Timer, the same shape as ice's own
// default Timer implementation.
type systemTimer struct {
	t *time.Timer
}

func (s *systemTimer) After(d time.Duration) <-chan time.Time {
	if s.t != nil {
		s.t.Stop()
	}
	s.t = time.NewTimer(d)
	return s.t.C
}

func (s *systemTimer) Stop() {
	if s.t != nil {
		s.t.Stop()
	}
}

// Transport is the §6 "STUN transaction layer" collaborator: submit a
// request with (destination, body, response-handler), retransmit on its
// own schedule, and resolve the pending transaction when a matching
// response is delivered.
//
// Retransmission follows RFC 8445 §14.3's request, RTO, RTO*2, RTO*4, ...
// pattern; the exact RTO is an explicit Open Question left to the
// implementer (see DESIGN.md), so this uses a fixed 500ms initial RTO
// with 7 retransmits, matching RFC 5389 §7.2.1's suggested defaults. Each
// Submit call drives its own retransmit schedule through a Timer built by
// newTimer, so a caller (e.g. ice.Agent, via its own Timer collaborator)
// can supply a fake clock in tests instead of waiting on wall time.
type Transport struct {
	mu       sync.Mutex
	pending  map[TransactionID]*pendingTransaction
	newTimer func() Timer
}

type pendingTransaction struct {
	done   chan struct{}
	resp   *Message
	err    error
	cancel func()
}

// NewTransport constructs an empty transaction table. newTimer may be nil,
// in which case Submit retransmits against a real wall-clock timer.
func NewTransport(newTimer func() Timer) *Transport {
	if newTimer == nil {
		newTimer = func() Timer { return &systemTimer{} }
	}
	return &Transport{pending: make(map[TransactionID]*pendingTransaction), newTimer: newTimer}
}

// Submit sends msg to dst through w, retransmitting per the schedule
// above, and blocks until a matching response is delivered via Deliver,
// the context is cancelled, or retransmits are exhausted.
func (t *Transport) Submit(ctx context.Context, dst net.Addr, msg *Message, w Writer) (*Message, error) {
	pt := &pendingTransaction{done: make(chan struct{})}

	t.mu.Lock()
	t.pending[msg.TransactionID] = pt
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	pt.cancel = cancel

	timer := t.newTimer()
	defer func() {
		t.mu.Lock()
		delete(t.pending, msg.TransactionID)
		t.mu.Unlock()
		cancel()
		timer.Stop()
	}()

	wire := msg.Encode()

	rto := 500 * time.Millisecond
	const maxRetransmits = 7

	if _, err := w.WriteTo(wire, dst); err != nil {
		return nil, err
	}

	timerC := timer.After(rto)
	for attempt := 0; ; attempt++ {
		select {
		case <-pt.done:
			return pt.resp, pt.err
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timerC:
			if attempt >= maxRetransmits {
				return nil, xerrors.New("stun: transaction timed out")
			}
			if _, err := w.WriteTo(wire, dst); err != nil {
				return nil, err
			}
			rto *= 2
			timerC = timer.After(rto)
		}
	}
}

// Deliver routes an inbound response or error-response to its pending
// transaction, if any. It reports whether a transaction was found.
func (t *Transport) Deliver(msg *Message) bool {
	t.mu.Lock()
	pt, ok := t.pending[msg.TransactionID]
	t.mu.Unlock()
	if !ok {
		return false
	}
	pt.resp = msg
	close(pt.done)
	return true
}
