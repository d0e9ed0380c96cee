package ice

import "time"

// Timer is the §6 "Timer" collaborator: one-shot with millisecond
// granularity, cancellable. The pace loop and the STUN transaction layer's
// retransmission policy are both built on repeated one-shot scheduling
// rather than a ticker, so a caller can supply a deterministic fake in
// tests.
type Timer interface {
	// After (re)arms the timer to fire once after d; the returned channel
	// receives the firing time.
	After(d time.Duration) <-chan time.Time
	Stop()
}

// systemTimer is the default Timer, a thin wrapper over time.Timer.
type systemTimer struct {
	t *time.Timer
}

func newSystemTimer() *systemTimer {
	return &systemTimer{}
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
