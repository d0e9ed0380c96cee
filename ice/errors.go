package ice

import "fmt"

// Kind classifies errors returned at the public boundary of the agent.
type Kind int

const (
	// InvalidArgument covers a missing componentId/protocol/address or a
	// too-short ufrag or password.
	InvalidArgument Kind = iota
	// AddressFamilyUnsupported is returned when a candidate's address
	// family disagrees with its base address.
	AddressFamilyUnsupported
	// ProtocolUnsupported covers an unrecognised transport protocol or TCP
	// type. AddLocal also returns it when the candidate's socket or TCP
	// listener cannot be set up.
	ProtocolUnsupported
	// OutOfMemory covers allocation failure while creating a candidate or
	// pair. Go allocation failures are not recoverable, so this kind only
	// appears where a capacity limit is enforced explicitly.
	OutOfMemory
	// PreconditionFailed is returned by StartChecklist when the remote
	// password has not been set.
	PreconditionFailed
	// NotImplemented covers operations issued against a non-existent
	// checklist.
	NotImplemented
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case AddressFamilyUnsupported:
		return "address family unsupported"
	case ProtocolUnsupported:
		return "protocol unsupported"
	case OutOfMemory:
		return "out of memory"
	case PreconditionFailed:
		return "precondition failed"
	case NotImplemented:
		return "not implemented"
	default:
		return "unknown"
	}
}

// Error is the error type returned at the public boundary of the agent. It
// carries a Kind so callers can branch on failure class with errors.As,
// plus an optional wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ice: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("ice: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
