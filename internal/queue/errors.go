package queue

import (
	"errors"
	"fmt"
)

// Kind classifies a client-side failure by the recovery policy it gets:
// transport errors are skipped per unit of work, auth errors are surfaced as
// configuration problems, domain errors are shown verbatim, partial-completion
// errors are logged but non-fatal, consistency errors abort one operation.
type Kind string

const (
	KindTransport   Kind = "transport"
	KindAuth        Kind = "auth"
	KindDomain      Kind = "domain"
	KindPartial     Kind = "partial_completion"
	KindConsistency Kind = "consistency"
)

// Error is a classified failure from the queue service or a downstream
// operation acting on its data.
type Error struct {
	Kind    Kind
	Op      string // e.g. "submit", "claim"
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err (or anything it wraps) is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var qe *Error
	return errors.As(err, &qe) && qe.Kind == k
}

func transportErr(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func authErr(op, message string) *Error {
	return &Error{Kind: KindAuth, Op: op, Message: message}
}

func domainErr(op, message string) *Error {
	return &Error{Kind: KindDomain, Op: op, Message: message}
}
