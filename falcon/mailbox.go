package falcon

import "fmt"

// Op selects how a mailbox value is compared.
type Op int

// Comparison operators for mailbox predicates.
const (
	OpSkip Op = iota
	OpEqual
	OpNotEqual
	OpAnd
	OpLess
	OpLessEqual
)

func (o Op) String() string {
	switch o {
	case OpSkip:
		return "skip"
	case OpEqual:
		return "eq"
	case OpNotEqual:
		return "ne"
	case OpAnd:
		return "and"
	case OpLess:
		return "lt"
	case OpLessEqual:
		return "le"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// A Predicate tests a mailbox value. The zero Predicate never matches.
type Predicate struct {
	Op    Op
	Value uint32
}

// Match reports whether v satisfies the predicate.
func (p Predicate) Match(v uint32) bool {
	switch p.Op {
	case OpEqual:
		return v == p.Value
	case OpNotEqual:
		return v != p.Value
	case OpAnd:
		return v&p.Value != 0
	case OpLess:
		return v < p.Value
	case OpLessEqual:
		return v <= p.Value
	default:
		return false
	}
}

// Helpers for building predicates.
func Eq(v uint32) Predicate     { return Predicate{Op: OpEqual, Value: v} }
func Ne(v uint32) Predicate     { return Predicate{Op: OpNotEqual, Value: v} }
func BitAnd(v uint32) Predicate { return Predicate{Op: OpAnd, Value: v} }
func Lt(v uint32) Predicate     { return Predicate{Op: OpLess, Value: v} }
func Le(v uint32) Predicate     { return Predicate{Op: OpLessEqual, Value: v} }
func NoCheck() Predicate        { return Predicate{} }

// A Method is one control-plane request to the FECS.
type Method struct {
	// Name labels the request in logs and recordings.
	Name string

	// MailboxID, when not zero, selects a mailbox that receives
	// MailboxData before the request is issued.
	MailboxID   int
	MailboxData uint32

	// MailboxClear is written to the clear register of mailbox 0.
	MailboxClear uint32

	Data uint32
	Addr uint32

	Ok   Predicate
	Fail Predicate
}
