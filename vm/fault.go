package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/prism/codec"
)

// ---------------------------------------------------------------------------
// Fault reasons
// ---------------------------------------------------------------------------

// FaultReason classifies why a VM stopped in the Faulted state. It
// implements error so callers can test a Fault with errors.Is.
type FaultReason uint8

const (
	InvalidOpcode FaultReason = iota + 1
	StackUnderflow
	StackOverflow
	DivisionByZero
	OutOfBoundsJump
	ResourceExhausted
	InvalidAddress
	InvalidOperand
	HostError
	Cancelled
)

var reasonNames = map[FaultReason]string{
	InvalidOpcode:     "invalid opcode",
	StackUnderflow:    "stack underflow",
	StackOverflow:     "stack overflow",
	DivisionByZero:    "division by zero",
	OutOfBoundsJump:   "out of bounds jump",
	ResourceExhausted: "resource exhausted",
	InvalidAddress:    "invalid address",
	InvalidOperand:    "invalid operand",
	HostError:         "host error",
	Cancelled:         "cancelled",
}

func (r FaultReason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("fault(%d)", uint8(r))
}

func (r FaultReason) Error() string {
	return r.String()
}

// ---------------------------------------------------------------------------
// Fault
// ---------------------------------------------------------------------------

// Fault records the terminal error of one VM instance together with the
// instruction that raised it and the register file at that moment.
type Fault struct {
	Reason    FaultReason         `cbor:"reason"`
	Op        codec.Opcode        `cbor:"op"`
	Pos       codec.Point         `cbor:"pos"`
	Registers [NumRegisters]Value `cbor:"registers"`
	Detail    string              `cbor:"detail,omitempty"`

	// Retry is set when the instruction at Pos never ran (step budget,
	// cancellation), so a resumed VM can execute it again.
	Retry bool `cbor:"retry,omitempty"`
}

func (f *Fault) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("%s at %s %v: %s", f.Reason, f.Op, f.Pos, f.Detail)
	}
	return fmt.Sprintf("%s at %s %v", f.Reason, f.Op, f.Pos)
}

// Unwrap exposes the reason, so errors.Is(fault, vm.DivisionByZero) works.
func (f *Fault) Unwrap() error {
	return f.Reason
}

// trap is the internal error a handler returns; the interpreter turns it
// into a Fault stamped with the current instruction.
type trap struct {
	reason FaultReason
	detail string
}

func (t *trap) Error() string {
	return t.reason.String() + ": " + t.detail
}

func trapf(reason FaultReason, format string, args ...any) error {
	return &trap{reason: reason, detail: fmt.Sprintf(format, args...)}
}

// reasonOf maps a handler error to a fault reason. Errors that did not come
// from the interpreter itself are host failures.
func reasonOf(err error) (FaultReason, string) {
	var t *trap
	if errors.As(err, &t) {
		return t.reason, t.detail
	}
	return HostError, err.Error()
}
