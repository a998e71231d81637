package vm

import (
	"fmt"
	"sort"

	"github.com/chazu/prism/codec"
)

// NumRegisters is the size of the register file. The last register is the
// FOR loop counter.
const NumRegisters = 16

// CounterRegister is the register FOR counts down.
const CounterRegister = NumRegisters - 1

// Status is the lifecycle state of a VM. Halted and Faulted are terminal.
type Status uint8

const (
	Running Status = iota
	Halted
	Faulted
)

var statusNames = [...]string{"running", "halted", "faulted"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", s)
}

// ---------------------------------------------------------------------------
// Call frames
// ---------------------------------------------------------------------------

// SavedRegister is a register value captured by LOCAL or PARAM.
type SavedRegister struct {
	Index int   `cbor:"index"`
	Value Value `cbor:"value"`
}

// Frame is one CALL activation.
type Frame struct {
	Return codec.Point     `cbor:"return"`
	AtEnd  bool            `cbor:"at_end,omitempty"` // the call was the last pixel; returning halts
	Saved  []SavedRegister `cbor:"saved,omitempty"`
}

// ---------------------------------------------------------------------------
// ExecutionState
// ---------------------------------------------------------------------------

// ExecutionState is everything one VM instance mutates while running. It is
// owned by exactly one VM; spawned threads get their own.
type ExecutionState struct {
	Registers [NumRegisters]Value `cbor:"registers"`
	Stack     []Value             `cbor:"stack"`
	Memory    map[int64]Value     `cbor:"memory"`
	Blocks    map[int64]int64     `cbor:"blocks"` // live allocation base -> size
	NextAddr  int64               `cbor:"next_addr"`
	PC        codec.Point         `cbor:"pc"`
	Frames    []Frame             `cbor:"frames,omitempty"`
	Status    Status              `cbor:"status"`
	Fault     *Fault              `cbor:"fault,omitempty"`
	Steps     int                 `cbor:"steps"`
	ExitCode  int64               `cbor:"exit_code"`

	// ImplicitHalt is set when execution ran off the end of the grid.
	ImplicitHalt bool `cbor:"implicit_halt,omitempty"`
}

// newState returns a running state positioned at pc. Address 0 is never
// handed out, so it can serve as a null pointer.
func newState(pc codec.Point) *ExecutionState {
	return &ExecutionState{
		Memory:   make(map[int64]Value),
		Blocks:   make(map[int64]int64),
		NextAddr: 1,
		PC:       pc,
	}
}

// ---------------------------------------------------------------------------
// Stack
// ---------------------------------------------------------------------------

func (s *ExecutionState) push(v Value, limit int) error {
	if len(s.Stack) >= limit {
		return trapf(StackOverflow, "stack depth %d", limit)
	}
	s.Stack = append(s.Stack, v)
	return nil
}

func (s *ExecutionState) pop() (Value, error) {
	n := len(s.Stack)
	if n == 0 {
		return Value{}, trapf(StackUnderflow, "pop from empty stack")
	}
	v := s.Stack[n-1]
	s.Stack = s.Stack[:n-1]
	return v, nil
}

func (s *ExecutionState) peek() (Value, error) {
	n := len(s.Stack)
	if n == 0 {
		return Value{}, trapf(StackUnderflow, "peek at empty stack")
	}
	return s.Stack[n-1], nil
}

// popInt pops a value that must be an integer.
func (s *ExecutionState) popInt(what string) (int64, error) {
	v, err := s.pop()
	if err != nil {
		return 0, err
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, trapf(InvalidOperand, "%s must be an integer, got %s", what, v)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Registers
// ---------------------------------------------------------------------------

func checkRegister(r int64) error {
	if r < 0 || r >= NumRegisters {
		return trapf(InvalidOperand, "no register r%d", r)
	}
	return nil
}

func (s *ExecutionState) register(r int64) (Value, error) {
	if err := checkRegister(r); err != nil {
		return Value{}, err
	}
	return s.Registers[r], nil
}

func (s *ExecutionState) setRegister(r int64, v Value) error {
	if err := checkRegister(r); err != nil {
		return err
	}
	s.Registers[r] = v
	return nil
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

// liveCells is the number of cells held by live blocks.
func (s *ExecutionState) liveCells() int64 {
	var n int64
	for _, size := range s.Blocks {
		n += size
	}
	return n
}

// owned reports whether addr falls inside a live block.
func (s *ExecutionState) owned(addr int64) bool {
	for base, size := range s.Blocks {
		if addr >= base && addr < base+size {
			return true
		}
	}
	return false
}

// alloc reserves size cells and returns the base address. Addresses are
// handed out by a bump pointer and never reused, so a stale pointer into a
// freed block always faults.
func (s *ExecutionState) alloc(size, budget int64) (int64, error) {
	if size <= 0 {
		return 0, trapf(InvalidOperand, "allocation size %d", size)
	}
	if s.liveCells()+size > budget {
		return 0, trapf(ResourceExhausted, "memory budget of %d cells", budget)
	}
	base := s.NextAddr
	s.NextAddr += size
	s.Blocks[base] = size
	return base, nil
}

func (s *ExecutionState) free(addr int64) error {
	size, ok := s.Blocks[addr]
	if !ok {
		return trapf(InvalidAddress, "free of %d, not a block base", addr)
	}
	for a := addr; a < addr+size; a++ {
		delete(s.Memory, a)
	}
	delete(s.Blocks, addr)
	return nil
}

// load reads a cell. Reading a cell nothing has written faults: memory has
// no implicit zero fill.
func (s *ExecutionState) load(addr int64) (Value, error) {
	if !s.owned(addr) {
		return Value{}, trapf(InvalidAddress, "load from unallocated %d", addr)
	}
	v, ok := s.Memory[addr]
	if !ok {
		return Value{}, trapf(InvalidAddress, "load from uninitialised %d", addr)
	}
	return v, nil
}

func (s *ExecutionState) store(addr int64, v Value) error {
	if !s.owned(addr) {
		return trapf(InvalidAddress, "store to unallocated %d", addr)
	}
	s.Memory[addr] = v
	return nil
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// MemoryCell is one written memory cell, for inspection.
type MemoryCell struct {
	Addr  int64
	Value Value
}

// Cells returns every written memory cell in address order.
func (s *ExecutionState) Cells() []MemoryCell {
	cells := make([]MemoryCell, 0, len(s.Memory))
	for a, v := range s.Memory {
		cells = append(cells, MemoryCell{Addr: a, Value: v})
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Addr < cells[j].Addr })
	return cells
}

// Clone returns a deep copy of s.
func (s *ExecutionState) Clone() *ExecutionState {
	c := *s
	c.Stack = append([]Value(nil), s.Stack...)
	c.Memory = make(map[int64]Value, len(s.Memory))
	for k, v := range s.Memory {
		c.Memory[k] = v
	}
	c.Blocks = make(map[int64]int64, len(s.Blocks))
	for k, v := range s.Blocks {
		c.Blocks[k] = v
	}
	c.Frames = make([]Frame, len(s.Frames))
	for i, f := range s.Frames {
		f.Saved = append([]SavedRegister(nil), f.Saved...)
		c.Frames[i] = f
	}
	if s.Fault != nil {
		f := *s.Fault
		c.Fault = &f
	}
	return &c
}
