package vm

import (
	"context"
	"fmt"
	"sort"

	"github.com/chazu/prism/codec"
)

// ---------------------------------------------------------------------------
// Debugger: breakpoints and stepping over a VM
// ---------------------------------------------------------------------------

// StopReason says why Step or Continue returned.
type StopReason int

const (
	StopStep StopReason = iota
	StopBreakpoint
	StopHalted
	StopFaulted
)

var stopNames = [...]string{"step", "breakpoint", "halted", "faulted"}

func (r StopReason) String() string {
	if int(r) < len(stopNames) {
		return stopNames[r]
	}
	return fmt.Sprintf("stop(%d)", r)
}

// Debugger drives a VM one instruction at a time. Breakpoints are grid
// positions; Continue stops before executing the instruction at one.
type Debugger struct {
	vm          *VM
	breakpoints map[codec.Point]bool
}

// NewDebugger attaches a debugger to v. v must not be run concurrently.
func NewDebugger(v *VM) *Debugger {
	return &Debugger{vm: v, breakpoints: make(map[codec.Point]bool)}
}

// VM returns the debugged VM.
func (d *Debugger) VM() *VM {
	return d.vm
}

// SetBreakpoint adds a breakpoint at pt.
func (d *Debugger) SetBreakpoint(pt codec.Point) error {
	if !d.vm.prog.Contains(pt) {
		return fmt.Errorf("breakpoint %v outside %dx%d grid", pt, d.vm.prog.Width, d.vm.prog.Height)
	}
	d.breakpoints[pt] = true
	return nil
}

// ClearBreakpoint removes the breakpoint at pt, if any.
func (d *Debugger) ClearBreakpoint(pt codec.Point) {
	delete(d.breakpoints, pt)
}

// Breakpoints returns the breakpoints in raster order.
func (d *Debugger) Breakpoints() []codec.Point {
	pts := make([]codec.Point, 0, len(d.breakpoints))
	for pt := range d.breakpoints {
		pts = append(pts, pt)
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].Y != pts[j].Y {
			return pts[i].Y < pts[j].Y
		}
		return pts[i].X < pts[j].X
	})
	return pts
}

// Step executes exactly one instruction.
func (d *Debugger) Step(ctx context.Context) StopReason {
	d.vm.Step(ctx)
	return d.stopReason(StopStep)
}

// Continue runs until the VM is terminal or reaches a breakpoint. The
// instruction at the current PC always executes, so Continue makes progress
// when called while stopped on a breakpoint.
func (d *Debugger) Continue(ctx context.Context) StopReason {
	d.vm.Step(ctx)
	for !d.vm.Done() {
		if d.breakpoints[d.vm.state.PC] {
			return StopBreakpoint
		}
		d.vm.Step(ctx)
	}
	return d.stopReason(StopStep)
}

func (d *Debugger) stopReason(running StopReason) StopReason {
	switch d.vm.state.Status {
	case Halted:
		return StopHalted
	case Faulted:
		return StopFaulted
	}
	return running
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// PC returns the position of the next instruction.
func (d *Debugger) PC() codec.Point {
	return d.vm.state.PC
}

// Current returns the next instruction to execute.
func (d *Debugger) Current() codec.Instruction {
	return d.vm.Current()
}

// Registers returns a copy of the register file.
func (d *Debugger) Registers() [NumRegisters]Value {
	return d.vm.state.Registers
}

// Stack returns a copy of the operand stack, bottom first.
func (d *Debugger) Stack() []Value {
	return append([]Value(nil), d.vm.state.Stack...)
}

// Frames returns the call depth.
func (d *Debugger) Frames() int {
	return len(d.vm.state.Frames)
}

// ThreadInfo describes a spawned thread as seen by the debugger.
type ThreadInfo struct {
	ID     int64
	Start  codec.Point
	Done   bool
	Joined bool
}

// Threads lists the threads spawned so far, by id.
func (d *Debugger) Threads() []ThreadInfo {
	infos := make([]ThreadInfo, 0, len(d.vm.threads))
	for id, t := range d.vm.threads {
		infos = append(infos, ThreadInfo{ID: id, Start: t.start, Done: t.isDone(), Joined: t.joined})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
