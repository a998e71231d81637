package vm

import (
	"context"
	"slices"
	"testing"

	"github.com/chazu/prism/codec"
)

func scenarioB(t *testing.T) *codec.Program {
	t.Helper()
	return build(t, 5,
		codec.Lit(codec.OpLoad, 10),
		codec.Lit(codec.OpLoad, 5),
		codec.Op(codec.OpAdd),
		codec.Op(codec.OpPrint),
		codec.Op(codec.OpHalt),
	)
}

func TestDebuggerBreakpoints(t *testing.T) {
	ctx := context.Background()
	d := NewDebugger(newVM(t, scenarioB(t), nil, Config{}))

	if err := d.SetBreakpoint(codec.Point{X: 9, Y: 0}); err == nil {
		t.Error("SetBreakpoint outside the grid succeeded")
	}
	if err := d.SetBreakpoint(codec.Point{X: 3, Y: 0}); err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	_ = d.SetBreakpoint(codec.Point{X: 1, Y: 0})
	if got := d.Breakpoints(); len(got) != 2 || got[0].X != 1 {
		t.Errorf("Breakpoints = %v, want [(1,0) (3,0)]", got)
	}
	d.ClearBreakpoint(codec.Point{X: 1, Y: 0})

	if r := d.Continue(ctx); r != StopBreakpoint {
		t.Fatalf("Continue = %s, want breakpoint", r)
	}
	if d.PC() != (codec.Point{X: 3, Y: 0}) {
		t.Errorf("PC = %v, want (3,0)", d.PC())
	}
	if d.Current().Op != codec.OpPrint {
		t.Errorf("Current = %v, want PRINT", d.Current())
	}
	if st := d.Stack(); !slices.Equal(st, []Value{Int(15)}) {
		t.Errorf("Stack = %v, want [15]", st)
	}

	if r := d.Step(ctx); r != StopStep {
		t.Errorf("Step = %s, want step", r)
	}
	if out := d.VM().Output(); !slices.Equal(out, []string{"15"}) {
		t.Errorf("Output = %q, want [15]", out)
	}
	if r := d.Continue(ctx); r != StopHalted {
		t.Errorf("Continue = %s, want halted", r)
	}
	if r := d.Step(ctx); r != StopHalted {
		t.Errorf("Step after halt = %s, want halted", r)
	}
}

func TestDebuggerStopsOnFault(t *testing.T) {
	p := build(t, 2, codec.Op(codec.OpAdd), codec.Op(codec.OpHalt))
	d := NewDebugger(newVM(t, p, nil, Config{}))
	if r := d.Continue(context.Background()); r != StopFaulted {
		t.Errorf("Continue = %s, want faulted", r)
	}
	if d.Registers() != ([NumRegisters]Value{}) {
		t.Errorf("Registers = %v, want zero", d.Registers())
	}
}

func TestDebuggerThreads(t *testing.T) {
	p := build(t, 3,
		codec.Jump(codec.OpThreadSpawn, 2, 0),
		codec.Op(codec.OpThreadJoin),
		codec.Op(codec.OpHalt),
	)
	v := newVM(t, p, nil, Config{})
	d := NewDebugger(v)
	d.Step(context.Background())
	d.Step(context.Background())
	th := d.Threads()
	if len(th) != 1 || th[0].ID != 1 || !th[0].Done || !th[0].Joined {
		t.Errorf("Threads = %+v, want one done, joined thread", th)
	}
	v.Finish()
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

func TestSnapshotResume(t *testing.T) {
	ctx := context.Background()
	prog := scenarioB(t)
	v := newVM(t, prog, nil, Config{})
	v.Step(ctx)
	v.Step(ctx)

	data, err := MarshalSnapshot(v.Snapshot())
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}
	again, err := MarshalSnapshot(v.Snapshot())
	if err != nil || string(again) != string(data) {
		t.Error("snapshot encoding is not deterministic")
	}
	snap, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}
	if snap.State.PC != (codec.Point{X: 2, Y: 0}) || len(snap.State.Stack) != 2 {
		t.Fatalf("snapshot pc %v stack %v, want (2,0) with two values", snap.State.PC, snap.State.Stack)
	}

	resumed, err := Resume(prog, nil, Config{}, snap)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	r := resumed.Run(ctx)
	wantOutput(t, r, "15")
	if r.Steps != 5 || r.Profile[codec.OpLoad] != 2 {
		t.Errorf("Steps = %d, LOAD count = %d; want 5 and 2", r.Steps, r.Profile[codec.OpLoad])
	}
}

func TestResumeRejectsInvalidState(t *testing.T) {
	ctx := context.Background()
	prog := scenarioB(t)
	v := newVM(t, prog, nil, Config{})
	v.Step(ctx)
	v.Step(ctx)

	tests := []struct {
		name   string
		mutate func(st *ExecutionState)
	}{
		{"saved register", func(st *ExecutionState) {
			st.Frames = []Frame{{Return: codec.Point{X: 3}, Saved: []SavedRegister{{Index: 99}}}}
		}},
		{"negative saved register", func(st *ExecutionState) {
			st.Frames = []Frame{{Return: codec.Point{X: 3}, Saved: []SavedRegister{{Index: -1}}}}
		}},
		{"return off grid", func(st *ExecutionState) {
			st.Frames = []Frame{{Return: codec.Point{X: 7, Y: 2}}}
		}},
		{"stack too deep", func(st *ExecutionState) {
			st.Stack = make([]Value, 3)
		}},
		{"too many frames", func(st *ExecutionState) {
			st.Frames = make([]Frame, 2)
		}},
		{"bad block", func(st *ExecutionState) {
			st.Blocks[5] = -1
		}},
		{"memory over budget", func(st *ExecutionState) {
			st.Blocks[1] = 10
			st.NextAddr = 11
		}},
		{"status", func(st *ExecutionState) {
			st.Status = 9
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := v.Snapshot()
			tt.mutate(snap.State)
			cfg := Config{MaxStack: 2, MaxFrames: 1, MaxMemory: 4}
			if _, err := Resume(prog, nil, cfg, &snap); err == nil {
				t.Error("Resume accepted the snapshot")
			}
		})
	}

	snap := v.Snapshot()
	if _, err := Resume(prog, nil, Config{MaxStack: 2, MaxFrames: 1, MaxMemory: 4}, &snap); err != nil {
		t.Errorf("Resume of an untouched snapshot: %v", err)
	}
}

func TestResumeAfterStepBudget(t *testing.T) {
	ctx := context.Background()
	prog := scenarioB(t)
	v := newVM(t, prog, nil, Config{MaxSteps: 2})
	r := v.Run(ctx)
	if r.Fault == nil || r.Fault.Reason != ResourceExhausted || !r.Fault.Retry {
		t.Fatalf("Fault = %+v, want retryable ResourceExhausted", r.Fault)
	}

	data, err := MarshalSnapshot(v.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	snap, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatal(err)
	}
	resumed, err := Resume(prog, nil, Config{}, snap)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	r = resumed.Run(ctx)
	wantOutput(t, r, "15")
	if r.Steps != 3 {
		t.Errorf("Steps = %d, want 3 after a fresh budget", r.Steps)
	}
}

func TestSnapshotKeepsMemory(t *testing.T) {
	p := build(t, 5,
		codec.Lit(codec.OpAlloc, 2),
		codec.Lit(codec.OpLoad, 3),
		codec.Mem(codec.OpStore, 2),
		codec.Lit(codec.OpLoad, 1),
		codec.Op(codec.OpDiv),
	)
	v := newVM(t, p, nil, Config{})
	v.Run(context.Background())

	data, err := MarshalSnapshot(v.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	snap, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatal(err)
	}
	st := snap.State
	if st.Status != Halted {
		t.Errorf("Status = %s, want halted", st.Status)
	}
	if cells := st.Cells(); len(cells) != 1 || cells[0] != (MemoryCell{Addr: 2, Value: Int(3)}) {
		t.Errorf("Cells = %v, want [2:3]", cells)
	}
	if st.Blocks[1] != 2 {
		t.Errorf("Blocks = %v, want {1:2}", st.Blocks)
	}

	if _, err := UnmarshalSnapshot([]byte{0xff, 0x00}); err == nil {
		t.Error("UnmarshalSnapshot accepted garbage")
	}
	other := build(t, 2, codec.Op(codec.OpHalt), codec.Op(codec.OpHalt))
	if _, err := Resume(other, nil, Config{}, snap); err == nil {
		t.Error("Resume accepted a snapshot of a different size")
	}
}
