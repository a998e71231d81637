package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/prism/codec"
	"github.com/chazu/prism/host"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is a serializable copy of a VM's execution state. Spawned
// threads are not captured; a snapshot of a VM with threads still running
// describes the parent only.
type Snapshot struct {
	Width   int             `cbor:"w"`
	Height  int             `cbor:"h"`
	State   *ExecutionState `cbor:"state"`
	Output  []string        `cbor:"output"`
	Profile []int           `cbor:"profile"`
}

// Snapshot copies the current state of v.
func (v *VM) Snapshot() Snapshot {
	return Snapshot{
		Width:   v.prog.Width,
		Height:  v.prog.Height,
		State:   v.state.Clone(),
		Output:  v.Output(),
		Profile: append([]int(nil), v.profile[:]...),
	}
}

// Resume builds a VM for prog that continues from s. The program must have
// the snapshot's dimensions. A snapshot that stopped on a retryable fault
// (step budget, cancellation) runs again from the faulting instruction with
// a fresh step budget.
func Resume(prog *codec.Program, bridge host.Bridge, cfg Config, s *Snapshot) (*VM, error) {
	v, err := New(prog, bridge, cfg)
	if err != nil {
		return nil, err
	}
	if s.Width != prog.Width || s.Height != prog.Height {
		return nil, fmt.Errorf("vm: snapshot is %dx%d, program is %dx%d", s.Width, s.Height, prog.Width, prog.Height)
	}
	if s.State == nil || !prog.Contains(s.State.PC) {
		return nil, fmt.Errorf("vm: snapshot has no valid pc")
	}
	if err := s.State.validate(prog, v.cfg); err != nil {
		return nil, fmt.Errorf("vm: snapshot %w", err)
	}
	v.state = s.State.Clone()
	if st := v.state; st.Status == Faulted && st.Fault != nil && st.Fault.Retry {
		st.Status = Running
		st.Fault = nil
		st.Steps = 0
	}
	if v.state.Memory == nil {
		v.state.Memory = make(map[int64]Value)
	}
	if v.state.Blocks == nil {
		v.state.Blocks = make(map[int64]int64)
	}
	v.output = append([]string(nil), s.Output...)
	copy(v.profile[:], s.Profile)
	return v, nil
}

// validate checks a decoded state against prog and the limits in cfg, so a
// resumed VM never indexes outside its registers or returns off the grid.
func (s *ExecutionState) validate(prog *codec.Program, cfg Config) error {
	if s.Status > Faulted {
		return fmt.Errorf("has unknown status %d", s.Status)
	}
	if len(s.Stack) > cfg.MaxStack {
		return fmt.Errorf("stack holds %d values, limit %d", len(s.Stack), cfg.MaxStack)
	}
	if len(s.Frames) > cfg.MaxFrames {
		return fmt.Errorf("has %d frames, limit %d", len(s.Frames), cfg.MaxFrames)
	}
	for i, f := range s.Frames {
		if !prog.Contains(f.Return) {
			return fmt.Errorf("frame %d returns to %v outside %dx%d grid", i, f.Return, prog.Width, prog.Height)
		}
		for _, r := range f.Saved {
			if err := checkRegister(int64(r.Index)); err != nil {
				return fmt.Errorf("frame %d saves %w", i, err)
			}
		}
	}
	var cells int64
	for base, size := range s.Blocks {
		if base <= 0 || size <= 0 || base+size > s.NextAddr {
			return fmt.Errorf("block %d of %d cells is invalid", base, size)
		}
		cells += size
	}
	if cells > cfg.MaxMemory {
		return fmt.Errorf("holds %d cells, limit %d", cells, cfg.MaxMemory)
	}
	return nil
}

// MarshalSnapshot serializes a Snapshot to canonical CBOR.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("vm: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
