package vm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/chazu/prism/codec"
	"github.com/chazu/prism/host"
)

var log = commonlog.GetLogger("prism.vm")

// ErrNilProgram is returned by New when no program is given.
var ErrNilProgram = errors.New("vm: nil program")

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config bounds one VM instance. Spawned threads inherit their parent's
// Config, each with a fresh budget.
type Config struct {
	MaxSteps   int // instructions before ResourceExhausted
	MaxStack   int // operand stack depth
	MaxFrames  int // call depth
	MaxMemory  int64
	MaxThreads int // spawns across the whole thread tree

	// Palette resolves pixel hues. Nil means codec.DefaultPalette().
	Palette *codec.CanonicalPalette
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxSteps:   1_000_000,
		MaxStack:   256,
		MaxFrames:  256,
		MaxMemory:  1 << 16,
		MaxThreads: 64,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.MaxStack <= 0 {
		c.MaxStack = d.MaxStack
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = d.MaxFrames
	}
	if c.MaxMemory <= 0 {
		c.MaxMemory = d.MaxMemory
	}
	if c.MaxThreads <= 0 {
		c.MaxThreads = d.MaxThreads
	}
	if c.Palette == nil {
		c.Palette = codec.DefaultPalette()
	}
	return c
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM executes one Program. A VM is not safe for concurrent use; concurrency
// inside a program is expressed with THREAD_SPAWN, which creates further VM
// instances that share only the immutable code and the host bridge.
type VM struct {
	prog *codec.Program
	code []codec.Instruction // decoded once, shared read-only with threads
	cfg  Config
	host host.Bridge

	state   *ExecutionState
	output  []string
	profile Profile

	threads    map[int64]*thread
	nextThread int64
	spawned    *atomic.Int64 // shared by every VM in one thread tree
	depth      int           // spawn nesting, for log lines

	// next is the PC the current instruction falls through or jumps to.
	next     codec.Point
	nextEnds bool // no fall-through pixel exists
	jumped   bool
}

// New decodes prog and returns a VM positioned at (0,0). A pixel that does
// not decode aborts the load with the codec's DecodeError. bridge may be nil
// for programs without I/O; host instructions then fault with HostError.
func New(prog *codec.Program, bridge host.Bridge, cfg Config) (*VM, error) {
	if prog == nil {
		return nil, ErrNilProgram
	}
	cfg = cfg.withDefaults()
	code, err := prog.Decode(cfg.Palette)
	if err != nil {
		return nil, fmt.Errorf("loading program: %w", err)
	}
	return &VM{
		prog:    prog,
		code:    code,
		cfg:     cfg,
		host:    bridge,
		state:   newState(codec.Point{}),
		threads: make(map[int64]*thread),
		spawned: new(atomic.Int64),
	}, nil
}

// fork returns a child VM that starts at pc with empty state.
func (v *VM) fork(pc codec.Point) *VM {
	return &VM{
		prog:    v.prog,
		code:    v.code,
		cfg:     v.cfg,
		host:    v.host,
		state:   newState(pc),
		threads: make(map[int64]*thread),
		spawned: v.spawned,
		depth:   v.depth + 1,
	}
}

// State returns the live execution state. Callers must not mutate it while
// the VM is running.
func (v *VM) State() *ExecutionState {
	return v.state
}

// Program returns the program being executed.
func (v *VM) Program() *codec.Program {
	return v.prog
}

// Output returns the PRINT output produced so far.
func (v *VM) Output() []string {
	return append([]string(nil), v.output...)
}

// Done reports whether the VM reached a terminal state.
func (v *VM) Done() bool {
	return v.state.Status != Running
}

// Current returns the instruction at the PC.
func (v *VM) Current() codec.Instruction {
	return v.code[v.prog.Index(v.state.PC)]
}

// ---------------------------------------------------------------------------
// Result
// ---------------------------------------------------------------------------

// Result is what Run reports once the VM is terminal and every thread it
// spawned has finished.
type Result struct {
	Status       Status
	Output       []string
	Fault        *Fault
	Steps        int
	ExitCode     int64
	ImplicitHalt bool
	Threads      []ThreadResult
	Profile      Profile
}

// Err returns the fault as an error, or nil if the VM halted.
func (r *Result) Err() error {
	if r.Fault == nil {
		return nil
	}
	return r.Fault
}

// ThreadResult summarises one spawned thread.
type ThreadResult struct {
	ID     int64
	Start  codec.Point
	Status Status
	Fault  *Fault
	Joined bool
	Output []string // empty for joined threads; their output was merged
}

// ---------------------------------------------------------------------------
// Run loop
// ---------------------------------------------------------------------------

// Run executes until the VM halts or faults, then waits for every spawned
// thread. Cancelling ctx faults the VM with Cancelled at the next step.
func (v *VM) Run(ctx context.Context) *Result {
	for v.state.Status == Running {
		v.Step(ctx)
	}
	return v.Finish()
}

// Step executes one instruction. It is a no-op on a terminal VM.
func (v *VM) Step(ctx context.Context) {
	st := v.state
	if st.Status != Running {
		return
	}
	if err := ctx.Err(); err != nil {
		v.fail(Cancelled, v.Current(), err.Error())
		st.Fault.Retry = true
		return
	}
	inst := v.Current()
	if st.Steps >= v.cfg.MaxSteps {
		v.fail(ResourceExhausted, inst, fmt.Sprintf("step budget of %d", v.cfg.MaxSteps))
		st.Fault.Retry = true
		return
	}
	st.Steps++
	v.profile[inst.Op]++

	v.next, v.nextEnds = v.advance(st.PC)
	v.jumped = false

	h := handlers[inst.Op]
	if h == nil {
		v.fail(InvalidOpcode, inst, "no handler")
		return
	}
	if err := h(v, ctx, inst); err != nil {
		reason, detail := reasonOf(err)
		v.fail(reason, inst, detail)
		return
	}
	if st.Status != Running {
		return
	}
	if v.nextEnds && !v.jumped {
		st.Status = Halted
		st.ImplicitHalt = true
		log.Debugf("implicit halt after %v", st.PC)
		return
	}
	st.PC = v.next
}

// advance returns the raster successor of pc, or ends=true past the last
// pixel.
func (v *VM) advance(pc codec.Point) (next codec.Point, ends bool) {
	if pc.X+1 < v.prog.Width {
		return codec.Point{X: pc.X + 1, Y: pc.Y}, false
	}
	if pc.Y+1 < v.prog.Height {
		return codec.Point{X: 0, Y: pc.Y + 1}, false
	}
	return pc, true
}

// jump redirects the next PC. Targets outside the grid fault and leave the
// PC where it is.
func (v *VM) jump(target codec.Point) error {
	if !v.prog.Contains(target) {
		return trapf(OutOfBoundsJump, "target %v outside %dx%d grid", target, v.prog.Width, v.prog.Height)
	}
	v.next = target
	v.nextEnds = false
	v.jumped = true
	return nil
}

func (v *VM) fail(reason FaultReason, inst codec.Instruction, detail string) {
	st := v.state
	st.Status = Faulted
	st.Fault = &Fault{
		Reason:    reason,
		Op:        inst.Op,
		Pos:       st.PC,
		Registers: st.Registers,
		Detail:    detail,
	}
	log.Debugf("thread depth %d faulted: %s", v.depth, st.Fault)
}

// Finish waits for unjoined threads and assembles the Result. It must only
// be called on a terminal VM.
func (v *VM) Finish() *Result {
	st := v.state
	res := &Result{
		Status:       st.Status,
		Output:       v.Output(),
		Fault:        st.Fault,
		Steps:        st.Steps,
		ExitCode:     st.ExitCode,
		ImplicitHalt: st.ImplicitHalt,
		Profile:      v.profile,
	}

	ids := make([]int64, 0, len(v.threads))
	for id := range v.threads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		t := v.threads[id]
		r := t.wait()
		tr := ThreadResult{
			ID:     id,
			Start:  t.start,
			Status: r.Status,
			Fault:  r.Fault,
			Joined: t.joined,
		}
		if !t.joined {
			tr.Output = r.Output
		}
		res.Threads = append(res.Threads, tr)
	}
	return res
}
