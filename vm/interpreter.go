package vm

import (
	"context"
	"fmt"

	"github.com/chazu/prism/codec"
	"github.com/chazu/prism/host"
)

// ---------------------------------------------------------------------------
// Dispatch table
// ---------------------------------------------------------------------------

// handler executes one instruction. A non-nil error faults the VM.
type handler func(v *VM, ctx context.Context, inst codec.Instruction) error

var handlers [codec.Count]handler

func init() {
	handlers = [codec.Count]handler{
		codec.OpAdd: arithHandler(opAdd),
		codec.OpSub: arithHandler(opSub),
		codec.OpMul: arithHandler(opMul),
		codec.OpDiv: arithHandler(opDiv),
		codec.OpMod: arithHandler(opMod),
		codec.OpPow: arithHandler(opPow),

		codec.OpLoad:  execLoad,
		codec.OpStore: execStore,
		codec.OpMove:  execMove,
		codec.OpCopy:  execCopy,
		codec.OpAlloc: execAlloc,
		codec.OpFree:  execFree,

		codec.OpIf:       execBranchIfZero,
		codec.OpElse:     execJump,
		codec.OpWhile:    execBranchIfZero,
		codec.OpFor:      execFor,
		codec.OpBreak:    execJump,
		codec.OpContinue: execJump,

		codec.OpCall:    execCall,
		codec.OpReturn:  execReturn,
		codec.OpFuncDef: execJump,
		codec.OpParam:   execParam,
		codec.OpLocal:   execLocal,

		codec.OpPrint:     execPrint,
		codec.OpInput:     execInput,
		codec.OpReadFile:  execReadFile,
		codec.OpWriteFile: execWriteFile,

		codec.OpHalt:        execHalt,
		codec.OpDebug:       execDebug,
		codec.OpThreadSpawn: execThreadSpawn,
		codec.OpThreadJoin:  execThreadJoin,
	}
	for op, h := range handlers {
		if h == nil {
			panic(fmt.Sprintf("vm: no handler for %s", codec.Opcode(op)))
		}
	}
}

// ---------------------------------------------------------------------------
// Operand helpers
// ---------------------------------------------------------------------------

func (v *VM) push(x Value) error {
	return v.state.push(x, v.cfg.MaxStack)
}

// operandValue resolves a value-shaped operand. ok is false when the
// instruction has none and the caller should use the stack instead.
func (v *VM) operandValue(inst codec.Instruction) (val Value, ok bool, err error) {
	n, present := inst.Operand()
	if !present {
		return Value{}, false, nil
	}
	switch inst.Mode {
	case codec.ModeLiteral:
		return Int(n), true, nil
	case codec.ModeRegister:
		val, err = v.state.register(n)
		return val, true, err
	case codec.ModeMemory:
		val, err = v.state.load(n)
		return val, true, err
	}
	return Value{}, false, trapf(InvalidOperand, "%s addressing", inst.Mode)
}

// valueOrPop returns the operand value, or pops one when there is none.
func (v *VM) valueOrPop(inst codec.Instruction) (Value, error) {
	val, ok, err := v.operandValue(inst)
	if err != nil || ok {
		return val, err
	}
	return v.state.pop()
}

// intOrPop is valueOrPop restricted to integers.
func (v *VM) intOrPop(inst codec.Instruction, what string) (int64, error) {
	val, err := v.valueOrPop(inst)
	if err != nil {
		return 0, err
	}
	n, ok := val.AsInt()
	if !ok {
		return 0, trapf(InvalidOperand, "%s must be an integer, got %s", what, val)
	}
	return n, nil
}

// addressOperand resolves an address: the literal or memory operand itself,
// the integer in a register, or a popped integer.
func (v *VM) addressOperand(inst codec.Instruction) (int64, error) {
	n, present := inst.Operand()
	if !present {
		return v.state.popInt("address")
	}
	switch inst.Mode {
	case codec.ModeLiteral, codec.ModeMemory:
		return n, nil
	case codec.ModeRegister:
		r, err := v.state.register(n)
		if err != nil {
			return 0, err
		}
		a, ok := r.AsInt()
		if !ok {
			return 0, trapf(InvalidOperand, "address in r%d is %s", n, r)
		}
		return a, nil
	}
	return 0, trapf(InvalidOperand, "%s addressing", inst.Mode)
}

func requireMode(inst codec.Instruction, modes ...codec.Mode) error {
	for _, m := range modes {
		if inst.Mode == m {
			return nil
		}
	}
	return trapf(InvalidOperand, "%s does not take %s addressing", inst.Op, inst.Mode)
}

func (v *VM) target(inst codec.Instruction) (codec.Point, error) {
	t, ok := inst.Target()
	if !ok {
		return codec.Point{}, trapf(InvalidOperand, "%s without target", inst.Op)
	}
	return t, nil
}

func (v *VM) bridge() (host.Bridge, error) {
	if v.host == nil {
		return nil, trapf(HostError, "no host bridge attached")
	}
	return v.host, nil
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func arithHandler(op arithOp) handler {
	return func(v *VM, _ context.Context, inst codec.Instruction) error {
		rhs, ok, err := v.operandValue(inst)
		if err != nil {
			return err
		}
		if !ok {
			if rhs, err = v.state.pop(); err != nil {
				return err
			}
		}
		lhs, err := v.state.pop()
		if err != nil {
			return err
		}
		r, err := arith(op, lhs, rhs)
		if err != nil {
			return err
		}
		return v.push(r)
	}
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

func execLoad(v *VM, _ context.Context, inst codec.Instruction) error {
	if inst.Mode == codec.ModeNone {
		addr, err := v.state.popInt("address")
		if err != nil {
			return err
		}
		x, err := v.state.load(addr)
		if err != nil {
			return err
		}
		return v.push(x)
	}
	x, _, err := v.operandValue(inst)
	if err != nil {
		return err
	}
	return v.push(x)
}

func execStore(v *VM, _ context.Context, inst codec.Instruction) error {
	if err := requireMode(inst, codec.ModeNone, codec.ModeRegister, codec.ModeMemory); err != nil {
		return err
	}
	addr, err := v.addressOperand(inst)
	if err != nil {
		return err
	}
	x, err := v.state.pop()
	if err != nil {
		return err
	}
	return v.state.store(addr, x)
}

func execMove(v *VM, _ context.Context, inst codec.Instruction) error {
	if err := requireMode(inst, codec.ModeRegister); err != nil {
		return err
	}
	x, err := v.state.pop()
	if err != nil {
		return err
	}
	return v.state.setRegister(inst.Operands[0], x)
}

func execCopy(v *VM, _ context.Context, inst codec.Instruction) error {
	if err := requireMode(inst, codec.ModeNone, codec.ModeRegister); err != nil {
		return err
	}
	x, err := v.state.peek()
	if err != nil {
		return err
	}
	if inst.Mode == codec.ModeRegister {
		return v.state.setRegister(inst.Operands[0], x)
	}
	return v.push(x)
}

func execAlloc(v *VM, _ context.Context, inst codec.Instruction) error {
	size, err := v.intOrPop(inst, "allocation size")
	if err != nil {
		return err
	}
	base, err := v.state.alloc(size, v.cfg.MaxMemory)
	if err != nil {
		return err
	}
	return v.push(Int(base))
}

func execFree(v *VM, _ context.Context, inst codec.Instruction) error {
	addr, err := v.addressOperand(inst)
	if err != nil {
		return err
	}
	return v.state.free(addr)
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func execJump(v *VM, _ context.Context, inst codec.Instruction) error {
	t, err := v.target(inst)
	if err != nil {
		return err
	}
	return v.jump(t)
}

// execBranchIfZero serves IF and WHILE: pop a condition and jump to the
// target when it is zero.
func execBranchIfZero(v *VM, _ context.Context, inst codec.Instruction) error {
	t, err := v.target(inst)
	if err != nil {
		return err
	}
	cond, err := v.state.pop()
	if err != nil {
		return err
	}
	if cond.IsZero() {
		return v.jump(t)
	}
	return nil
}

func execFor(v *VM, _ context.Context, inst codec.Instruction) error {
	t, err := v.target(inst)
	if err != nil {
		return err
	}
	n, ok := v.state.Registers[CounterRegister].AsInt()
	if !ok {
		return trapf(InvalidOperand, "loop counter r%d is %s", CounterRegister, v.state.Registers[CounterRegister])
	}
	if n > 0 {
		v.state.Registers[CounterRegister] = Int(n - 1)
		return nil
	}
	return v.jump(t)
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func execCall(v *VM, _ context.Context, inst codec.Instruction) error {
	t, err := v.target(inst)
	if err != nil {
		return err
	}
	if len(v.state.Frames) >= v.cfg.MaxFrames {
		return trapf(StackOverflow, "call depth %d", v.cfg.MaxFrames)
	}
	frame := Frame{Return: v.next, AtEnd: v.nextEnds}
	if err := v.jump(t); err != nil {
		return err
	}
	v.state.Frames = append(v.state.Frames, frame)
	return nil
}

func execReturn(v *VM, _ context.Context, inst codec.Instruction) error {
	st := v.state
	n := len(st.Frames)
	if n == 0 {
		return trapf(StackUnderflow, "return with no active call")
	}
	ret, hasRet, err := v.operandValue(inst)
	if err != nil {
		return err
	}
	frame := st.Frames[n-1]
	st.Frames = st.Frames[:n-1]
	for i := len(frame.Saved) - 1; i >= 0; i-- {
		s := frame.Saved[i]
		st.Registers[s.Index] = s.Value
	}
	if hasRet {
		if err := v.push(ret); err != nil {
			return err
		}
	}
	if frame.AtEnd {
		v.nextEnds = true
		v.jumped = false
		return nil
	}
	return v.jump(frame.Return)
}

func (v *VM) saveRegister(inst codec.Instruction) (int64, error) {
	if err := requireMode(inst, codec.ModeRegister); err != nil {
		return 0, err
	}
	r := inst.Operands[0]
	if err := checkRegister(r); err != nil {
		return 0, err
	}
	n := len(v.state.Frames)
	if n == 0 {
		return 0, trapf(StackUnderflow, "%s outside a call", inst.Op)
	}
	f := &v.state.Frames[n-1]
	f.Saved = append(f.Saved, SavedRegister{Index: int(r), Value: v.state.Registers[r]})
	return r, nil
}

func execLocal(v *VM, _ context.Context, inst codec.Instruction) error {
	_, err := v.saveRegister(inst)
	return err
}

func execParam(v *VM, _ context.Context, inst codec.Instruction) error {
	r, err := v.saveRegister(inst)
	if err != nil {
		return err
	}
	x, err := v.state.pop()
	if err != nil {
		return err
	}
	v.state.Registers[r] = x
	return nil
}

// ---------------------------------------------------------------------------
// I/O
// ---------------------------------------------------------------------------

func execPrint(v *VM, _ context.Context, inst codec.Instruction) error {
	x, err := v.valueOrPop(inst)
	if err != nil {
		return err
	}
	v.output = append(v.output, x.String())
	return nil
}

func execInput(v *VM, _ context.Context, inst codec.Instruction) error {
	b, err := v.bridge()
	if err != nil {
		return err
	}
	field, err := v.intOrPop(inst, "agent field")
	if err != nil {
		return err
	}
	x, err := b.AgentState().Field(field)
	if err != nil {
		return trapf(InvalidOperand, "%v", err)
	}
	return v.push(Int(x))
}

func execReadFile(v *VM, _ context.Context, inst codec.Instruction) error {
	if err := requireMode(inst, codec.ModeNone); err != nil {
		return err
	}
	b, err := v.bridge()
	if err != nil {
		return err
	}
	y, err := v.state.popInt("tile y")
	if err != nil {
		return err
	}
	x, err := v.state.popInt("tile x")
	if err != nil {
		return err
	}
	kind, err := b.Tile(x, y)
	if err != nil {
		return err
	}
	return v.push(Int(int64(kind)))
}

func execWriteFile(v *VM, _ context.Context, inst codec.Instruction) error {
	if err := requireMode(inst, codec.ModeNone, codec.ModeLiteral, codec.ModeRegister); err != nil {
		return err
	}
	b, err := v.bridge()
	if err != nil {
		return err
	}
	if inst.Mode == codec.ModeNone {
		kind, err := v.state.popInt("tile kind")
		if err != nil {
			return err
		}
		y, err := v.state.popInt("tile y")
		if err != nil {
			return err
		}
		x, err := v.state.popInt("tile x")
		if err != nil {
			return err
		}
		if kind < 0 || kind > 255 {
			return trapf(InvalidOperand, "tile kind %d", kind)
		}
		return b.SetTile(x, y, host.TileKind(kind))
	}

	field, _, err := v.operandValue(inst)
	if err != nil {
		return err
	}
	f, ok := field.AsInt()
	if !ok {
		return trapf(InvalidOperand, "agent field %s", field)
	}
	val, err := v.state.popInt("agent value")
	if err != nil {
		return err
	}
	patch, err := host.PatchField(f, val)
	if err != nil {
		return trapf(InvalidOperand, "%v", err)
	}
	b.SetAgentState(patch)
	return nil
}

// ---------------------------------------------------------------------------
// System
// ---------------------------------------------------------------------------

func execHalt(v *VM, _ context.Context, inst codec.Instruction) error {
	code, ok, err := v.operandValue(inst)
	if err != nil {
		return err
	}
	if ok {
		n, isInt := code.AsInt()
		if !isInt {
			return trapf(InvalidOperand, "exit code %s", code)
		}
		v.state.ExitCode = n
	}
	v.state.Status = Halted
	return nil
}

func execDebug(v *VM, _ context.Context, inst codec.Instruction) error {
	x, err := v.valueOrPop(inst)
	if err != nil {
		return err
	}
	token := x.String()
	log.Debugf("DEBUG %s at %v registers=%v", token, inst.Pos, v.state.Registers)
	if v.host != nil {
		v.host.AppendCognition(token)
	}
	return nil
}

func execThreadSpawn(v *VM, ctx context.Context, inst codec.Instruction) error {
	t, err := v.target(inst)
	if err != nil {
		return err
	}
	id, err := v.spawn(ctx, t)
	if err != nil {
		return err
	}
	return v.push(Int(id))
}

func execThreadJoin(v *VM, ctx context.Context, inst codec.Instruction) error {
	id, err := v.intOrPop(inst, "thread id")
	if err != nil {
		return err
	}
	status, err := v.join(ctx, id)
	if err != nil {
		return err
	}
	return v.push(Int(status))
}
