package codec

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Addressing modes
// ---------------------------------------------------------------------------

// Mode is the addressing mode of an instruction's operand.
type Mode uint8

const (
	ModeNone     Mode = iota // no operand; the instruction works on the stack
	ModeLiteral              // immediate signed integer
	ModeRegister             // register index
	ModeMemory               // memory address
	ModeTarget               // absolute (x,y) grid target
)

var modeNames = [...]string{"none", "literal", "register", "memory", "target"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", m)
}

// Operand word layout. Saturation and value are folded into one word
// W = (100-sat)*101 + (100-val), so the operand-free form is the fully
// saturated, fully bright colour. For value-shaped opcodes W == 0 means "no
// operand"; otherwise W-1 = mode + valueModes*zigzag(n).
const (
	wordRadix  = MaxVal + 1
	maxWord    = MaxSat*wordRadix + MaxVal
	valueModes = 3

	maxZigzag = (maxWord - 1) / valueModes

	// MinOperand and MaxOperand bound literal, register and memory operands.
	MinOperand = -((maxZigzag + 1) / 2)
	MaxOperand = maxZigzag / 2

	// MaxTarget is the largest jump coordinate.
	MaxTarget = MaxSat
)

// ---------------------------------------------------------------------------
// Instruction
// ---------------------------------------------------------------------------

// Instruction is one decoded pixel.
type Instruction struct {
	Op       Opcode
	Mode     Mode
	Operands []int64
	Pos      Point
}

// Op builds an operand-free instruction.
func Op(op Opcode) Instruction {
	return Instruction{Op: op, Mode: ModeNone}
}

// Lit builds an instruction with a literal operand.
func Lit(op Opcode, n int64) Instruction {
	return Instruction{Op: op, Mode: ModeLiteral, Operands: []int64{n}}
}

// Reg builds an instruction with a register operand.
func Reg(op Opcode, r int64) Instruction {
	return Instruction{Op: op, Mode: ModeRegister, Operands: []int64{r}}
}

// Mem builds an instruction with a memory operand.
func Mem(op Opcode, addr int64) Instruction {
	return Instruction{Op: op, Mode: ModeMemory, Operands: []int64{addr}}
}

// Jump builds a jump-shaped instruction targeting (x,y).
func Jump(op Opcode, x, y int) Instruction {
	return Instruction{Op: op, Mode: ModeTarget, Operands: []int64{int64(x), int64(y)}}
}

// At returns a copy of i positioned at pos.
func (i Instruction) At(pos Point) Instruction {
	i.Pos = pos
	return i
}

// Operand returns the single operand, if present.
func (i Instruction) Operand() (int64, bool) {
	if i.Mode == ModeNone || i.Mode == ModeTarget || len(i.Operands) == 0 {
		return 0, false
	}
	return i.Operands[0], true
}

// Target returns the jump target, if present.
func (i Instruction) Target() (Point, bool) {
	if i.Mode != ModeTarget || len(i.Operands) != 2 {
		return Point{}, false
	}
	return Point{X: int(i.Operands[0]), Y: int(i.Operands[1])}, true
}

// Equal compares opcode, mode, operands and position.
func (i Instruction) Equal(o Instruction) bool {
	return i.Op == o.Op && i.Mode == o.Mode && i.Pos == o.Pos &&
		slices.Equal(i.Operands, o.Operands)
}

// String renders the instruction in assembler syntax.
func (i Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(i.Op.Name())
	switch i.Mode {
	case ModeLiteral:
		sb.WriteString(" ")
		sb.WriteString(strconv.FormatInt(i.Operands[0], 10))
	case ModeRegister:
		sb.WriteString(" r")
		sb.WriteString(strconv.FormatInt(i.Operands[0], 10))
	case ModeMemory:
		sb.WriteString(" [")
		sb.WriteString(strconv.FormatInt(i.Operands[0], 10))
		sb.WriteString("]")
	case ModeTarget:
		fmt.Fprintf(&sb, " @%d,%d", i.Operands[0], i.Operands[1])
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Decode / Encode
// ---------------------------------------------------------------------------

// Decode decodes p using the default palette.
func Decode(p HSVPixel, pos Point) (Instruction, error) {
	return defaultPalette.Decode(p, pos)
}

// Encode encodes i with its canonical hue.
func Encode(i Instruction) (HSVPixel, error) {
	if !i.Op.Valid() {
		return HSVPixel{}, fmt.Errorf("%w: undefined opcode %d", ErrUnrepresentable, i.Op)
	}
	hue := uint16(i.Op.CanonicalHue())

	if i.Op.Shape() == ShapeTarget {
		t, ok := i.Target()
		if !ok {
			return HSVPixel{}, fmt.Errorf("%w: %s needs an (x,y) target", ErrUnrepresentable, i.Op)
		}
		if t.X < 0 || t.X > MaxTarget || t.Y < 0 || t.Y > MaxTarget {
			return HSVPixel{}, fmt.Errorf("%w: target %v outside 0..%d", ErrUnrepresentable, t, MaxTarget)
		}
		return HSVPixel{Hue: hue, Sat: uint8(t.X), Val: uint8(t.Y)}, nil
	}

	var w int
	switch i.Mode {
	case ModeNone:
		if len(i.Operands) != 0 {
			return HSVPixel{}, fmt.Errorf("%w: operand-free %s carries operands", ErrUnrepresentable, i.Op)
		}
		w = 0
	case ModeLiteral, ModeRegister, ModeMemory:
		if len(i.Operands) != 1 {
			return HSVPixel{}, fmt.Errorf("%w: %s needs exactly one operand", ErrUnrepresentable, i.Op)
		}
		n := i.Operands[0]
		if n < MinOperand || n > MaxOperand {
			return HSVPixel{}, fmt.Errorf("%w: operand %d outside %d..%d", ErrUnrepresentable, n, MinOperand, MaxOperand)
		}
		w = 1 + int(i.Mode-ModeLiteral) + valueModes*int(zigzag(n))
	default:
		return HSVPixel{}, fmt.Errorf("%w: %s cannot use %s addressing", ErrUnrepresentable, i.Op, i.Mode)
	}
	return HSVPixel{
		Hue: hue,
		Sat: uint8(MaxSat - w/wordRadix),
		Val: uint8(MaxVal - w%wordRadix),
	}, nil
}

// Decode resolves p's hue against the palette and unpacks its operands.
func (pal *CanonicalPalette) Decode(p HSVPixel, pos Point) (Instruction, error) {
	if !p.Valid() {
		return Instruction{}, &DecodeError{Kind: InvalidPixel, Pixel: p, Pos: pos}
	}
	op, ok := pal.Match(int(p.Hue))
	if !ok {
		return Instruction{}, &DecodeError{Kind: InvalidHue, Pixel: p, Pos: pos}
	}

	if op.Shape() == ShapeTarget {
		return Instruction{
			Op:       op,
			Mode:     ModeTarget,
			Operands: []int64{int64(p.Sat), int64(p.Val)},
			Pos:      pos,
		}, nil
	}

	w := (MaxSat-int(p.Sat))*wordRadix + (MaxVal - int(p.Val))
	if w == 0 {
		return Instruction{Op: op, Mode: ModeNone, Pos: pos}, nil
	}
	k := w - 1
	return Instruction{
		Op:       op,
		Mode:     ModeLiteral + Mode(k%valueModes),
		Operands: []int64{unzigzag(uint64(k / valueModes))},
		Pos:      pos,
	}, nil
}

func zigzag(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

func unzigzag(z uint64) int64 {
	return int64(z>>1) ^ -int64(z&1)
}
