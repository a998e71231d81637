package codec

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies one PRISM instruction. The set is closed: Count is the
// number of opcodes and every table in this module is sized by it.
type Opcode uint8

// Arithmetic (hue 31-90)
const (
	OpAdd Opcode = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
)

// Memory (hue 91-150)
const (
	OpLoad Opcode = iota + 6
	OpStore
	OpMove
	OpCopy
	OpAlloc
	OpFree
)

// Control flow (hue 151-210)
const (
	OpIf Opcode = iota + 12
	OpElse
	OpWhile
	OpFor
	OpBreak
	OpContinue
)

// Functions (hue 211-270)
const (
	OpCall Opcode = iota + 18
	OpReturn
	OpFuncDef
	OpParam
	OpLocal
)

// I/O (hue 271-330)
const (
	OpPrint Opcode = iota + 23
	OpInput
	OpReadFile
	OpWriteFile
)

// System (hue 331-360, 0-30)
const (
	OpHalt Opcode = iota + 27
	OpDebug
	OpThreadSpawn
	OpThreadJoin
)

// Count is the number of defined opcodes.
const Count = int(OpThreadJoin) + 1

// ---------------------------------------------------------------------------
// Categories and operand shapes
// ---------------------------------------------------------------------------

// Category groups opcodes by hue band.
type Category uint8

const (
	CatArithmetic Category = iota
	CatMemory
	CatControl
	CatFunction
	CatIO
	CatSystem
)

var categoryNames = [...]string{"arithmetic", "memory", "control", "function", "io", "system"}

// categoryBands holds the inclusive hue band of each category. The system
// band wraps through 0.
var categoryBands = [...][2]int{
	CatArithmetic: {31, 90},
	CatMemory:     {91, 150},
	CatControl:    {151, 210},
	CatFunction:   {211, 270},
	CatIO:         {271, 330},
	CatSystem:     {331, 30},
}

// Band returns the inclusive hue range of c; lo > hi means the band wraps
// through 0.
func (c Category) Band() (lo, hi int) {
	b := categoryBands[c]
	return b[0], b[1]
}

// Contains reports whether hue (normalised to 0..359) lies in c's band.
func (c Category) Contains(hue int) bool {
	hue = ((hue % 360) + 360) % 360
	lo, hi := c.Band()
	if lo <= hi {
		return hue >= lo && hue <= hi
	}
	return hue >= lo || hue <= hi
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", c)
}

// Shape describes how an opcode's saturation and value carry operands.
type Shape uint8

const (
	// ShapeValue: optional single operand with an addressing mode.
	ShapeValue Shape = iota
	// ShapeTarget: an absolute (x,y) jump target, x in saturation and y in value.
	ShapeTarget
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name     string
	Category Category
	Hue      int // canonical hue
	Shape    Shape
}

// opcodeTable is indexed by Opcode; it must have exactly Count entries.
var opcodeTable = [Count]OpcodeInfo{
	OpAdd: {"ADD", CatArithmetic, 35, ShapeValue},
	OpSub: {"SUB", CatArithmetic, 45, ShapeValue},
	OpMul: {"MUL", CatArithmetic, 55, ShapeValue},
	OpDiv: {"DIV", CatArithmetic, 65, ShapeValue},
	OpMod: {"MOD", CatArithmetic, 75, ShapeValue},
	OpPow: {"POW", CatArithmetic, 85, ShapeValue},

	OpLoad:  {"LOAD", CatMemory, 95, ShapeValue},
	OpStore: {"STORE", CatMemory, 105, ShapeValue},
	OpMove:  {"MOVE", CatMemory, 115, ShapeValue},
	OpCopy:  {"COPY", CatMemory, 125, ShapeValue},
	OpAlloc: {"ALLOC", CatMemory, 135, ShapeValue},
	OpFree:  {"FREE", CatMemory, 145, ShapeValue},

	OpIf:       {"IF", CatControl, 155, ShapeTarget},
	OpElse:     {"ELSE", CatControl, 165, ShapeTarget},
	OpWhile:    {"WHILE", CatControl, 175, ShapeTarget},
	OpFor:      {"FOR", CatControl, 185, ShapeTarget},
	OpBreak:    {"BREAK", CatControl, 195, ShapeTarget},
	OpContinue: {"CONTINUE", CatControl, 205, ShapeTarget},

	OpCall:    {"CALL", CatFunction, 215, ShapeTarget},
	OpReturn:  {"RETURN", CatFunction, 225, ShapeValue},
	OpFuncDef: {"FUNC_DEF", CatFunction, 235, ShapeTarget},
	OpParam:   {"PARAM", CatFunction, 245, ShapeValue},
	OpLocal:   {"LOCAL", CatFunction, 255, ShapeValue},

	OpPrint:     {"PRINT", CatIO, 275, ShapeValue},
	OpInput:     {"INPUT", CatIO, 285, ShapeValue},
	OpReadFile:  {"READ_FILE", CatIO, 295, ShapeValue},
	OpWriteFile: {"WRITE_FILE", CatIO, 305, ShapeValue},

	OpHalt:        {"HALT", CatSystem, 335, ShapeValue},
	OpDebug:       {"DEBUG", CatSystem, 345, ShapeValue},
	OpThreadSpawn: {"THREAD_SPAWN", CatSystem, 355, ShapeTarget},
	OpThreadJoin:  {"THREAD_JOIN", CatSystem, 5, ShapeValue},
}

var opcodeByName map[string]Opcode

func init() {
	opcodeByName = make(map[string]Opcode, Count)
	for i, info := range opcodeTable {
		if info.Name == "" {
			panic(fmt.Sprintf("codec: opcode %d has no table entry", i))
		}
		opcodeByName[info.Name] = Opcode(i)
	}
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return int(op) < Count
}

// Info returns the metadata for op. It panics on an undefined opcode.
func (op Opcode) Info() OpcodeInfo {
	return opcodeTable[op]
}

// Name returns the mnemonic for op.
func (op Opcode) Name() string {
	if !op.Valid() {
		return fmt.Sprintf("OP_%d", uint8(op))
	}
	return opcodeTable[op].Name
}

func (op Opcode) String() string {
	return op.Name()
}

// CanonicalHue returns the hue op encodes to.
func (op Opcode) CanonicalHue() int {
	return opcodeTable[op].Hue
}

// Shape returns the operand shape of op.
func (op Opcode) Shape() Shape {
	return opcodeTable[op].Shape
}

// IsJump reports whether op carries a jump target.
func (op Opcode) IsJump() bool {
	return op.Valid() && opcodeTable[op].Shape == ShapeTarget
}

// ParseOpcode looks up a mnemonic, case-insensitively.
func ParseOpcode(name string) (Opcode, bool) {
	op, ok := opcodeByName[strings.ToUpper(name)]
	return op, ok
}

// AllOpcodes returns every opcode in table order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, Count)
	for i := range ops {
		ops[i] = Opcode(i)
	}
	return ops
}
