package codec

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Round-trip law
// ---------------------------------------------------------------------------

func sampleInstructions() []Instruction {
	var out []Instruction
	for _, op := range AllOpcodes() {
		if op.Shape() == ShapeTarget {
			for _, t := range [][2]int{{0, 0}, {1, 0}, {7, 3}, {MaxTarget, MaxTarget}, {0, MaxTarget}} {
				out = append(out, Jump(op, t[0], t[1]))
			}
			continue
		}
		out = append(out, Op(op))
		for _, n := range []int64{0, 1, -1, 42, -42, 255, MinOperand, MaxOperand} {
			out = append(out, Lit(op, n), Reg(op, n), Mem(op, n))
		}
	}
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, inst := range sampleInstructions() {
		inst = inst.At(Point{X: 3, Y: 4})
		px, err := Encode(inst)
		if err != nil {
			t.Fatalf("Encode(%v): %v", inst, err)
		}
		if !px.Valid() {
			t.Fatalf("Encode(%v) = %v, not a valid pixel", inst, px)
		}
		got, err := Decode(px, inst.Pos)
		if err != nil {
			t.Fatalf("Decode(%v) for %v: %v", px, inst, err)
		}
		if !got.Equal(inst) {
			t.Errorf("Decode(Encode(%v)) = %v (mode %v)", inst, got, got.Mode)
		}
	}
}

func TestEncodeOperandFreeIsFullColour(t *testing.T) {
	px, err := Encode(Op(OpHalt))
	if err != nil {
		t.Fatal(err)
	}
	if px != HSV(335, 100, 100) {
		t.Errorf("Encode(HALT) = %v, want hsv(335,100,100)", px)
	}
}

func TestEncodeRejectsUnrepresentable(t *testing.T) {
	tests := []struct {
		name string
		inst Instruction
	}{
		{"literal too large", Lit(OpLoad, MaxOperand+1)},
		{"literal too small", Lit(OpLoad, MinOperand-1)},
		{"target out of range", Jump(OpIf, MaxTarget+1, 0)},
		{"negative target", Jump(OpCall, -1, 0)},
		{"jump without target", Op(OpElse)},
		{"value op with target", Instruction{Op: OpAdd, Mode: ModeTarget, Operands: []int64{1, 2}}},
		{"two operands", Instruction{Op: OpLoad, Mode: ModeLiteral, Operands: []int64{1, 2}}},
		{"undefined opcode", Op(Opcode(Count))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.inst); !errors.Is(err, ErrUnrepresentable) {
				t.Errorf("Encode error = %v, want ErrUnrepresentable", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Hue matching
// ---------------------------------------------------------------------------

func TestDecodeHueTolerance(t *testing.T) {
	tests := []struct {
		hue  int
		want Opcode
	}{
		{35, OpAdd},
		{31, OpAdd},
		{40, OpAdd}, // tie with SUB resolves to the smaller hue
		{41, OpSub},
		{95, OpLoad},
		{275, OpPrint},
		{335, OpHalt},
		{350, OpDebug},
		{355, OpThreadSpawn},
		{359, OpThreadSpawn},
		{360, OpThreadJoin},
		{0, OpThreadJoin},
		{2, OpThreadJoin},
		{10, OpThreadJoin},
		{90, OpPow},  // tie with LOAD, both in range; POW's band holds 90
		{91, OpLoad},
		{331, OpHalt},
		{271, OpPrint},
	}
	for _, tt := range tests {
		inst, err := Decode(HSV(tt.hue, 100, 100), Point{})
		if err != nil {
			t.Errorf("Decode(hue %d): %v", tt.hue, err)
			continue
		}
		if inst.Op != tt.want {
			t.Errorf("Decode(hue %d) = %v, want %v", tt.hue, inst.Op, tt.want)
		}
	}
}

func TestDecodeInvalidHue(t *testing.T) {
	// 30, 270 and 330 are within tolerance of a neighbouring band's hue
	for _, hue := range []int{20, 15, 30, 265, 261, 269, 270, 311, 320, 329, 330} {
		_, err := Decode(HSV(hue, 100, 100), Point{X: 1, Y: 2})
		if !errors.Is(err, ErrInvalidHue) {
			t.Errorf("Decode(hue %d) error = %v, want ErrInvalidHue", hue, err)
			continue
		}
		var de *DecodeError
		if !errors.As(err, &de) || de.Pos != (Point{X: 1, Y: 2}) {
			t.Errorf("Decode(hue %d) error position = %v", hue, de)
		}
	}
}

func TestDecodeInvalidPixel(t *testing.T) {
	for _, px := range []HSVPixel{HSV(361, 0, 0), HSV(10, 101, 0), HSV(10, 0, 101)} {
		if _, err := Decode(px, Point{}); !errors.Is(err, ErrInvalidPixel) {
			t.Errorf("Decode(%v) error = %v, want ErrInvalidPixel", px, err)
		}
	}
}

func TestPaletteTolerance(t *testing.T) {
	narrow := NewPalette(WithTolerance(2))
	if _, ok := narrow.Match(38); ok {
		t.Error("Match(38) with tolerance 2 should fail")
	}
	if op, ok := narrow.Match(37); !ok || op != OpAdd {
		t.Errorf("Match(37) = %v, %v; want ADD", op, ok)
	}
	exact := NewPalette(WithTolerance(-3))
	if exact.Tolerance() != 0 {
		t.Errorf("negative tolerance clamped to %d, want 0", exact.Tolerance())
	}
}

func TestPaletteLegacyAliases(t *testing.T) {
	// 300 sits between READ_FILE (295) and WRITE_FILE (305); ties go low
	if op, _ := DefaultPalette().Match(300); op != OpReadFile {
		t.Errorf("default Match(300) = %v, want READ_FILE", op)
	}
	legacy := NewPalette(WithLegacyAliases())
	if op, _ := legacy.Match(300); op != OpMul {
		t.Errorf("legacy Match(300) = %v, want MUL", op)
	}
	if op, _ := legacy.Match(180); op != OpDiv {
		t.Errorf("legacy Match(180) = %v, want DIV", op)
	}
	if op, _ := legacy.Match(181); op != OpFor {
		t.Errorf("legacy Match(181) = %v, want FOR", op)
	}
}

func TestCategoryBands(t *testing.T) {
	tests := []struct {
		cat  Category
		hue  int
		want bool
	}{
		{CatArithmetic, 31, true},
		{CatArithmetic, 30, false},
		{CatArithmetic, 90, true},
		{CatFunction, 270, true},
		{CatIO, 270, false},
		{CatIO, 330, true},
		{CatSystem, 331, true},
		{CatSystem, 360, true},
		{CatSystem, 0, true},
		{CatSystem, 30, true},
		{CatSystem, 31, false},
	}
	for _, tt := range tests {
		if got := tt.cat.Contains(tt.hue); got != tt.want {
			t.Errorf("%v.Contains(%d) = %v, want %v", tt.cat, tt.hue, got, tt.want)
		}
	}
	for _, op := range AllOpcodes() {
		if !op.Info().Category.Contains(op.CanonicalHue()) {
			t.Errorf("%v canonical hue %d outside its %v band", op, op.CanonicalHue(), op.Info().Category)
		}
	}
}

func TestHueDistanceWraps(t *testing.T) {
	tests := []struct{ a, b, want int }{
		{359, 1, 2},
		{1, 359, 2},
		{0, 180, 180},
		{10, 350, 20},
		{35, 35, 0},
	}
	for _, tt := range tests {
		if got := HueDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("HueDistance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestResidual(t *testing.T) {
	if got := Residual(33, OpAdd); got != -2 {
		t.Errorf("Residual(33, ADD) = %d, want -2", got)
	}
	if got := Residual(358, OpThreadJoin); got != -7 {
		t.Errorf("Residual(358, THREAD_JOIN) = %d, want -7", got)
	}
}

func TestOpcodeTableComplete(t *testing.T) {
	seen := make(map[int]Opcode)
	for _, op := range AllOpcodes() {
		info := op.Info()
		if info.Name == "" {
			t.Errorf("opcode %d has no name", op)
		}
		if prev, dup := seen[info.Hue]; dup {
			t.Errorf("%v and %v share canonical hue %d", prev, op, info.Hue)
		}
		seen[info.Hue] = op
		if parsed, ok := ParseOpcode(info.Name); !ok || parsed != op {
			t.Errorf("ParseOpcode(%q) = %v, %v", info.Name, parsed, ok)
		}
	}
	if _, ok := ParseOpcode("nop"); ok {
		t.Error("ParseOpcode(nop) should fail")
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		inst Instruction
		want string
	}{
		{Lit(OpLoad, 42), "LOAD 42"},
		{Reg(OpMove, 3), "MOVE r3"},
		{Mem(OpStore, 7), "STORE [7]"},
		{Jump(OpIf, 4, 1), "IF @4,1"},
		{Op(OpHalt), "HALT"},
	}
	for _, tt := range tests {
		if got := tt.inst.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
