package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewProgramRejectsEmpty(t *testing.T) {
	if _, err := NewProgram(0, 5, nil); !errors.Is(err, ErrEmptyProgram) {
		t.Errorf("NewProgram(0x5) error = %v, want ErrEmptyProgram", err)
	}
	if _, err := NewProgram(3, 0, nil); !errors.Is(err, ErrEmptyProgram) {
		t.Errorf("NewProgram(3x0) error = %v, want ErrEmptyProgram", err)
	}
}

func TestNewProgramRejectsGridMismatch(t *testing.T) {
	_, err := NewProgram(2, 2, make([]HSVPixel, 3))
	if !errors.Is(err, ErrGridMismatch) {
		t.Errorf("error = %v, want ErrGridMismatch", err)
	}
}

func TestAssemblePadsWithHalt(t *testing.T) {
	p, err := Assemble(2, []Instruction{Lit(OpLoad, 1), Op(OpPrint), Op(OpHalt)})
	if err != nil {
		t.Fatal(err)
	}
	if p.Width != 2 || p.Height != 2 {
		t.Fatalf("dimensions = %dx%d, want 2x2", p.Width, p.Height)
	}
	last, err := Decode(p.At(Point{X: 1, Y: 1}), Point{X: 1, Y: 1})
	if err != nil {
		t.Fatal(err)
	}
	if last.Op != OpHalt {
		t.Errorf("padding = %v, want HALT", last.Op)
	}
}

func TestProgramDecodeStopsAtFirstError(t *testing.T) {
	load, _ := Encode(Lit(OpLoad, 1))
	p, err := NewProgram(3, 1, []HSVPixel{load, HSV(265, 100, 100), load})
	if err != nil {
		t.Fatal(err)
	}
	instrs, err := p.Decode(nil)
	if instrs != nil {
		t.Error("partial program returned on decode error")
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Pos != (Point{X: 1, Y: 0}) {
		t.Errorf("error = %v, want DecodeError at (1,0)", err)
	}
}

func TestProgramEqualAndClone(t *testing.T) {
	p, _ := Assemble(3, []Instruction{Lit(OpLoad, 42), Op(OpPrint), Op(OpHalt)})
	c := p.Clone()
	if !p.Equal(c) {
		t.Fatal("clone differs from original")
	}
	c.Pixels[0] = HSV(0, 0, 0)
	if p.Equal(c) {
		t.Error("editing the clone changed equality with the original")
	}
}

func TestPNGRoundTripKeepsOpcodes(t *testing.T) {
	var instrs []Instruction
	for _, op := range AllOpcodes() {
		if op.Shape() == ShapeValue {
			instrs = append(instrs, Op(op))
		}
	}
	p, err := Assemble(len(instrs), instrs)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WritePNG(&buf, p); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	back, err := LoadPNG(&buf)
	if err != nil {
		t.Fatalf("LoadPNG: %v", err)
	}
	if back.Width != p.Width || back.Height != p.Height {
		t.Fatalf("dimensions = %dx%d, want %dx%d", back.Width, back.Height, p.Width, p.Height)
	}
	got, err := back.Decode(nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, inst := range got {
		if inst.Op != instrs[i].Op || inst.Mode != ModeNone {
			t.Errorf("pixel %d decoded to %v, want %v", i, inst, instrs[i].Op)
		}
	}
}

func TestDisassemble(t *testing.T) {
	p, _ := Assemble(4, []Instruction{Lit(OpLoad, 42), Op(OpPrint), Op(OpHalt)})
	p.Pixels[3] = HSV(265, 100, 100)

	var buf bytes.Buffer
	if err := Disassemble(&buf, p, nil); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"LOAD 42", "PRINT", "HALT", "!! invalid hue 265 at (3,0)"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "\n"); n != 4 {
		t.Errorf("disassembly has %d lines, want 4", n)
	}
}
