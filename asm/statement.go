package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/prism/codec"
)

// ---------------------------------------------------------------------------
// Statements and operands
// ---------------------------------------------------------------------------

func parseInt(s string, dst *int) bool {
	n, err := strconv.Atoi(s)
	if err != nil {
		return false
	}
	*dst = n
	return true
}

func (a *assembler) statement(pos Position, mnemonic, operand string) {
	op, ok := codec.ParseOpcode(mnemonic)
	if !ok {
		a.errorf(pos, "unknown instruction or macro %s", mnemonic)
		return
	}
	c := cell{pos: pos}

	if op.Shape() == codec.ShapeTarget {
		if !strings.HasPrefix(operand, "@") {
			a.errorf(pos, "%s needs a target (@label or @x,y)", op)
			return
		}
		target := strings.ReplaceAll(operand[1:], " ", "")
		if x, y, ok := strings.Cut(target, ","); ok {
			var tx, ty int
			if !parseInt(x, &tx) || !parseInt(y, &ty) {
				a.errorf(pos, "bad target %s", operand)
				return
			}
			c.inst = codec.Jump(op, tx, ty)
		} else {
			if !validLabel(target) {
				a.errorf(pos, "bad target %s", operand)
				return
			}
			c.inst = codec.Instruction{Op: op, Mode: codec.ModeTarget}
			c.label = target
		}
		a.cells = append(a.cells, c)
		return
	}

	inst, err := parseOperand(op, operand)
	if err != nil {
		a.errorf(pos, "%v", err)
		return
	}
	c.inst = inst
	a.cells = append(a.cells, c)
}

func parseOperand(op codec.Opcode, s string) (codec.Instruction, error) {
	number := func(t string) (int64, error) {
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: bad operand %q", op, s)
		}
		return n, nil
	}

	switch {
	case s == "":
		return codec.Op(op), nil
	case strings.HasPrefix(s, "@"):
		return codec.Instruction{}, fmt.Errorf("%s does not take a jump target", op)
	case len(s) > 1 && (s[0] == 'r' || s[0] == 'R'):
		n, err := number(s[1:])
		return codec.Reg(op, n), err
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		n, err := number(strings.TrimSpace(s[1 : len(s)-1]))
		return codec.Mem(op, n), err
	}
	n, err := number(s)
	return codec.Lit(op, n), err
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

// program resolves labels against the final width and encodes the cells.
func (a *assembler) program() (*codec.Program, error) {
	if len(a.cells) == 0 {
		return nil, codec.ErrEmptyProgram
	}
	height := (len(a.cells) + a.width - 1) / a.width
	pixels := make([]codec.HSVPixel, a.width*height)
	halt, _ := codec.Encode(codec.Op(codec.OpHalt))

	for i := range pixels {
		if i >= len(a.cells) {
			pixels[i] = halt
			continue
		}
		c := a.cells[i]
		if c.raw != nil {
			pixels[i] = *c.raw
			continue
		}
		inst := c.inst
		if c.label != "" {
			idx, ok := a.labels[c.label]
			if !ok {
				a.errorf(c.pos, "undefined label %s", c.label)
				continue
			}
			// a label after the last statement names the first padding cell
			inst = codec.Jump(inst.Op, idx%a.width, idx/a.width)
		}
		px, err := codec.Encode(inst)
		if err != nil {
			a.errorf(c.pos, "%v", err)
			continue
		}
		pixels[i] = px
	}
	if len(a.errs) > 0 {
		return nil, a.errs
	}

	log.Debugf("assembled %d statements into %dx%d", len(a.cells), a.width, height)
	p, err := codec.NewProgram(a.width, height, pixels)
	if err != nil {
		return nil, err
	}
	for name, idx := range a.labels {
		p.Metadata["label."+name] = codec.Point{X: idx % a.width, Y: idx / a.width}.String()
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Source: program -> .pasm
// ---------------------------------------------------------------------------

// Source renders p as .pasm text that assembles back to exactly p. Pixels
// whose canonical encoding differs from the stored pixel (off-centre hues,
// undecodable pixels) are written as .hsv.
func Source(p *codec.Program, pal *codec.CanonicalPalette) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, ".width %d\n", p.Width)
	for i, px := range p.Pixels {
		pt := p.PointAt(i)
		if pt.X == 0 && pt.Y > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(sourceLine(px, pt, pal))
		sb.WriteString("\n")
	}
	return sb.String()
}

func sourceLine(px codec.HSVPixel, pt codec.Point, pal *codec.CanonicalPalette) string {
	raw := fmt.Sprintf(".hsv %d %d %d", px.Hue, px.Sat, px.Val)
	if pal == nil {
		pal = codec.DefaultPalette()
	}
	inst, err := pal.Decode(px, pt)
	if err != nil {
		return raw
	}
	if enc, err := codec.Encode(inst); err != nil || enc != px {
		return raw
	}
	return inst.String()
}
