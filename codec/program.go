package codec

import (
	"fmt"
	"maps"
	"slices"
)

// ---------------------------------------------------------------------------
// Program: a 2-D pixel grid
// ---------------------------------------------------------------------------

// Program is a row-major grid of pixels. Programs are treated as immutable
// once built; Clone before editing one that is shared.
type Program struct {
	Width    int
	Height   int
	Pixels   []HSVPixel
	Metadata map[string]string
}

// NewProgram validates the grid and returns a program. Empty grids and grids
// whose length does not equal width*height are rejected.
func NewProgram(width, height int, pixels []HSVPixel) (*Program, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyProgram, width, height)
	}
	if len(pixels) != width*height {
		return nil, fmt.Errorf("%w: %dx%d needs %d pixels, got %d",
			ErrGridMismatch, width, height, width*height, len(pixels))
	}
	return &Program{
		Width:    width,
		Height:   height,
		Pixels:   pixels,
		Metadata: make(map[string]string),
	}, nil
}

// Assemble encodes a row-major instruction list into a program of the given
// width. The final row is padded with HALT.
func Assemble(width int, instrs []Instruction) (*Program, error) {
	if width <= 0 || len(instrs) == 0 {
		return nil, ErrEmptyProgram
	}
	height := (len(instrs) + width - 1) / width
	pixels := make([]HSVPixel, width*height)
	halt, _ := Encode(Op(OpHalt))
	for i := range pixels {
		if i >= len(instrs) {
			pixels[i] = halt
			continue
		}
		px, err := Encode(instrs[i])
		if err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, instrs[i].Op, err)
		}
		pixels[i] = px
	}
	return NewProgram(width, height, pixels)
}

// Len returns the number of pixels.
func (p *Program) Len() int {
	return p.Width * p.Height
}

// Contains reports whether pt lies on the grid.
func (p *Program) Contains(pt Point) bool {
	return pt.X >= 0 && pt.X < p.Width && pt.Y >= 0 && pt.Y < p.Height
}

// At returns the pixel at pt. The caller must check Contains.
func (p *Program) At(pt Point) HSVPixel {
	return p.Pixels[pt.Y*p.Width+pt.X]
}

// Index returns the raster index of pt.
func (p *Program) Index(pt Point) int {
	return pt.Y*p.Width + pt.X
}

// PointAt returns the coordinate of raster index i.
func (p *Program) PointAt(i int) Point {
	return Point{X: i % p.Width, Y: i / p.Width}
}

// Decode decodes every pixel with pal, stopping at the first error. No
// partial program is returned.
func (p *Program) Decode(pal *CanonicalPalette) ([]Instruction, error) {
	if pal == nil {
		pal = defaultPalette
	}
	out := make([]Instruction, len(p.Pixels))
	for i, px := range p.Pixels {
		inst, err := pal.Decode(px, p.PointAt(i))
		if err != nil {
			return nil, err
		}
		out[i] = inst
	}
	return out, nil
}

// Equal compares dimensions and pixels. Metadata is ignored.
func (p *Program) Equal(o *Program) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.Width == o.Width && p.Height == o.Height && slices.Equal(p.Pixels, o.Pixels)
}

// Clone returns a deep copy.
func (p *Program) Clone() *Program {
	return &Program{
		Width:    p.Width,
		Height:   p.Height,
		Pixels:   slices.Clone(p.Pixels),
		Metadata: maps.Clone(p.Metadata),
	}
}
