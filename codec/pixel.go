package codec

import "fmt"

// ---------------------------------------------------------------------------
// HSVPixel: the unit of program storage
// ---------------------------------------------------------------------------

// Pixel component limits.
const (
	MaxHue = 360
	MaxSat = 100
	MaxVal = 100
)

// HSVPixel is one program cell. Hue is in degrees (360 wraps to 0 for
// matching purposes but is preserved as stored), saturation and value are
// percentages.
type HSVPixel struct {
	Hue uint16
	Sat uint8
	Val uint8
}

// HSV builds a pixel. It does not validate; see Valid.
func HSV(h, s, v int) HSVPixel {
	return HSVPixel{Hue: uint16(h), Sat: uint8(s), Val: uint8(v)}
}

// Valid reports whether every component is within range.
func (p HSVPixel) Valid() bool {
	return p.Hue <= MaxHue && p.Sat <= MaxSat && p.Val <= MaxVal
}

// NormalizedHue returns the hue folded into [0, 360).
func (p HSVPixel) NormalizedHue() int {
	return int(p.Hue) % 360
}

func (p HSVPixel) String() string {
	return fmt.Sprintf("hsv(%d,%d,%d)", p.Hue, p.Sat, p.Val)
}

// HueDistance returns the circular distance between two hues in degrees.
func HueDistance(a, b int) int {
	d := (a - b) % 360
	if d < 0 {
		d = -d
	}
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Point is a grid coordinate.
type Point struct {
	X int
	Y int
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}
