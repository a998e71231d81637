package codec

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// ---------------------------------------------------------------------------
// Image sources
// ---------------------------------------------------------------------------

// PixelFromColor converts an RGB colour to an HSV pixel: hue rounded to whole
// degrees, saturation and value rounded to whole percentages. Fully
// transparent pixels are treated as black.
func PixelFromColor(c color.Color) HSVPixel {
	cf, ok := colorful.MakeColor(c)
	if !ok {
		return HSVPixel{}
	}
	h, s, v := cf.Hsv()
	hue := int(math.Round(h)) % 360
	return HSVPixel{
		Hue: uint16(hue),
		Sat: uint8(math.Round(s * 100)),
		Val: uint8(math.Round(v * 100)),
	}
}

// ColorFromPixel converts an HSV pixel to 8-bit RGB.
func ColorFromPixel(p HSVPixel) color.NRGBA {
	c := colorful.Hsv(float64(p.NormalizedHue()), float64(p.Sat)/100, float64(p.Val)/100).Clamped()
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

// FromImage converts every pixel of img into a program.
func FromImage(img image.Image) (*Program, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: image is %dx%d", ErrEmptyProgram, w, h)
	}
	pixels := make([]HSVPixel, 0, w*h)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			pixels = append(pixels, PixelFromColor(img.At(x, y)))
		}
	}
	return NewProgram(w, h, pixels)
}

// ToImage renders p as an RGB image, one image pixel per program pixel.
func ToImage(p *Program) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, p.Width, p.Height))
	for i, px := range p.Pixels {
		pt := p.PointAt(i)
		img.SetNRGBA(pt.X, pt.Y, ColorFromPixel(px))
	}
	return img
}

// LoadPNG reads a PNG program image.
func LoadPNG(r io.Reader) (*Program, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode program image: %w", err)
	}
	return FromImage(img)
}

// WritePNG writes p as a PNG image.
func WritePNG(w io.Writer, p *Program) error {
	return png.Encode(w, ToImage(p))
}
