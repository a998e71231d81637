package codec

import (
	"fmt"
	"io"
	"strings"
)

// Disassemble writes one line per pixel: position, raw HSV and the decoded
// instruction, or the decode error for pixels that do not decode.
func Disassemble(w io.Writer, p *Program, pal *CanonicalPalette) error {
	if pal == nil {
		pal = defaultPalette
	}
	posWidth := len(Point{X: p.Width - 1, Y: p.Height - 1}.String())
	for i, px := range p.Pixels {
		pt := p.PointAt(i)
		var text string
		if inst, err := pal.Decode(px, pt); err != nil {
			text = "!! " + err.Error()
		} else {
			text = inst.String()
		}
		line := fmt.Sprintf("%-*s  %-*s  %s", posWidth, pt, len("hsv(360,100,100)"), px, text)
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}
