package compress

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/chazu/prism/codec"
)

// ---------------------------------------------------------------------------
// Palette table
// ---------------------------------------------------------------------------

// MaxPaletteSize is the largest number of distinct pixels a palette table
// can index.
const MaxPaletteSize = math.MaxUint16

// verbatimTag marks a table entry stored without a canonical mapping.
const verbatimTag = 0xFF

// paletteTable lists the distinct pixels of a program in first-seen order.
// Each entry is written either as (opcode, hue residual, sat, val), mapping
// the original to its canonical hue, or verbatim when no canonical hue lies
// within tolerance.
type paletteTable struct {
	entries []codec.HSVPixel
	index   map[codec.HSVPixel]int
}

func buildTable(pixels []codec.HSVPixel) (*paletteTable, error) {
	t := &paletteTable{index: make(map[codec.HSVPixel]int)}
	for _, px := range pixels {
		if _, ok := t.index[px]; ok {
			continue
		}
		if len(t.entries) == MaxPaletteSize {
			return nil, ErrTooManyColors
		}
		t.index[px] = len(t.entries)
		t.entries = append(t.entries, px)
	}
	return t, nil
}

// indexWidth is the byte width of one index into t.
func (t *paletteTable) indexWidth() int {
	if len(t.entries) <= 256 {
		return 1
	}
	return 2
}

// canonicalEntry returns the opcode and residual px maps to, or ok=false if
// px must be stored verbatim. Hue 360 is stored verbatim: it matches like 0
// but must decode back to 360.
func canonicalEntry(pal *codec.CanonicalPalette, px codec.HSVPixel) (op codec.Opcode, residual int, ok bool) {
	if px.Hue >= 360 {
		return 0, 0, false
	}
	op, ok = pal.Match(int(px.Hue))
	if !ok {
		return 0, 0, false
	}
	residual = codec.Residual(int(px.Hue), op)
	if residual < math.MinInt8 || residual > math.MaxInt8 {
		return 0, 0, false
	}
	return op, residual, true
}

// appendTable writes count u16, the entries and the index width u8.
func appendTable(dst []byte, t *paletteTable, pal *codec.CanonicalPalette) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(t.entries)))
	for _, px := range t.entries {
		if op, res, ok := canonicalEntry(pal, px); ok {
			dst = append(dst, byte(op), byte(int8(res)), px.Sat, px.Val)
			continue
		}
		dst = append(dst, verbatimTag)
		dst = appendPixel(dst, px)
	}
	return append(dst, byte(t.indexWidth()))
}

func readTable(r *reader) (entries []codec.HSVPixel, width int, err error) {
	count, err := r.u16()
	if err != nil {
		return nil, 0, err
	}
	entries = make([]codec.HSVPixel, count)
	for i := range entries {
		tag, err := r.u8()
		if err != nil {
			return nil, 0, err
		}
		if tag == verbatimTag {
			if entries[i], err = r.pixel(); err != nil {
				return nil, 0, err
			}
			continue
		}
		op := codec.Opcode(tag)
		if !op.Valid() {
			return nil, 0, Corruptf("palette entry %d names opcode %d", i, tag)
		}
		b, err := r.bytes(3)
		if err != nil {
			return nil, 0, err
		}
		hue := (op.CanonicalHue() + int(int8(b[0])) + 360) % 360
		entries[i] = codec.HSVPixel{Hue: uint16(hue), Sat: b[1], Val: b[2]}
	}
	w, err := r.u8()
	if err != nil {
		return nil, 0, err
	}
	if w != 1 && w != 2 {
		return nil, 0, Corruptf("palette index width %d", w)
	}
	return entries, int(w), nil
}

// ---------------------------------------------------------------------------
// Palette strategy: table + one index per pixel
// ---------------------------------------------------------------------------

type paletteStrategy struct {
	palette  *codec.CanonicalPalette
	tileRows int
}

func (paletteStrategy) Method() Method { return MethodPalette }

func (s paletteStrategy) Encode(ctx context.Context, p *codec.Program) (*Encoded, error) {
	t, err := buildTable(p.Pixels)
	if err != nil {
		return nil, err
	}
	width := t.indexWidth()
	indices, tiled, err := encodeBands(ctx, p, s.tileRows, func(band []codec.HSVPixel) []byte {
		out := make([]byte, 0, len(band)*width)
		for _, px := range band {
			out = appendIndex(out, t.index[px], width)
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	enc := &Encoded{
		Method:  MethodPalette,
		Payload: append(appendTable(nil, t, s.palette), indices...),
	}
	if tiled {
		enc.Flags |= FlagTiled
	}
	return enc, nil
}

func (paletteStrategy) Decode(enc *Encoded, width, height int) ([]codec.HSVPixel, error) {
	r := &reader{data: enc.Payload}
	entries, iw, err := readTable(r)
	if err != nil {
		return nil, asCorrupt(MethodPalette, err)
	}
	n := width * height
	if r.remaining() != n*iw {
		return nil, Corruptf("palette index stream is %d bytes, want %d", r.remaining(), n*iw)
	}
	out := make([]codec.HSVPixel, n)
	for i := range out {
		idx, _ := r.index(iw)
		if idx >= len(entries) {
			return nil, Corruptf("palette index %d out of %d entries", idx, len(entries))
		}
		out[i] = entries[idx]
	}
	return out, nil
}
