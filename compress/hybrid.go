package compress

import (
	"context"

	"github.com/chazu/prism/codec"
)

// ---------------------------------------------------------------------------
// Hybrid: palette table + RLE of indices, then dictionary, then huff0
// ---------------------------------------------------------------------------

type hybridStrategy struct {
	palette  *codec.CanonicalPalette
	level    uint8
	tileRows int
}

func (hybridStrategy) Method() Method { return MethodHybrid }

func (s hybridStrategy) Encode(ctx context.Context, p *codec.Program) (*Encoded, error) {
	t, err := buildTable(p.Pixels)
	if err != nil {
		return nil, err
	}
	width := t.indexWidth()
	runs, tiled, err := encodeBands(ctx, p, s.tileRows, func(band []codec.HSVPixel) []byte {
		var out []byte
		for i := 0; i < len(band); {
			j := i + 1
			for j < len(band) && band[j] == band[i] && j-i < MaxRun {
				j++
			}
			out = appendIndex(out, t.index[band[i]], width)
			out = append(out, byte(j-i))
			i = j
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	stream := append(appendTable(nil, t, s.palette), runs...)

	enc := &Encoded{Method: MethodHybrid}
	if tiled {
		enc.Flags |= FlagTiled
	}
	enc.Dictionary, stream = buildDictionary(stream, maxDictEntries(s.level))
	if len(enc.Dictionary) > 0 {
		enc.Flags |= FlagDictionary
	}
	if s.level > 0 {
		packed, ok, err := entropyPack(stream)
		if err != nil {
			return nil, err
		}
		if ok {
			stream = packed
			enc.Flags |= FlagEntropy
		}
	}
	enc.Payload = stream
	log.Debugf("hybrid: %d palette entries, %d dictionary entries, flags %s", len(t.entries), len(enc.Dictionary), enc.Flags)
	return enc, nil
}

// hybridLimit bounds the pre-dictionary stream of an n-pixel program: a full
// table of verbatim entries plus one 2-byte index and run per pixel.
func hybridLimit(n int) int {
	return 3 + min(n, MaxPaletteSize)*(1+pixelSize) + n*3
}

func (hybridStrategy) Decode(enc *Encoded, width, height int) ([]codec.HSVPixel, error) {
	n := width * height
	limit := hybridLimit(n)

	stream := enc.Payload
	if enc.Flags.Has(FlagEntropy) {
		var err error
		if stream, err = entropyUnpack(stream, limit); err != nil {
			return nil, asCorrupt(MethodHybrid, err)
		}
	}
	stream, err := expandDictionary(stream, enc.Dictionary, limit)
	if err != nil {
		return nil, err
	}

	r := &reader{data: stream}
	entries, iw, err := readTable(r)
	if err != nil {
		return nil, asCorrupt(MethodHybrid, err)
	}
	if r.remaining()/(iw+1)*MaxRun < n {
		return nil, Corruptf("hybrid stream of %d bytes cannot cover %d pixels", r.remaining(), n)
	}
	out := make([]codec.HSVPixel, 0, n)
	for r.remaining() > 0 {
		idx, err := r.index(iw)
		if err != nil {
			return nil, asCorrupt(MethodHybrid, err)
		}
		run, err := r.u8()
		if err != nil {
			return nil, asCorrupt(MethodHybrid, err)
		}
		if idx >= len(entries) || run == 0 || len(out)+int(run) > n {
			return nil, Corruptf("hybrid run (index %d, length %d) invalid at pixel %d", idx, run, len(out))
		}
		for k := 0; k < int(run); k++ {
			out = append(out, entries[idx])
		}
	}
	if len(out) != n {
		return nil, Corruptf("hybrid runs cover %d of %d pixels", len(out), n)
	}
	return out, nil
}
