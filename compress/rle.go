package compress

import (
	"context"

	"github.com/chazu/prism/codec"
)

// ---------------------------------------------------------------------------
// Raw: pixels verbatim
// ---------------------------------------------------------------------------

type rawStrategy struct{}

func (rawStrategy) Method() Method { return MethodRaw }

func (rawStrategy) Encode(_ context.Context, p *codec.Program) (*Encoded, error) {
	payload := make([]byte, 0, len(p.Pixels)*pixelSize)
	for _, px := range p.Pixels {
		payload = appendPixel(payload, px)
	}
	return &Encoded{Method: MethodRaw, Payload: payload}, nil
}

func (rawStrategy) Decode(enc *Encoded, width, height int) ([]codec.HSVPixel, error) {
	n := width * height
	if len(enc.Payload) != n*pixelSize {
		return nil, Corruptf("raw payload is %d bytes, want %d", len(enc.Payload), n*pixelSize)
	}
	r := &reader{data: enc.Payload}
	out := make([]codec.HSVPixel, n)
	for i := range out {
		out[i], _ = r.pixel()
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// RLE: (pixel, run) pairs in raster order
// ---------------------------------------------------------------------------

// MaxRun is the longest run one RLE entry can hold; longer runs spill into
// further entries.
const MaxRun = 255

const rleEntrySize = pixelSize + 1

type rleStrategy struct {
	tileRows int
}

func (rleStrategy) Method() Method { return MethodRLE }

func (s rleStrategy) Encode(ctx context.Context, p *codec.Program) (*Encoded, error) {
	payload, tiled, err := encodeBands(ctx, p, s.tileRows, rleEncode)
	if err != nil {
		return nil, err
	}
	enc := &Encoded{Method: MethodRLE, Payload: payload}
	if tiled {
		enc.Flags |= FlagTiled
	}
	return enc, nil
}

func (rleStrategy) Decode(enc *Encoded, width, height int) ([]codec.HSVPixel, error) {
	return rleDecode(enc.Payload, width*height)
}

func rleEncode(pixels []codec.HSVPixel) []byte {
	var out []byte
	for i := 0; i < len(pixels); {
		j := i + 1
		for j < len(pixels) && pixels[j] == pixels[i] && j-i < MaxRun {
			j++
		}
		out = appendPixel(out, pixels[i])
		out = append(out, byte(j-i))
		i = j
	}
	return out
}

func rleDecode(payload []byte, n int) ([]codec.HSVPixel, error) {
	if len(payload)%rleEntrySize != 0 {
		return nil, Corruptf("rle payload length %d is not a multiple of %d", len(payload), rleEntrySize)
	}
	if len(payload)/rleEntrySize*MaxRun < n {
		return nil, Corruptf("rle payload of %d bytes cannot cover %d pixels", len(payload), n)
	}
	out := make([]codec.HSVPixel, 0, n)
	r := &reader{data: payload}
	for r.remaining() > 0 {
		px, _ := r.pixel()
		run, _ := r.u8()
		if run == 0 {
			return nil, Corruptf("zero-length run at byte %d", r.off-1)
		}
		if len(out)+int(run) > n {
			return nil, Corruptf("rle runs exceed %d pixels", n)
		}
		for k := 0; k < int(run); k++ {
			out = append(out, px)
		}
	}
	if len(out) != n {
		return nil, Corruptf("rle runs cover %d of %d pixels", len(out), n)
	}
	return out, nil
}
