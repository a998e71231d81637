package compress

import (
	"bytes"
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/prism/codec"
)

// DefaultTileRows is the band height above which a program is encoded as
// independent row bands.
const DefaultTileRows = 64

// encodeBands applies fn to row bands of at most tileRows rows, concurrently,
// and concatenates the results in raster order. fn must produce a stream
// whose concatenation decodes like the stream of the whole grid. tiled is
// false when the program fits in one band.
func encodeBands(ctx context.Context, p *codec.Program, tileRows int, fn func([]codec.HSVPixel) []byte) (out []byte, tiled bool, err error) {
	if tileRows <= 0 || p.Height <= tileRows {
		return fn(p.Pixels), false, nil
	}

	nb := (p.Height + tileRows - 1) / tileRows
	parts := make([][]byte, nb)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < nb; i++ {
		lo := i * tileRows * p.Width
		hi := min((i+1)*tileRows, p.Height) * p.Width
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			parts[i] = fn(p.Pixels[lo:hi])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	log.Debugf("encoded %d bands of %d rows", nb, tileRows)
	return bytes.Join(parts, nil), true, nil
}
