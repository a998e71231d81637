// Package bench measures the compression methods against a program and
// records the results in a DuckDB database for later comparison.
package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/prism/codec"
	"github.com/chazu/prism/compress"
	"github.com/chazu/prism/container"
)

var log = commonlog.GetLogger("prism.bench")

// Methods is the default set of methods measured, Auto included.
var Methods = []compress.Method{
	compress.Auto,
	compress.MethodPalette,
	compress.MethodRLE,
	compress.MethodHybrid,
	compress.MethodRaw,
}

// Result is one measured compression.
type Result struct {
	ID        string
	Batch     string // shared by every result of one Run
	Program   string
	Requested compress.Method
	Stored    compress.Method // differs from Requested after a fallback or for Auto
	Level     int
	Width     int
	Height    int
	Original  int // raw pixel bytes
	Container int // serialized container bytes
	Ratio     float64
	Encode    time.Duration
	Decode    time.Duration
	Created   time.Time
}

// Options configures Run.
type Options struct {
	Methods []compress.Method // nil means Methods
	Levels  []int             // nil means the engine default only
	Rounds  int               // timing rounds per measurement, at least 1
	Engine  []compress.Option // applied before each level
}

// Run compresses p with every method at every level, checks that each
// result decodes back to p, and reports sizes and the best-of-rounds
// timings.
func Run(ctx context.Context, name string, p *codec.Program, opts Options) ([]Result, error) {
	methods := opts.Methods
	if methods == nil {
		methods = Methods
	}
	levels := opts.Levels
	if levels == nil {
		levels = []int{compress.DefaultLevel}
	}
	rounds := max(opts.Rounds, 1)

	batch := uuid.NewString()
	var out []Result
	for _, level := range levels {
		e := compress.New(append(append([]compress.Option(nil), opts.Engine...), compress.WithLevel(level))...)
		for _, m := range methods {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r, err := measure(ctx, e, p, m, rounds)
			if err != nil {
				return nil, fmt.Errorf("%s at level %d: %w", m, level, err)
			}
			r.ID = uuid.NewString()
			r.Batch = batch
			r.Program = name
			r.Level = e.Level()
			out = append(out, *r)
			log.Debugf("%s %s/%d: %d -> %d bytes", name, m, r.Level, r.Original, r.Container)
		}
	}
	return out, nil
}

func measure(ctx context.Context, e *compress.Engine, p *codec.Program, m compress.Method, rounds int) (*Result, error) {
	var (
		c        *container.Container
		enc, dec time.Duration
		unpacked *codec.Program
	)
	for i := 0; i < rounds; i++ {
		start := time.Now()
		packed, err := container.Pack(ctx, e, p, m)
		if err != nil {
			return nil, err
		}
		d := time.Since(start)
		if i == 0 || d < enc {
			enc = d
		}
		c = packed

		start = time.Now()
		if unpacked, err = container.Unpack(e, c); err != nil {
			return nil, err
		}
		d = time.Since(start)
		if i == 0 || d < dec {
			dec = d
		}
	}
	if !unpacked.Equal(p) {
		return nil, fmt.Errorf("%w: unpacked program differs", compress.ErrValidationFailed)
	}

	return &Result{
		Requested: m,
		Stored:    c.Header.Method,
		Width:     p.Width,
		Height:    p.Height,
		Original:  int(c.Header.OriginalSize),
		Container: c.Size(),
		Ratio:     c.Ratio(),
		Encode:    enc,
		Decode:    dec,
		Created:   time.Now().UTC(),
	}, nil
}

// Best returns the result with the smallest container, preferring the
// earliest on ties.
func Best(results []Result) (Result, bool) {
	if len(results) == 0 {
		return Result{}, false
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.Container < best.Container {
			best = r
		}
	}
	return best, true
}
