// Package compress implements lossless compression of PRISM programs:
// palette reduction, run-length encoding, a hybrid pipeline with dictionary
// substitution and huff0 entropy packing, and raw storage.
//
// Every result is decoded again and compared with the input before it is
// accepted; a strategy whose output does not round-trip is replaced by the
// next one in the fallback chain (hybrid, RLE, raw).
package compress

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/tliron/commonlog"

	"github.com/chazu/prism/codec"
)

var log = commonlog.GetLogger("prism.compress")

// Compression levels.
const (
	MinLevel     = 0
	DefaultLevel = 6
	MaxLevel     = 9
)

// Adaptive selection thresholds.
const (
	rleMaxDiversity     = 0.1
	rleMinRepetition    = 0.5
	paletteMaxDiversity = 0.5
	paletteMaxPixels    = 4096
)

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Engine compresses and decompresses programs. It holds only immutable
// configuration and may be shared between goroutines.
type Engine struct {
	palette    *codec.CanonicalPalette
	level      uint8
	tileRows   int
	strategies map[Method]Strategy
	overrides  []Strategy
}

// Option configures New.
type Option func(*Engine)

// WithPalette sets the palette used to map table entries to opcodes.
func WithPalette(p *codec.CanonicalPalette) Option {
	return func(e *Engine) { e.palette = p }
}

// WithLevel sets the compression level, clamped to MinLevel..MaxLevel.
// Level 0 disables the dictionary and entropy passes.
func WithLevel(level int) Option {
	return func(e *Engine) {
		e.level = uint8(max(MinLevel, min(level, MaxLevel)))
	}
}

// WithTileRows sets the band height for concurrent encoding. Zero or less
// disables banding.
func WithTileRows(rows int) Option {
	return func(e *Engine) { e.tileRows = rows }
}

// WithStrategy replaces the built-in strategy for s.Method().
func WithStrategy(s Strategy) Option {
	return func(e *Engine) { e.overrides = append(e.overrides, s) }
}

// New returns an engine with the built-in strategies.
func New(opts ...Option) *Engine {
	e := &Engine{
		palette:  codec.DefaultPalette(),
		level:    DefaultLevel,
		tileRows: DefaultTileRows,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.strategies = map[Method]Strategy{
		MethodPalette: paletteStrategy{palette: e.palette, tileRows: e.tileRows},
		MethodRLE:     rleStrategy{tileRows: e.tileRows},
		MethodHybrid:  hybridStrategy{palette: e.palette, level: e.level, tileRows: e.tileRows},
		MethodRaw:     rawStrategy{},
	}
	for _, s := range e.overrides {
		e.strategies[s.Method()] = s
	}
	return e
}

// Level returns the configured compression level.
func (e *Engine) Level() int {
	return int(e.level)
}

// ---------------------------------------------------------------------------
// Adaptive selection
// ---------------------------------------------------------------------------

// Stats describes a program for adaptive selection.
type Stats struct {
	Pixels     int
	Distinct   int
	Runs       int
	Diversity  float64 // distinct / pixels
	Repetition float64 // 1 - runs / pixels
}

// Analyze computes Stats for p.
func Analyze(p *codec.Program) Stats {
	s := Stats{Pixels: len(p.Pixels)}
	if s.Pixels == 0 {
		return s
	}
	seen := make(map[codec.HSVPixel]struct{})
	for i, px := range p.Pixels {
		seen[px] = struct{}{}
		if i == 0 || px != p.Pixels[i-1] {
			s.Runs++
		}
	}
	s.Distinct = len(seen)
	s.Diversity = float64(s.Distinct) / float64(s.Pixels)
	s.Repetition = 1 - float64(s.Runs)/float64(s.Pixels)
	return s
}

// Select picks a method from p's statistics: RLE for few colours in long
// runs, palette for small programs with few colours, hybrid otherwise.
func (e *Engine) Select(p *codec.Program) Method {
	s := Analyze(p)
	switch {
	case s.Diversity <= rleMaxDiversity && s.Repetition >= rleMinRepetition:
		return MethodRLE
	case s.Diversity <= paletteMaxDiversity && s.Pixels <= paletteMaxPixels:
		return MethodPalette
	}
	return MethodHybrid
}

// ---------------------------------------------------------------------------
// Compress / Decompress
// ---------------------------------------------------------------------------

// Compress encodes p with method m, or with the adaptively selected method
// when m is Auto. The result has been verified to decode back to p. If the
// requested method fails, the next method of its fallback chain is tried;
// an error is returned only when raw storage fails too.
func (e *Engine) Compress(ctx context.Context, p *codec.Program, m Method) (*Encoded, error) {
	if p == nil || len(p.Pixels) == 0 {
		return nil, codec.ErrEmptyProgram
	}
	if m == Auto {
		m = e.Select(p)
		log.Debugf("adaptive selection: %s", m)
	}
	if !m.Valid() {
		return nil, &CompressionError{Kind: UnsupportedMethod, Method: m}
	}

	var errs []error
	for _, cand := range fallbackChain(m) {
		enc, err := e.attempt(ctx, p, cand)
		if err == nil {
			return enc, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warningf("%s compression rejected, falling back: %v", cand, err)
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

func (e *Engine) attempt(ctx context.Context, p *codec.Program, m Method) (*Encoded, error) {
	s, ok := e.strategies[m]
	if !ok {
		return nil, &CompressionError{Kind: UnsupportedMethod, Method: m}
	}
	enc, err := s.Encode(ctx, p)
	if err != nil {
		return nil, &CompressionError{Kind: ValidationFailed, Method: m, Err: err}
	}
	enc.Method = m
	enc.Level = e.level

	got, err := s.Decode(enc, p.Width, p.Height)
	if err != nil {
		return nil, &CompressionError{Kind: ValidationFailed, Method: m, Err: err}
	}
	if !slices.Equal(got, p.Pixels) {
		return nil, &CompressionError{Kind: ValidationFailed, Method: m,
			Err: fmt.Errorf("round trip differs from input")}
	}
	return enc, nil
}

// Decompress decodes enc into a width x height program.
func (e *Engine) Decompress(enc *Encoded, width, height int) (*codec.Program, error) {
	if !enc.Method.Valid() {
		return nil, &CompressionError{Kind: UnsupportedMethod, Method: enc.Method}
	}
	if width <= 0 || height <= 0 {
		return nil, Corruptf("dimensions %dx%d", width, height)
	}
	s := e.strategies[enc.Method]
	pixels, err := s.Decode(enc, width, height)
	if err != nil {
		return nil, asCorrupt(enc.Method, err)
	}
	return codec.NewProgram(width, height, pixels)
}

// Ratio returns compressed/original size for a program of n pixels.
func Ratio(enc *Encoded, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(len(enc.Payload)) / float64(n*pixelSize)
}

// OriginalSize is the raw size in bytes of an n-pixel program.
func OriginalSize(n int) int {
	return n * pixelSize
}
