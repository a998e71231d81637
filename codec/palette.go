package codec

import "sort"

// DefaultTolerance is the hue window, in degrees, around each canonical hue.
const DefaultTolerance = 5

// LegacyAliases are exact hues used by older example programs for MUL and
// DIV. They are only honoured by palettes built WithLegacyAliases.
var LegacyAliases = map[int]Opcode{
	300: OpMul,
	180: OpDiv,
}

// ---------------------------------------------------------------------------
// CanonicalPalette: canonical hue -> opcode matcher
// ---------------------------------------------------------------------------

// CanonicalPalette resolves hues to opcodes by nearest canonical hue within a
// wraparound-aware tolerance. It is built once and never mutated, so a single
// palette may be shared by concurrent decoders.
type CanonicalPalette struct {
	tolerance int
	aliases   map[int]Opcode
	entries   []paletteEntry // sorted by hue
}

type paletteEntry struct {
	hue int
	op  Opcode
}

// PaletteOption configures NewPalette.
type PaletteOption func(*CanonicalPalette)

// WithTolerance sets the hue tolerance in degrees. Values below zero are
// treated as zero.
func WithTolerance(deg int) PaletteOption {
	return func(p *CanonicalPalette) {
		if deg < 0 {
			deg = 0
		}
		p.tolerance = deg
	}
}

// WithLegacyAliases enables the exact-hue aliases in LegacyAliases.
func WithLegacyAliases() PaletteOption {
	return func(p *CanonicalPalette) {
		p.aliases = make(map[int]Opcode, len(LegacyAliases))
		for h, op := range LegacyAliases {
			p.aliases[h] = op
		}
	}
}

// NewPalette builds a palette from the canonical opcode table.
func NewPalette(opts ...PaletteOption) *CanonicalPalette {
	p := &CanonicalPalette{tolerance: DefaultTolerance}
	for _, opt := range opts {
		opt(p)
	}
	for _, op := range AllOpcodes() {
		p.entries = append(p.entries, paletteEntry{hue: op.CanonicalHue(), op: op})
	}
	sort.Slice(p.entries, func(i, j int) bool {
		return p.entries[i].hue < p.entries[j].hue
	})
	return p
}

var defaultPalette = NewPalette()

// DefaultPalette returns the shared palette with default tolerance and no
// legacy aliases.
func DefaultPalette() *CanonicalPalette {
	return defaultPalette
}

// Tolerance returns the hue tolerance in degrees.
func (p *CanonicalPalette) Tolerance() int {
	return p.tolerance
}

// Match returns the opcode whose canonical hue is nearest to hue, provided
// the circular distance is within tolerance and hue lies in the opcode's
// category band. Ties go to the smaller canonical hue.
func (p *CanonicalPalette) Match(hue int) (Opcode, bool) {
	hue = ((hue % 360) + 360) % 360
	if op, ok := p.aliases[hue]; ok {
		return op, true
	}

	best := -1
	bestDist := p.tolerance + 1
	for i, e := range p.entries {
		if !e.op.Info().Category.Contains(hue) {
			continue
		}
		d := HueDistance(hue, e.hue)
		// entries are sorted, so a strictly-less comparison keeps the
		// smaller canonical hue on ties
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return 0, false
	}
	return p.entries[best].op, true
}

// Residual returns the signed offset of hue from op's canonical hue, in
// (-180, 180].
func Residual(hue int, op Opcode) int {
	d := ((hue-op.CanonicalHue())%360 + 360) % 360
	if d > 180 {
		d -= 360
	}
	return d
}
