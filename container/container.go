// Package container reads and writes .clc files: a fixed 32-byte header, an
// optional dictionary section, the compressed payload and an optional
// SHA-256 integrity footer.
//
// Layout (all integers little-endian):
//
//	magic "CLC1" | version u32 | width u32 | height u32 |
//	method u8 | level u8 | flags u16 |
//	original_size u32 | compressed_size u32 | checksum u32
//	[dict_size u32 | (pattern_len u8, id u8, pattern)*]   if flags&dictionary
//	payload (compressed_size bytes)
//	[sha256 (32 bytes)]                                  if flags&integrity
//
// The checksum is the low 32 bits of the xxh3 hash of the header (with the
// checksum field zeroed), the dictionary section and the payload. The
// footer hashes the same bytes with the checksum in place.
package container

import (
	"context"
	"crypto/sha256"

	"github.com/tliron/commonlog"

	"github.com/chazu/prism/codec"
	"github.com/chazu/prism/compress"
)

var log = commonlog.GetLogger("prism.container")

// ---------------------------------------------------------------------------
// Format constants
// ---------------------------------------------------------------------------

// Magic identifies a container.
var Magic = [4]byte{'C', 'L', 'C', '1'}

// Version is the only container version written and accepted.
const Version uint32 = 1

// HeaderSize is the fixed header length in bytes.
const HeaderSize = 32

// IntegritySize is the length of the optional footer.
const IntegritySize = sha256.Size

// Header field offsets.
const (
	offMagic          = 0
	offVersion        = 4
	offWidth          = 8
	offHeight         = 12
	offMethod         = 16
	offLevel          = 17
	offFlags          = 18
	offOriginalSize   = 20
	offCompressedSize = 24
	offChecksum       = 28
)

// knownFlags are the flag bits this version understands.
const knownFlags = compress.FlagDictionary | compress.FlagIntegrity |
	compress.FlagEntropy | compress.FlagTiled

// ---------------------------------------------------------------------------
// Container
// ---------------------------------------------------------------------------

// Header is the decoded fixed header.
type Header struct {
	Version        uint32
	Width          uint32
	Height         uint32
	Method         compress.Method
	Level          uint8
	Flags          compress.Flags
	OriginalSize   uint32
	CompressedSize uint32
	Checksum       uint32
}

// Container is one compressed program with its metadata. Values returned by
// Parse have been fully validated.
type Container struct {
	Header     Header
	Dictionary []compress.DictEntry
	Payload    []byte
	Integrity  *[IntegritySize]byte
}

// Option configures New and Pack.
type Option func(*options)

type options struct {
	integrity bool
}

// WithIntegrity appends a SHA-256 footer.
func WithIntegrity() Option {
	return func(o *options) { o.integrity = true }
}

// New wraps enc for a width x height program. The checksum and footer are
// filled in by Marshal.
func New(enc *compress.Encoded, width, height int, opts ...Option) *Container {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	flags := enc.Flags &^ compress.FlagIntegrity
	if o.integrity {
		flags |= compress.FlagIntegrity
	}
	if len(enc.Dictionary) > 0 {
		flags |= compress.FlagDictionary
	} else {
		flags &^= compress.FlagDictionary
	}
	return &Container{
		Header: Header{
			Version:        Version,
			Width:          uint32(width),
			Height:         uint32(height),
			Method:         enc.Method,
			Level:          enc.Level,
			Flags:          flags,
			OriginalSize:   uint32(compress.OriginalSize(width * height)),
			CompressedSize: uint32(len(enc.Payload)),
		},
		Dictionary: enc.Dictionary,
		Payload:    enc.Payload,
	}
}

// Encoded returns the compression output carried by c.
func (c *Container) Encoded() *compress.Encoded {
	return &compress.Encoded{
		Method:     c.Header.Method,
		Level:      c.Header.Level,
		Flags:      c.Header.Flags,
		Dictionary: c.Dictionary,
		Payload:    c.Payload,
	}
}

// Size returns the serialized length of c.
func (c *Container) Size() int {
	n := HeaderSize + len(c.Payload)
	if c.Header.Flags.Has(compress.FlagDictionary) {
		n += dictSectionSize(c.Dictionary)
	}
	if c.Header.Flags.Has(compress.FlagIntegrity) {
		n += IntegritySize
	}
	return n
}

// Ratio returns serialized size over original size.
func (c *Container) Ratio() float64 {
	if c.Header.OriginalSize == 0 {
		return 0
	}
	return float64(c.Size()) / float64(c.Header.OriginalSize)
}

// ---------------------------------------------------------------------------
// Program round trip
// ---------------------------------------------------------------------------

// Pack compresses p with e and wraps the result.
func Pack(ctx context.Context, e *compress.Engine, p *codec.Program, m compress.Method, opts ...Option) (*Container, error) {
	enc, err := e.Compress(ctx, p, m)
	if err != nil {
		return nil, err
	}
	c := New(enc, p.Width, p.Height, opts...)
	log.Debugf("packed %dx%d program with %s: %d -> %d bytes",
		p.Width, p.Height, c.Header.Method, c.Header.OriginalSize, c.Size())
	return c, nil
}

// Unpack decompresses c with e.
func Unpack(e *compress.Engine, c *Container) (*codec.Program, error) {
	return e.Decompress(c.Encoded(), int(c.Header.Width), int(c.Header.Height))
}
