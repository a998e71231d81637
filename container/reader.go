package container

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chazu/prism/compress"
)

// ---------------------------------------------------------------------------
// Container Error Types
// ---------------------------------------------------------------------------

// Every load error is a compress.CompressionError of kind CorruptContainer
// wrapping one of these.
var (
	ErrInvalidMagic      = errors.New("invalid magic number: expected CLC1")
	ErrVersionMismatch   = errors.New("container version mismatch")
	ErrCorruptHeader     = errors.New("corrupt container header")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrIntegrityMismatch = errors.New("integrity hash mismatch")
	ErrSizeMismatch      = errors.New("declared size does not match data")
)

// maxPixels bounds width*height so that original_size fits its field.
const maxPixels = (1<<32 - 1) / 4

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse validates and decodes a serialized container. Magic, version,
// declared sizes, checksum and (if present) the integrity footer are all
// checked before the container is returned; the payload itself is only
// decoded by Unpack.
func Parse(data []byte) (*Container, error) {
	if len(data) < HeaderSize {
		return nil, compress.Corruptf("%w: %d bytes", ErrCorruptHeader, len(data))
	}
	h, err := parseHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}

	body := data
	if h.Flags.Has(compress.FlagIntegrity) {
		if len(data) < HeaderSize+IntegritySize {
			return nil, compress.Corruptf("%w: no room for integrity footer", ErrSizeMismatch)
		}
		body = data[:len(data)-IntegritySize]
	}

	off := HeaderSize
	var dict []compress.DictEntry
	if h.Flags.Has(compress.FlagDictionary) {
		if dict, off, err = parseDictionary(body, off); err != nil {
			return nil, err
		}
	}
	if got := len(body) - off; got != int(h.CompressedSize) {
		return nil, compress.Corruptf("%w: compressed_size %d, payload %d bytes", ErrSizeMismatch, h.CompressedSize, got)
	}

	if sum := checksum(body); sum != h.Checksum {
		return nil, compress.Corruptf("%w: header %#08x, computed %#08x", ErrChecksumMismatch, h.Checksum, sum)
	}

	c := &Container{Header: *h, Dictionary: dict, Payload: body[off:]}
	if h.Flags.Has(compress.FlagIntegrity) {
		var want [IntegritySize]byte
		copy(want[:], data[len(body):])
		if sha256.Sum256(body) != want {
			return nil, compress.Corruptf("%w", ErrIntegrityMismatch)
		}
		c.Integrity = &want
	}
	return c, nil
}

func parseHeader(b []byte) (*Header, error) {
	le := binary.LittleEndian
	if magic := b[offMagic : offMagic+4]; !bytes.Equal(magic, Magic[:]) {
		return nil, compress.Corruptf("%w: got %q", ErrInvalidMagic, magic)
	}
	h := &Header{
		Version:        le.Uint32(b[offVersion:]),
		Width:          le.Uint32(b[offWidth:]),
		Height:         le.Uint32(b[offHeight:]),
		Method:         compress.Method(b[offMethod]),
		Level:          b[offLevel],
		Flags:          compress.Flags(le.Uint16(b[offFlags:])),
		OriginalSize:   le.Uint32(b[offOriginalSize:]),
		CompressedSize: le.Uint32(b[offCompressedSize:]),
		Checksum:       le.Uint32(b[offChecksum:]),
	}
	if h.Version != Version {
		return nil, compress.Corruptf("%w: expected %d, got %d", ErrVersionMismatch, Version, h.Version)
	}
	if !h.Method.Valid() {
		return nil, &compress.CompressionError{Kind: compress.UnsupportedMethod, Method: h.Method}
	}
	if h.Level > compress.MaxLevel {
		return nil, compress.Corruptf("%w: level %d", ErrCorruptHeader, h.Level)
	}
	if h.Flags&^knownFlags != 0 {
		return nil, compress.Corruptf("%w: unknown flags %#04x", ErrCorruptHeader, uint16(h.Flags))
	}
	pixels := uint64(h.Width) * uint64(h.Height)
	if pixels == 0 || pixels > maxPixels {
		return nil, compress.Corruptf("%w: dimensions %dx%d", ErrCorruptHeader, h.Width, h.Height)
	}
	if uint64(h.OriginalSize) != pixels*4 {
		return nil, compress.Corruptf("%w: original_size %d for %dx%d", ErrSizeMismatch, h.OriginalSize, h.Width, h.Height)
	}
	return h, nil
}

func parseDictionary(data []byte, off int) ([]compress.DictEntry, int, error) {
	if off+4 > len(data) {
		return nil, 0, compress.Corruptf("%w: dictionary size", compress.ErrUnexpectedEOF)
	}
	size := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if size > len(data)-off {
		return nil, 0, compress.Corruptf("%w: dict_size %d exceeds data", ErrSizeMismatch, size)
	}
	end := off + size

	var dict []compress.DictEntry
	for off < end {
		if off+2 > end {
			return nil, 0, compress.Corruptf("%w: dictionary entry header", compress.ErrUnexpectedEOF)
		}
		n, id := int(data[off]), data[off+1]
		off += 2
		if off+n > end {
			return nil, 0, compress.Corruptf("%w: dictionary pattern", compress.ErrUnexpectedEOF)
		}
		dict = append(dict, compress.DictEntry{ID: id, Pattern: data[off : off+n]})
		off += n
	}
	if len(dict) == 0 {
		return nil, 0, compress.Corruptf("%w: dictionary flag set with no entries", ErrCorruptHeader)
	}
	return dict, off, nil
}

// ---------------------------------------------------------------------------
// Readers
// ---------------------------------------------------------------------------

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Container) UnmarshalBinary(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}

// Read parses a container from r.
func Read(r io.Reader) (*Container, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read container: %w", err)
	}
	return Parse(data)
}

// ReadFile parses the container at path.
func ReadFile(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open container file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
