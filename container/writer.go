package container

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"

	"github.com/chazu/prism/compress"
)

// ---------------------------------------------------------------------------
// Header writing
// ---------------------------------------------------------------------------

// appendHeader writes h with the checksum field zeroed; Marshal patches it.
func appendHeader(dst []byte, h *Header) []byte {
	le := binary.LittleEndian
	dst = append(dst, Magic[:]...)
	dst = le.AppendUint32(dst, h.Version)
	dst = le.AppendUint32(dst, h.Width)
	dst = le.AppendUint32(dst, h.Height)
	dst = append(dst, byte(h.Method), h.Level)
	dst = le.AppendUint16(dst, uint16(h.Flags))
	dst = le.AppendUint32(dst, h.OriginalSize)
	dst = le.AppendUint32(dst, h.CompressedSize)
	return le.AppendUint32(dst, 0)
}

func dictSectionSize(dict []compress.DictEntry) int {
	n := 4
	for _, e := range dict {
		n += 2 + len(e.Pattern)
	}
	return n
}

// appendDictionary writes dict_size (bytes of entries that follow) and the
// entries.
func appendDictionary(dst []byte, dict []compress.DictEntry) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(dictSectionSize(dict)-4))
	for _, e := range dict {
		dst = append(dst, byte(len(e.Pattern)), e.ID)
		dst = append(dst, e.Pattern...)
	}
	return dst
}

// checksum is the low 32 bits of xxh3 over data with the header checksum
// field treated as zero.
func checksum(data []byte) uint32 {
	h := xxh3.New()
	h.Write(data[:offChecksum])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(data[HeaderSize:])
	return uint32(h.Sum64())
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal serializes c, computing the checksum and, when the integrity flag
// is set, the footer. c.Header.Checksum and c.Integrity are updated.
func (c *Container) Marshal() ([]byte, error) {
	h := &c.Header
	if !h.Method.Valid() {
		return nil, &compress.CompressionError{Kind: compress.UnsupportedMethod, Method: h.Method}
	}
	if int(h.CompressedSize) != len(c.Payload) {
		return nil, fmt.Errorf("container: compressed size %d, payload %d bytes", h.CompressedSize, len(c.Payload))
	}
	if len(c.Dictionary) > 0 != h.Flags.Has(compress.FlagDictionary) {
		return nil, fmt.Errorf("container: dictionary flag does not match %d entries", len(c.Dictionary))
	}
	for _, e := range c.Dictionary {
		if len(e.Pattern) > 255 {
			return nil, fmt.Errorf("container: dictionary pattern of %d bytes", len(e.Pattern))
		}
	}

	buf := make([]byte, 0, c.Size())
	buf = appendHeader(buf, h)
	if h.Flags.Has(compress.FlagDictionary) {
		buf = appendDictionary(buf, c.Dictionary)
	}
	buf = append(buf, c.Payload...)

	h.Checksum = checksum(buf)
	binary.LittleEndian.PutUint32(buf[offChecksum:], h.Checksum)

	if h.Flags.Has(compress.FlagIntegrity) {
		sum := sha256.Sum256(buf)
		c.Integrity = &sum
		buf = append(buf, sum[:]...)
	} else {
		c.Integrity = nil
	}
	return buf, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c *Container) MarshalBinary() ([]byte, error) {
	return c.Marshal()
}

// WriteTo writes the serialized container to w.
func (c *Container) WriteTo(w io.Writer) (int64, error) {
	data, err := c.Marshal()
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, bytes.NewReader(data))
	return n, err
}

// WriteFile writes c to path.
func WriteFile(path string, c *Container) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write container: %w", err)
	}
	log.Infof("wrote %s (%d bytes)", path, len(data))
	return nil
}
