package compress

import (
	"encoding/binary"
	"errors"

	"github.com/klauspost/compress/huff0"
)

// ---------------------------------------------------------------------------
// Entropy packing (huff0)
// ---------------------------------------------------------------------------

// Block modes of an entropy-packed stream. Each block is
// mode u8 | raw_len u32 | enc_len u32 | enc bytes.
const (
	blockStored  = 0
	blockHuffman = 1
	blockRepeat  = 2 // one byte repeated raw_len times
)

const blockHeaderSize = 9

// entropyPack Huffman-codes s in blocks of at most huff0.BlockSizeMax bytes.
// packed is false, and s is returned unchanged, when no block shrank.
func entropyPack(s []byte) (out []byte, packed bool, err error) {
	for off := 0; off < len(s); off += huff0.BlockSizeMax {
		chunk := s[off:min(off+huff0.BlockSizeMax, len(s))]

		var sc huff0.Scratch
		enc, _, err := huff0.Compress1X(chunk, &sc)
		mode := byte(blockHuffman)
		switch {
		case errors.Is(err, huff0.ErrUseRLE):
			mode, enc = blockRepeat, chunk[:1]
		case errors.Is(err, huff0.ErrIncompressible):
			mode, enc = blockStored, chunk
		case err != nil:
			return nil, false, err
		case len(enc) >= len(chunk):
			mode, enc = blockStored, chunk
		}
		if mode != blockStored {
			packed = true
		}
		out = append(out, mode)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(chunk)))
		out = binary.LittleEndian.AppendUint32(out, uint32(len(enc)))
		out = append(out, enc...)
	}
	if !packed {
		return s, false, nil
	}
	return out, true, nil
}

// entropyUnpack reverses entropyPack. limit bounds the total output.
func entropyUnpack(payload []byte, limit int) ([]byte, error) {
	var out []byte
	r := &reader{data: payload}
	for r.remaining() > 0 {
		if r.remaining() < blockHeaderSize {
			return nil, ErrUnexpectedEOF
		}
		mode, _ := r.u8()
		rawLen, _ := r.u32()
		encLen, _ := r.u32()
		data, err := r.bytes(int(encLen))
		if err != nil {
			return nil, err
		}
		if int(rawLen) > huff0.BlockSizeMax || len(out)+int(rawLen) > limit {
			return nil, Corruptf("entropy block of %d bytes exceeds limits", rawLen)
		}

		switch mode {
		case blockStored:
			if encLen != rawLen {
				return nil, Corruptf("stored block %d != %d bytes", encLen, rawLen)
			}
			out = append(out, data...)
		case blockRepeat:
			if encLen != 1 {
				return nil, Corruptf("repeat block carries %d bytes", encLen)
			}
			for i := uint32(0); i < rawLen; i++ {
				out = append(out, data[0])
			}
		case blockHuffman:
			sc, rest, err := huff0.ReadTable(data, nil)
			if err != nil {
				return nil, Corruptf("huffman table: %v", err)
			}
			sc.MaxDecodedSize = int(rawLen)
			dec, err := sc.Decompress1X(rest)
			if err != nil {
				return nil, Corruptf("huffman block: %v", err)
			}
			if len(dec) != int(rawLen) {
				return nil, Corruptf("huffman block decoded to %d of %d bytes", len(dec), rawLen)
			}
			out = append(out, dec...)
		default:
			return nil, Corruptf("entropy block mode %d", mode)
		}
	}
	return out, nil
}
