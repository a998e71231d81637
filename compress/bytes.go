package compress

import (
	"encoding/binary"

	"github.com/chazu/prism/codec"
)

// pixelSize is the verbatim encoding of one pixel: hue u16, sat u8, val u8.
const pixelSize = 4

func appendPixel(dst []byte, p codec.HSVPixel) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, p.Hue)
	return append(dst, p.Sat, p.Val)
}

// reader walks a payload with bounds checks; every short read is
// ErrUnexpectedEOF.
type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) u8() (uint8, error) {
	if r.off+1 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := r.data[r.off]
	r.off++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if r.off+2 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.off+4 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, ErrUnexpectedEOF
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) pixel() (codec.HSVPixel, error) {
	if r.off+pixelSize > len(r.data) {
		return codec.HSVPixel{}, ErrUnexpectedEOF
	}
	p := codec.HSVPixel{
		Hue: binary.LittleEndian.Uint16(r.data[r.off:]),
		Sat: r.data[r.off+2],
		Val: r.data[r.off+3],
	}
	r.off += pixelSize
	return p, nil
}

// index reads a palette index of the given byte width.
func (r *reader) index(width int) (int, error) {
	if width == 1 {
		v, err := r.u8()
		return int(v), err
	}
	v, err := r.u16()
	return int(v), err
}

func appendIndex(dst []byte, idx, width int) []byte {
	if width == 1 {
		return append(dst, byte(idx))
	}
	return binary.LittleEndian.AppendUint16(dst, uint16(idx))
}
