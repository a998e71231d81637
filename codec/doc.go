// Package codec maps HSV pixels to PRISM instructions and back.
//
// This package contains:
//   - the HSVPixel value type and the Program grid
//   - the closed Opcode enum and its canonical hue table
//   - CanonicalPalette, the tolerance-aware nearest-hue matcher
//   - Decode/Encode, the instruction codec
//   - image loading (RGB -> HSV) and a disassembler
package codec
