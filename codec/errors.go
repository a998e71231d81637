package codec

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Codec Error Types
// ---------------------------------------------------------------------------

var (
	ErrInvalidHue      = errors.New("hue does not resolve to an opcode")
	ErrInvalidPixel    = errors.New("pixel component out of range")
	ErrEmptyProgram    = errors.New("program has no pixels")
	ErrGridMismatch    = errors.New("pixel grid does not match program dimensions")
	ErrUnrepresentable = errors.New("instruction cannot be encoded")
)

// DecodeKind classifies a DecodeError.
type DecodeKind uint8

const (
	InvalidHue DecodeKind = iota
	InvalidPixel
)

// DecodeError reports a pixel that does not decode to an instruction. It
// unwraps to ErrInvalidHue or ErrInvalidPixel.
type DecodeError struct {
	Kind  DecodeKind
	Pixel HSVPixel
	Pos   Point
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case InvalidPixel:
		return fmt.Sprintf("invalid pixel %v at %v", e.Pixel, e.Pos)
	default:
		return fmt.Sprintf("invalid hue %d at %v", e.Pixel.Hue, e.Pos)
	}
}

func (e *DecodeError) Unwrap() error {
	if e.Kind == InvalidPixel {
		return ErrInvalidPixel
	}
	return ErrInvalidHue
}
