package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: int64 / float64 tagged union
// ---------------------------------------------------------------------------

// Kind tags the representation held by a Value.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
)

// Value is the unit of data on the stack, in registers and in memory.
// The zero Value is the integer 0.
type Value struct {
	Kind  Kind    `cbor:"k"`
	Int   int64   `cbor:"i,omitempty"`
	Float float64 `cbor:"f,omitempty"`
}

// Int returns an integer value.
func Int(i int64) Value {
	return Value{Kind: KindInt, Int: i}
}

// Float returns a floating-point value.
func Float(f float64) Value {
	return Value{Kind: KindFloat, Float: f}
}

// IsFloat reports whether v holds a float.
func (v Value) IsFloat() bool {
	return v.Kind == KindFloat
}

// IsZero reports whether v is numerically zero.
func (v Value) IsZero() bool {
	if v.Kind == KindFloat {
		return v.Float == 0
	}
	return v.Int == 0
}

// AsFloat widens v to float64.
func (v Value) AsFloat() float64 {
	if v.Kind == KindFloat {
		return v.Float
	}
	return float64(v.Int)
}

// AsInt returns v as an integer. Floats are rejected rather than truncated:
// addresses, register numbers and counters must be exact.
func (v Value) AsInt() (int64, bool) {
	if v.Kind == KindFloat {
		return 0, false
	}
	return v.Int, true
}

// String formats ints in base 10 and floats in the shortest form that
// round-trips.
func (v Value) String() string {
	if v.Kind == KindFloat {
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	}
	return strconv.FormatInt(v.Int, 10)
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// arith applies the binary arithmetic opcode to a and b. Integer operations
// wrap on overflow; a float on either side makes the result a float.
func arith(op arithOp, a, b Value) (Value, error) {
	if a.IsFloat() || b.IsFloat() {
		x, y := a.AsFloat(), b.AsFloat()
		switch op {
		case opAdd:
			return Float(x + y), nil
		case opSub:
			return Float(x - y), nil
		case opMul:
			return Float(x * y), nil
		case opDiv:
			if y == 0 {
				return Value{}, trapf(DivisionByZero, "%s / 0", a)
			}
			return Float(x / y), nil
		case opMod:
			if y == 0 {
				return Value{}, trapf(DivisionByZero, "%s mod 0", a)
			}
			return Float(math.Mod(x, y)), nil
		default:
			return Float(math.Pow(x, y)), nil
		}
	}

	x, y := a.Int, b.Int
	switch op {
	case opAdd:
		return Int(x + y), nil
	case opSub:
		return Int(x - y), nil
	case opMul:
		return Int(x * y), nil
	case opDiv:
		if y == 0 {
			return Value{}, trapf(DivisionByZero, "%d / 0", x)
		}
		return Int(x / y), nil
	case opMod:
		if y == 0 {
			return Value{}, trapf(DivisionByZero, "%d mod 0", x)
		}
		return Int(x % y), nil
	default:
		if y < 0 {
			return Float(math.Pow(float64(x), float64(y))), nil
		}
		return Int(ipow(x, y)), nil
	}
}

type arithOp uint8

const (
	opAdd arithOp = iota
	opSub
	opMul
	opDiv
	opMod
	opPow
)

// ipow is exponentiation by squaring with wrapping overflow.
func ipow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}
