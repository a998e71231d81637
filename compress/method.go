package compress

import (
	"context"
	"fmt"
	"strings"

	"github.com/chazu/prism/codec"
)

// ---------------------------------------------------------------------------
// Methods and flags
// ---------------------------------------------------------------------------

// Method identifies a compression strategy. The numeric values are the
// container's method byte; Auto is never stored.
type Method uint8

const (
	Auto          Method = 0
	MethodPalette Method = 1
	MethodRLE     Method = 2
	MethodHybrid  Method = 3
	MethodRaw     Method = 4
)

var methodNames = [...]string{"auto", "palette", "rle", "hybrid", "raw"}

func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return fmt.Sprintf("method(%d)", uint8(m))
}

// Valid reports whether m can appear in a container.
func (m Method) Valid() bool {
	return m >= MethodPalette && m <= MethodRaw
}

// ParseMethod parses a method name as printed by String.
func ParseMethod(s string) (Method, error) {
	for i, name := range methodNames {
		if strings.EqualFold(s, name) {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
}

// fallbackChain lists the methods tried, in order, when m is requested.
func fallbackChain(m Method) []Method {
	switch m {
	case MethodHybrid:
		return []Method{MethodHybrid, MethodRLE, MethodRaw}
	case MethodPalette:
		return []Method{MethodPalette, MethodRLE, MethodRaw}
	case MethodRLE:
		return []Method{MethodRLE, MethodRaw}
	}
	return []Method{MethodRaw}
}

// Flags are the container feature bits.
type Flags uint16

const (
	FlagDictionary Flags = 1 << 0
	FlagIntegrity  Flags = 1 << 1
	FlagEntropy    Flags = 1 << 2
	FlagTiled      Flags = 1 << 3
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagDictionary, "dictionary"},
	{FlagIntegrity, "integrity"},
	{FlagEntropy, "entropy"},
	{FlagTiled, "tiled"},
}

// Has reports whether every bit of x is set.
func (f Flags) Has(x Flags) bool {
	return f&x == x
}

func (f Flags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ---------------------------------------------------------------------------
// Encoded payloads
// ---------------------------------------------------------------------------

// DictEntry is one dictionary substitution: every ID byte in the payload
// stands for Pattern.
type DictEntry struct {
	ID      byte
	Pattern []byte
}

// Encoded is the output of one strategy: everything a container needs
// besides the program dimensions.
type Encoded struct {
	Method     Method
	Level      uint8
	Flags      Flags
	Dictionary []DictEntry
	Payload    []byte
}

// Strategy is one lossless compression method. Implementations hold only
// immutable configuration, so one value may serve concurrent callers.
type Strategy interface {
	Method() Method
	Encode(ctx context.Context, p *codec.Program) (*Encoded, error)
	Decode(enc *Encoded, width, height int) ([]codec.HSVPixel, error)
}
