package compress

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Compression error types
// ---------------------------------------------------------------------------

// ErrorKind classifies a CompressionError.
type ErrorKind uint8

const (
	ValidationFailed ErrorKind = iota + 1
	UnsupportedMethod
	CorruptContainer
)

var (
	ErrValidationFailed  = errors.New("validation failed")
	ErrUnsupportedMethod = errors.New("unsupported method")
	ErrCorruptContainer  = errors.New("corrupt container")
	ErrUnexpectedEOF     = errors.New("unexpected end of payload")
	ErrTooManyColors     = errors.New("too many distinct pixels for a palette")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case ValidationFailed:
		return ErrValidationFailed
	case UnsupportedMethod:
		return ErrUnsupportedMethod
	case CorruptContainer:
		return ErrCorruptContainer
	}
	return fmt.Errorf("compression error kind %d", uint8(k))
}

func (k ErrorKind) String() string {
	return k.sentinel().Error()
}

// CompressionError reports a failed compression attempt or a container or
// payload that cannot be decoded. errors.Is matches both the kind sentinel
// (ErrCorruptContainer, ...) and the underlying cause.
type CompressionError struct {
	Kind   ErrorKind
	Method Method
	Err    error
}

func (e *CompressionError) Error() string {
	msg := "compress: " + e.Kind.String()
	if e.Method != Auto {
		msg += " (" + e.Method.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CompressionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// Corruptf returns a CorruptContainer error.
func Corruptf(format string, args ...any) error {
	return &CompressionError{Kind: CorruptContainer, Err: fmt.Errorf(format, args...)}
}

// asCorrupt tags err as CorruptContainer for method m unless it already is
// a CompressionError.
func asCorrupt(m Method, err error) error {
	var ce *CompressionError
	if errors.As(err, &ce) {
		if ce.Method == Auto {
			ce.Method = m
		}
		return ce
	}
	return &CompressionError{Kind: CorruptContainer, Method: m, Err: err}
}
