// Package uaerr defines the error and warning domain types shared across the
// unityasset packages.
//
// Components at the system boundary (a bad block header, a truncated
// object slice) create an [Error] directly. Intermediate layers wrap an
// underlying error as the Inner of a new [Error] carrying their own Op
// and [ErrorKind].
package uaerr

import (
	"errors"
	"strings"
)

// Error is the unityasset error domain type.
//
// Callers should inspect it with [errors.As] to recover the [Kind] and
// the operation ("Op") that produced it.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Message string
	Op      string
}

var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// New constructs an [Error]. Any of msg and inner may be empty/nil.
func New(op string, kind ErrorKind, msg string, inner error) *Error {
	return &Error{Op: op, Kind: kind, Message: msg, Inner: inner}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]")
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Inner != nil {
		b.WriteString(": ")
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is] comparisons against an [ErrorKind].
func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	if !ok {
		return false
	}
	return e.Kind == k
}

// Unwrap enables [errors.Unwrap] and [errors.As].
func (e *Error) Unwrap() error { return e.Inner }

// ErrorKind enumerates the stable error classes named in the format
// specification. Values are also used as the warning "code" when the same
// condition is downgraded to a recoverable annotation.
type ErrorKind string

// Defined error kinds.
const (
	OutOfBounds                      ErrorKind = "OUT_OF_BOUNDS"
	InvalidArgument                  ErrorKind = "INVALID_ARGUMENT"
	Utf8DecodingError                ErrorKind = "UTF8_DECODING_ERROR"
	AlignmentValidationError         ErrorKind = "ALIGNMENT_VALIDATION_ERROR"
	StringTooLong                    ErrorKind = "STRING_TOO_LONG"
	DecompressionSizeMismatch        ErrorKind = "DECOMPRESSION_SIZE_MISMATCH"
	LzmaTooShort                     ErrorKind = "LZMA_TOO_SHORT"
	LzmaInvalidProperties            ErrorKind = "LZMA_INVALID_PROPERTIES"
	LzmaSizeMismatch                 ErrorKind = "LZMA_SIZE_MISMATCH"
	Lz4DecodeError                   ErrorKind = "LZ4_DECODE_ERROR"
	CompressionInputTooLarge         ErrorKind = "COMPRESSION_INPUT_TOO_LARGE"
	UnsupportedCompression           ErrorKind = "UNITYFS_COMPRESSION_UNSUPPORTED"
	ContainerMalformed               ErrorKind = "CONTAINER_MALFORMED"
	UnsupportedSerializedFileVersion ErrorKind = "UNSUPPORTED_SERIALIZEDFILE_VERSION"
	ObjectOutOfRange                 ErrorKind = "OBJECT_OUT_OF_RANGE"
	BitSizeUnset                     ErrorKind = "BIT_SIZE_UNSET"
	MeshMissingVertexData            ErrorKind = "MESH_MISSING_VERTEX_DATA"
	NoTypeTree                       ErrorKind = "NO_TYPE_TREE"
	Cancelled                        ErrorKind = "CANCELLED"
)

func (k ErrorKind) Error() string { return string(k) }

// Warning is a recoverable condition recorded on an AssetContext rather
// than aborting a parse. It shares its Code namespace with [ErrorKind].
type Warning struct {
	Code    string
	Message string
}

// NewWarning builds a Warning from an ErrorKind and a free-form message.
func NewWarning(kind ErrorKind, msg string) Warning {
	return Warning{Code: string(kind), Message: msg}
}

// As is a convenience wrapper around [errors.As] for pulling an *Error
// out of an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
