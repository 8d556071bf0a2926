package savex

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// Stream errors
	ErrMalformedStream = errors.New("malformed stream")

	// Type errors
	ErrUnsupportedType  = errors.New("unsupported type")
	ErrUnsupportedShape = errors.New("unsupported array shape")
	ErrInvalidTag       = errors.New("invalid field tag")
	ErrValueOutOfRange  = errors.New("value out of range")
	ErrNilPointer       = errors.New("nil pointer encountered")

	// Configuration and crypto errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrEncryptionFailed     = errors.New("encryption failed")
	ErrDecryptionFailed     = errors.New("decryption failed")

	// Key service errors, returned by providers
	ErrKeyServiceUnavailable = errors.New("key service unavailable")
)

// Action names the direction of the transfer an error happened in.
type Action int8

const (
	Unknown Action = iota
	Encode
	Decode
	Inspect
)

func (a Action) String() string {
	switch a {
	case Encode:
		return "encode"
	case Decode:
		return "decode"
	case Inspect:
		return "inspect"
	default:
		return "unknown"
	}
}

func NewMalformedStreamError(what string, details string) error {
	if details != "" {
		return fmt.Errorf("%w: reading %s: %s", ErrMalformedStream, what, details)
	}
	return fmt.Errorf("%w: reading %s", ErrMalformedStream, what)
}

func NewNegativeCountError(what string, count int32) error {
	return fmt.Errorf("%w: reading %s: negative count %d", ErrMalformedStream, what, count)
}

// NewUnsupportedTypeError reports a type with no codec. Unknown leaves the
// operation out of the message; field tables are shared by every direction.
func NewUnsupportedTypeError(t reflect.Type, action Action) error {
	if action == Unknown {
		return fmt.Errorf("%w: %s has no codec", ErrUnsupportedType, typeName(t))
	}
	return fmt.Errorf("%w: %s has no codec for %s operation", ErrUnsupportedType, typeName(t), action)
}

func NewUnsupportedShapeError(t reflect.Type, action Action) error {
	if action == Unknown {
		return fmt.Errorf("%w: %s is not a one-dimensional array", ErrUnsupportedShape, typeName(t))
	}
	return fmt.Errorf("%w: %s is not a one-dimensional array, cannot %s it", ErrUnsupportedShape, typeName(t), action)
}

func NewInvalidTagError(t reflect.Type, fieldName string, tag string, details string) error {
	return fmt.Errorf("%w: field '%s' of %s has tag %q: %s", ErrInvalidTag, fieldName, typeName(t), tag, details)
}

func NewNilPointerError(t reflect.Type, action Action) error {
	return fmt.Errorf("%w: %s is nil and cannot be processed for %s operation", ErrNilPointer, typeName(t), action)
}

func NewValueOutOfRangeError(what string, details string) error {
	return fmt.Errorf("%w: %s: %s", ErrValueOutOfRange, what, details)
}

func NewConfigurationError(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, what)
	}
	return fmt.Errorf("%w: %s: %w", ErrInvalidConfiguration, what, err)
}

func NewEncryptionError(what string, err error) error {
	return fmt.Errorf("%w: sealing %s: %w", ErrEncryptionFailed, what, err)
}

func NewDecryptionError(what string, err error) error {
	return fmt.Errorf("%w: opening %s: %w", ErrDecryptionFailed, what, err)
}

// fieldError prefixes err with the composite type and field it happened in,
// keeping the sentinel reachable through errors.Is.
func fieldError(t reflect.Type, fieldName string, err error) error {
	return fmt.Errorf("%s.%s: %w", typeName(t), fieldName, err)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// IsStreamError returns true if the error means the byte source did not hold
// a valid encoding.
func IsStreamError(err error) bool {
	return errors.Is(err, ErrMalformedStream)
}

// IsTypeError returns true if the error comes from a type that cannot be
// (de)serialized or is declared incorrectly.
func IsTypeError(err error) bool {
	return errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrUnsupportedShape) ||
		errors.Is(err, ErrInvalidTag)
}

// IsValidationError returns true if the error represents a value that cannot
// be encoded.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrNilPointer)
}

// IsCryptoError returns true if the error represents a failure while sealing
// or opening an encrypted composite, or while reaching the key service.
func IsCryptoError(err error) bool {
	return errors.Is(err, ErrEncryptionFailed) ||
		errors.Is(err, ErrDecryptionFailed) ||
		errors.Is(err, ErrKeyServiceUnavailable)
}

// IsConfigurationError returns true if the error represents a configuration problem.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}
