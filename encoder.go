package hxcaptcha

import (
	"errors"

	"github.com/pthm/hxcaptcha/lib/encoding"
)

// Encoder is an alias for encoding.Encoder for convenience.
type Encoder = encoding.Encoder

// NewEncoder creates a new encoder with the given key.
func NewEncoder(key []byte) (*Encoder, error) {
	return encoding.NewEncoder(key)
}

// wrapEncodingError maps encoding errors onto the package sentinels.
func wrapEncodingError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, encoding.ErrInvalidFormat):
		return ErrInvalidFormat
	case errors.Is(err, encoding.ErrSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, encoding.ErrDecryptFailed):
		return ErrDecryptFailed
	}
	return err
}
