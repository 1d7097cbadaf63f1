package typedkv

import (
	"errors"

	"github.com/khicago/typedkv/codec"
)

var (
	ErrInvalidConfiguration = errors.New("typedkv: invalid configuration")
	ErrUnsupportedOperation = errors.New("typedkv: unsupported operation")
	ErrNotConnected         = errors.New("typedkv: not connected")
	ErrAlreadyConnected     = errors.New("typedkv: already connected")
	ErrBackendUnavailable   = errors.New("typedkv: backend unavailable")
	ErrNotFound             = errors.New("typedkv: not found")
	ErrTxAborted            = errors.New("typedkv: transaction not committed")
	ErrClearIncomplete      = errors.New("typedkv: clear did not complete")
)

// Codec failures, re-exported so callers need not import the codec package to
// match them.
var (
	ErrUnsupportedType = codec.ErrUnsupportedType
	ErrUnknownVariant  = codec.ErrUnknownVariant
	ErrMalformedKey    = codec.ErrMalformedKey
)
