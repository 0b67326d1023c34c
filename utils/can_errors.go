package utils

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownIdentifier = errors.New("unknown identifier")
	ErrTruncatedFrame    = errors.New("truncated frame")
	ErrClosed            = errors.New("bus closed")
	ErrTimeout           = errors.New("receive timeout")
)

// DecodeError is returned when a frame cannot be turned into signals. The
// frame is dropped as a whole; nothing is partially applied.
type DecodeError struct {
	ID  uint32
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode 0x%03X: %v", e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type EncodeError struct {
	ID  uint32
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode 0x%03X: %v", e.ID, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
