package dispatch

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnsupportedSize is returned when a length cannot be tiled evenly.
var ErrUnsupportedSize = errors.New("dispatch: unsupported input size")

// UnsupportedSizeError describes which planning stage rejected a length.
type UnsupportedSizeError struct {
	Length uint32 // Requested element count
	Stage  string // Planning stage (e.g., "workgroup", "tile", "grid")
	Reason string // Details
}

// Error implements the error interface.
func (e *UnsupportedSizeError) Error() string {
	return fmt.Sprintf("%s: length %d: %s: %s", ErrUnsupportedSize, e.Length, e.Stage, e.Reason)
}

// Unwrap returns ErrUnsupportedSize.
func (e *UnsupportedSizeError) Unwrap() error {
	return ErrUnsupportedSize
}

func unsupported(n uint32, stage, reason string) error {
	return errors.WithStack(&UnsupportedSizeError{Length: n, Stage: stage, Reason: reason})
}
