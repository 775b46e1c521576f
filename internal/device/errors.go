package device

import (
	"fmt"

	"github.com/pkg/errors"
)

// Common errors.
var (
	ErrDeviceUnavailable  = errors.New("device: no compute device available")
	ErrResourceAllocation = errors.New("device: resource allocation failed")
	ErrInvalidUsage       = errors.New("device: invalid buffer usage")
	ErrReleased           = errors.New("device: use of released resource")
)

// AllocationError describes a buffer or pipeline that could not be created.
type AllocationError struct {
	Resource string // "buffer" or "pipeline"
	Label    string // Buffer label or kernel description
	Size     uint64 // Requested bytes (buffers only)
	Err      error  // Underlying cause, if any
}

// Error implements the error interface.
func (e *AllocationError) Error() string {
	msg := fmt.Sprintf("%s: %s %q", ErrResourceAllocation, e.Resource, e.Label)
	if e.Size > 0 {
		msg += fmt.Sprintf(" (%d bytes)", e.Size)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns ErrResourceAllocation.
func (e *AllocationError) Unwrap() error {
	return ErrResourceAllocation
}

// Cause returns the underlying failure.
func (e *AllocationError) Cause() error {
	return e.Err
}

// BufferAllocationError builds an *AllocationError for a buffer.
func BufferAllocationError(label string, size uint64, cause error) error {
	return errors.WithStack(&AllocationError{Resource: "buffer", Label: label, Size: size, Err: cause})
}

// PipelineAllocationError builds an *AllocationError for a pipeline.
func PipelineAllocationError(k Kernel, cause error) error {
	return errors.WithStack(&AllocationError{Resource: "pipeline", Label: k.String(), Err: cause})
}

// Unavailable wraps a backend failure as ErrDeviceUnavailable.
func Unavailable(backend string, cause error) error {
	if cause == nil {
		return errors.Wrap(ErrDeviceUnavailable, backend)
	}
	return errors.Wrapf(ErrDeviceUnavailable, "%s: %v", backend, cause)
}
