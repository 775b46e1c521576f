//go:build !windows

package webgpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/reducebench/internal/device"
)

var errUnsupportedPlatform = errors.New("the WebGPU backend is only built on windows")

// New reports device.ErrDeviceUnavailable on this platform.
func New(Config) (device.Session, error) {
	return nil, device.Unavailable("webgpu", errUnsupportedPlatform)
}

// IsAvailable reports false on this platform.
func IsAvailable() bool {
	return false
}

// ListAdapters reports device.ErrDeviceUnavailable on this platform.
func ListAdapters() ([]device.AdapterInfo, error) {
	return nil, device.Unavailable("webgpu", errUnsupportedPlatform)
}
