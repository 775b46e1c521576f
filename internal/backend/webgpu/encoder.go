//go:build windows

package webgpu

import (
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/born-ml/reducebench/internal/device"
)

// encoder records compute passes and copies into one wgpu command encoder.
// Each Dispatch is its own compute pass, so passes of a submission run in
// recording order. Validation failures are deferred to Finish.
type encoder struct {
	session    *Session
	raw        *wgpu.CommandEncoder
	bindGroups []*wgpu.BindGroup
	err        error
	finished   bool
}

// commandBuffer is a finished recording plus the bind groups it references.
type commandBuffer struct {
	session    *Session
	raw        *wgpu.CommandBuffer
	bindGroups []*wgpu.BindGroup
	submitted  bool
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// Dispatch records a compute pass of gridX*gridY workgroups.
func (e *encoder) Dispatch(p device.Pipeline, gridX, gridY uint32, bindings ...device.Buffer) {
	if e.finished {
		e.fail(errors.Wrap(device.ErrInvalidUsage, "dispatch on finished encoder"))
		return
	}
	pl, ok := p.(*pipeline)
	if !ok || pl == nil || pl.session != e.session {
		e.fail(errors.Wrapf(device.ErrInvalidUsage, "dispatch: pipeline %T does not belong to this device", p))
		return
	}
	if pl.raw == nil {
		e.fail(errors.Wrapf(device.ErrReleased, "dispatch %s: pipeline evicted", pl.kernel))
		return
	}
	limit := e.session.cfg.Limits.MaxDispatchPerAxis
	if gridX == 0 || gridY == 0 || gridX > limit || gridY > limit {
		e.fail(errors.Wrapf(device.ErrInvalidUsage, "dispatch %s: grid %dx%d outside [1, %d]", pl.kernel, gridX, gridY, limit))
		return
	}
	if want := pl.bindingCount(); len(bindings) != want {
		e.fail(errors.Wrapf(device.ErrInvalidUsage, "dispatch %s: %d bindings, want %d", pl.kernel, len(bindings), want))
		return
	}

	entries := make([]wgpu.BindGroupEntry, len(bindings))
	for i, b := range bindings {
		buf, err := e.session.own(b)
		if err != nil {
			e.fail(errors.Wrapf(err, "dispatch %s binding %d", pl.kernel, i))
			return
		}
		if !buf.usage.Has(device.UsageStorage) {
			e.fail(errors.Wrapf(device.ErrInvalidUsage, "dispatch %s: binding %d %q lacks STORAGE (%s)", pl.kernel, i, buf.label, buf.usage))
			return
		}
		//nolint:gosec // G115: binding index is 0 or 1.
		entries[i] = wgpu.BufferBindingEntry(uint32(i), buf.raw, 0, buf.size)
	}

	bindGroup := e.session.device.CreateBindGroupSimple(pl.layout, entries)
	e.bindGroups = append(e.bindGroups, bindGroup)

	computePass := e.raw.BeginComputePass(nil)
	computePass.SetPipeline(pl.raw)
	computePass.SetBindGroup(0, bindGroup, nil)
	computePass.DispatchWorkgroups(gridX, gridY, 1)
	computePass.End()
}

// CopyBufferToBuffer records a copy of size bytes.
func (e *encoder) CopyBufferToBuffer(src device.Buffer, srcOffset uint64, dst device.Buffer, dstOffset, size uint64) {
	if e.finished {
		e.fail(errors.Wrap(device.ErrInvalidUsage, "copy on finished encoder"))
		return
	}
	s, err := e.session.own(src)
	if err != nil {
		e.fail(errors.Wrap(err, "copy source"))
		return
	}
	d, err := e.session.own(dst)
	if err != nil {
		e.fail(errors.Wrap(err, "copy destination"))
		return
	}
	switch {
	case !s.usage.Has(device.UsageCopySrc):
		err = errors.Wrapf(device.ErrInvalidUsage, "copy: source %q lacks COPY_SRC (%s)", s.label, s.usage)
	case !d.usage.Has(device.UsageCopyDst):
		err = errors.Wrapf(device.ErrInvalidUsage, "copy: destination %q lacks COPY_DST (%s)", d.label, d.usage)
	case srcOffset+size > s.size || dstOffset+size > d.size:
		err = errors.Wrapf(device.ErrInvalidUsage, "copy: %d bytes overruns %q or %q", size, s.label, d.label)
	}
	if err != nil {
		e.fail(err)
		return
	}
	e.raw.CopyBufferToBuffer(s.raw, srcOffset, d.raw, dstOffset, size)
}

// Finish ends the recording. On failure the recorded bind groups are
// released and nothing can be submitted.
func (e *encoder) Finish() (device.CommandBuffer, error) {
	if e.finished {
		return nil, errors.Wrap(device.ErrInvalidUsage, "encoder finished twice")
	}
	e.finished = true
	if e.err != nil {
		for _, bg := range e.bindGroups {
			bg.Release()
		}
		return nil, e.err
	}
	return &commandBuffer{session: e.session, raw: e.raw.Finish(nil), bindGroups: e.bindGroups}, nil
}
