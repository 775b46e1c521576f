package emulator

import (
	"github.com/pkg/errors"

	"github.com/born-ml/reducebench/internal/device"
)

type opKind int

const (
	opDispatch opKind = iota
	opCopy
)

// op is one recorded command.
type op struct {
	kind opKind

	// Dispatch.
	pipeline     *pipeline
	gridX, gridY uint32
	bindings     []*buffer

	// Copy.
	src, dst       *buffer
	srcOff, dstOff uint64
	size           uint64
}

// encoder records commands. Validation failures are deferred to Finish, the
// way a WebGPU command encoder reports them.
type encoder struct {
	session  *Session
	ops      []op
	err      error
	finished bool
}

// commandBuffer is a finished recording. It can be submitted once.
type commandBuffer struct {
	session   *Session
	ops       []op
	submitted bool
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// Dispatch records a compute dispatch of gridX*gridY workgroups.
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
	limit := e.session.cfg.Limits.MaxDispatchPerAxis
	if gridX == 0 || gridY == 0 || gridX > limit || gridY > limit {
		e.fail(errors.Wrapf(device.ErrInvalidUsage, "dispatch %s: grid %dx%d outside [1, %d]", pl.kernel, gridX, gridY, limit))
		return
	}
	if want := pl.bindingCount(); len(bindings) != want {
		e.fail(errors.Wrapf(device.ErrInvalidUsage, "dispatch %s: %d bindings, want %d", pl.kernel, len(bindings), want))
		return
	}

	bufs := make([]*buffer, len(bindings))
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
		for _, prev := range bufs[:i] {
			if prev == buf {
				e.fail(errors.Wrapf(device.ErrInvalidUsage, "dispatch %s: buffer %q bound twice", pl.kernel, buf.label))
				return
			}
		}
		bufs[i] = buf
	}

	e.ops = append(e.ops, op{kind: opDispatch, pipeline: pl, gridX: gridX, gridY: gridY, bindings: bufs})
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
	case s == d:
		err = errors.Wrapf(device.ErrInvalidUsage, "copy: %q onto itself", s.label)
	case srcOffset%4 != 0 || dstOffset%4 != 0 || size%4 != 0:
		err = errors.Wrapf(device.ErrInvalidUsage, "copy: offsets and size must be multiples of 4 (%d, %d, %d)", srcOffset, dstOffset, size)
	case srcOffset+size > s.size || dstOffset+size > d.size:
		err = errors.Wrapf(device.ErrInvalidUsage, "copy: %d bytes overruns %q (%d) or %q (%d)", size, s.label, s.size, d.label, d.size)
	}
	if err != nil {
		e.fail(err)
		return
	}

	e.ops = append(e.ops, op{kind: opCopy, src: s, dst: d, srcOff: srcOffset, dstOff: dstOffset, size: size})
}

// Finish ends the recording.
func (e *encoder) Finish() (device.CommandBuffer, error) {
	if e.finished {
		return nil, errors.Wrap(device.ErrInvalidUsage, "encoder finished twice")
	}
	e.finished = true
	if e.err != nil {
		return nil, e.err
	}
	return &commandBuffer{session: e.session, ops: e.ops}, nil
}
