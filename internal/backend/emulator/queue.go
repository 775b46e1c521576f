package emulator

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/reducebench/internal/parallel"
)

// submission is a command buffer in flight.
type submission struct {
	cmd  *commandBuffer
	done chan struct{}
}

// queue executes submissions in FIFO order on one goroutine.
type queue struct {
	session *Session
	work    chan *submission
	stopped chan struct{}

	// last is only touched by the host goroutine.
	last *submission

	mu  sync.Mutex
	err error // first execution error not yet reported
}

func newQueue(s *Session) *queue {
	q := &queue{
		session: s,
		work:    make(chan *submission, 64),
		stopped: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *queue) loop() {
	defer close(q.stopped)
	for sub := range q.work {
		if err := q.execute(sub.cmd); err != nil {
			klog.V(1).Infof("emulator: submission failed: %v", err)
			q.mu.Lock()
			if q.err == nil {
				q.err = err
			}
			q.mu.Unlock()
		}
		close(sub.done)
	}
}

func (q *queue) push(cmd *commandBuffer) {
	sub := &submission{cmd: cmd, done: make(chan struct{})}
	q.last = sub
	q.work <- sub
}

// wait blocks until every pushed submission has executed, then reports and
// clears the first execution error.
func (q *queue) wait(ctx context.Context) error {
	if q.last != nil {
		select {
		case <-q.last.done:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "emulator: waiting for queue")
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.err
	q.err = nil
	return err
}

// close drains pending work and stops the goroutine.
func (q *queue) close() {
	close(q.work)
	<-q.stopped
}

// execute runs the ops of one command buffer back to back. A failing op
// aborts the remainder of the command buffer.
func (q *queue) execute(cmd *commandBuffer) error {
	for i, o := range cmd.ops {
		var err error
		switch o.kind {
		case opDispatch:
			err = q.dispatch(o)
		case opCopy:
			copy(o.dst.bytes()[o.dstOff:o.dstOff+o.size], o.src.bytes()[o.srcOff:o.srcOff+o.size])
		}
		if err != nil {
			return errors.Wrapf(err, "op %d", i)
		}
	}
	return nil
}

// dispatch runs every workgroup of a dispatch. Workgroups are independent,
// so they are spread over the worker pool; each chunk owns its scratch
// memory. The pool barrier orders this dispatch before the next op.
func (q *queue) dispatch(o op) error {
	p := o.pipeline
	total := int(o.gridX) * int(o.gridY)
	inv := invocation{
		kernel:       p.kernel,
		gridX:        o.gridX,
		gridY:        o.gridY,
		subgroupSize: q.session.cfg.SubgroupSize,
	}
	if len(o.bindings) == 1 {
		inv.output = o.bindings[0].data
	} else {
		inv.input = o.bindings[0].data
		inv.output = o.bindings[1].data
	}

	return parallel.ForChunks(total, q.session.cfg.Parallel, func(start, end int) error {
		shared := make([]uint32, p.kernel.WorkgroupSize)
		for w := start; w < end; w++ {
			wx := uint32(w) % o.gridX //nolint:gosec // G115: w < gridX*gridY.
			wy := uint32(w) / o.gridX //nolint:gosec // G115: w < gridX*gridY.
			if err := p.run(&inv, wx, wy, shared); err != nil {
				return errors.Wrapf(err, "%s workgroup (%d, %d)", p.kernel, wx, wy)
			}
		}
		return nil
	})
}
