package device

// Resources collects buffers so an owner can release them together, including
// after a partially failed setup.
type Resources struct {
	buffers []Buffer
}

// Add records b and returns it.
func (r *Resources) Add(b Buffer) Buffer {
	r.buffers = append(r.buffers, b)
	return b
}

// Len returns the number of recorded buffers.
func (r *Resources) Len() int {
	return len(r.buffers)
}

// Bytes returns the total size of the recorded buffers.
func (r *Resources) Bytes() uint64 {
	var total uint64
	for _, b := range r.buffers {
		total += b.Size()
	}
	return total
}

// Release releases every recorded buffer in reverse order. It is safe to
// call more than once.
func (r *Resources) Release() {
	for i := len(r.buffers) - 1; i >= 0; i-- {
		r.buffers[i].Release()
	}
	r.buffers = nil
}
