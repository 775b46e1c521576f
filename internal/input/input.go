// Package input generates the integer arrays the reduction strategies sum.
package input

import (
	"hash/fnv"
	"math/bits"
	"math/rand"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/reducebench/internal/parallel"
)

// Pattern selects how array elements are filled.
type Pattern string

const (
	// Ones fills every element with 1, so the sum equals the length.
	Ones Pattern = "ones"
	// Random fills elements with seeded integers in [0, 10].
	Random Pattern = "random"
	// Sequence fills element i with i (the sum wraps modulo 2^32).
	Sequence Pattern = "sequence"
)

// ErrInvalidLength is returned for lengths that are zero or not a power of two.
var ErrInvalidLength = errors.New("input: length must be a positive power of two")

// ErrUnknownPattern is returned for an unrecognized Pattern.
var ErrUnknownPattern = errors.New("input: unknown pattern")

// Array is an immutable sequence of unsigned 32-bit integers.
type Array struct {
	data []uint32
}

// Generate builds an array of n elements using the given pattern.
// The seed is only used by Random.
func Generate(n uint32, pattern Pattern, seed int64) (Array, error) {
	if n == 0 || bits.OnesCount32(n) != 1 {
		return Array{}, errors.Wrapf(ErrInvalidLength, "got %d", n)
	}

	start := time.Now()
	data := make([]uint32, n)
	switch pattern {
	case Ones, "":
		parallel.For(len(data), func(i int) { data[i] = 1 }, parallel.DefaultConfig())
	case Random:
		rng := rand.New(rand.NewSource(seed)) //nolint:gosec // Reproducible benchmark data, not crypto.
		for i := range data {
			data[i] = uint32(rng.Intn(11))
		}
	case Sequence:
		parallel.For(len(data), func(i int) { data[i] = uint32(i) }, parallel.DefaultConfig()) //nolint:gosec // G115: i < n.
	default:
		return Array{}, errors.Wrapf(ErrUnknownPattern, "%q", pattern)
	}
	klog.V(1).Infof("generated %d %s elements in %s", n, pattern, time.Since(start))

	return Array{data: data}, nil
}

// FromValues wraps a copy of values as an Array.
func FromValues(values []uint32) Array {
	return Array{data: append([]uint32(nil), values...)}
}

// Len returns the number of elements.
func (a Array) Len() uint32 {
	return uint32(len(a.data)) //nolint:gosec // G115: lengths come from a uint32.
}

// At returns element i.
func (a Array) At(i int) uint32 {
	return a.data[i]
}

// Values returns the backing slice. Callers must treat it as read-only.
func (a Array) Values() []uint32 {
	return a.data
}

// Bytes returns the little-endian byte view of the backing slice without
// copying. Callers must treat it as read-only.
func (a Array) Bytes() []byte {
	if len(a.data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy upload of host data.
	return unsafe.Slice((*byte)(unsafe.Pointer(&a.data[0])), len(a.data)*4)
}

// Sum folds the array on the host. Overflow wraps modulo 2^32 exactly like
// the device accumulators.
func (a Array) Sum() uint32 {
	var sum uint32
	for _, v := range a.data {
		sum += v
	}
	return sum
}

// Checksum returns an FNV-1a hash of the contents.
func (a Array) Checksum() uint64 {
	h := fnv.New64a()
	_, _ = h.Write(a.Bytes())
	return h.Sum64()
}
