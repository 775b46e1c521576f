package input

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Ones(t *testing.T) {
	a, err := Generate(1024, Ones, 0)
	require.NoError(t, err)

	assert.Equal(t, uint32(1024), a.Len())
	assert.Equal(t, uint32(1024), a.Sum())
	for i := 0; i < int(a.Len()); i++ {
		require.Equal(t, uint32(1), a.At(i))
	}
}

func TestGenerate_RandomIsReproducible(t *testing.T) {
	a, err := Generate(4096, Random, 42)
	require.NoError(t, err)
	b, err := Generate(4096, Random, 42)
	require.NoError(t, err)
	c, err := Generate(4096, Random, 7)
	require.NoError(t, err)

	assert.Equal(t, a.Values(), b.Values())
	assert.Equal(t, a.Checksum(), b.Checksum())
	assert.NotEqual(t, a.Checksum(), c.Checksum())

	for _, v := range a.Values() {
		require.LessOrEqual(t, v, uint32(10))
	}
}

func TestGenerate_SequenceWraps(t *testing.T) {
	a, err := Generate(1<<17, Sequence, 0)
	require.NoError(t, err)

	// n(n-1)/2 for n = 2^17 is 2^33 - 2^16, which wraps to 2^32 - 2^16.
	assert.Equal(t, uint32(1<<32-1<<16), a.Sum())
}

func TestGenerate_InvalidLength(t *testing.T) {
	for _, n := range []uint32{0, 3, 100, 1<<20 + 1} {
		_, err := Generate(n, Ones, 0)
		assert.True(t, errors.Is(err, ErrInvalidLength), "n=%d", n)
	}
}

func TestGenerate_UnknownPattern(t *testing.T) {
	_, err := Generate(8, Pattern("zeros"), 0)
	assert.True(t, errors.Is(err, ErrUnknownPattern))
}

func TestFromValues_Copies(t *testing.T) {
	values := []uint32{1, 2, 3, 4}
	a := FromValues(values)
	values[0] = 100

	assert.Equal(t, uint32(1), a.At(0))
	assert.Equal(t, uint32(10), a.Sum())
	assert.Len(t, a.Bytes(), 16)
}
