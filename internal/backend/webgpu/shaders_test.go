package webgpu

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/reducebench/internal/device"
)

func TestRenderShader_Tile(t *testing.T) {
	src, err := renderShader(device.Kernel{Kind: device.KernelTileAtomic, WorkgroupSize: 64, WorkgroupsPerTile: 32, GridX: 512})
	require.NoError(t, err)

	assert.Contains(t, src, "@compute @workgroup_size(64)")
	assert.Contains(t, src, "array<u32, 64>")
	assert.Contains(t, src, "workgroupId.y * 512u")
	assert.Contains(t, src, "workgroupIndex * 2048u + localIndex")
	assert.Contains(t, src, "j < 32u")
	assert.Contains(t, src, "atomicAdd(&output, sharedData[0]);")
	assert.NotContains(t, src, "vec4u>")
	assert.NotContains(t, src, "enable subgroups")
}

func TestRenderShader_Vec4(t *testing.T) {
	src, err := renderShader(device.Kernel{Kind: device.KernelVec4Atomic, WorkgroupSize: 64, WorkgroupsPerTile: 8, GridX: 4})
	require.NoError(t, err)

	assert.Contains(t, src, "array<vec4u>")
	assert.Contains(t, src, "sum += v.x + v.y + v.z + v.w;")
	assert.Contains(t, src, "workgroupIndex * 512u")
}

func TestRenderShader_Partials(t *testing.T) {
	src, err := renderShader(device.Kernel{Kind: device.KernelPartials, WorkgroupSize: 16, WorkgroupsPerTile: 1, GridX: 1})
	require.NoError(t, err)

	assert.Contains(t, src, "var<storage, read_write> output: array<u32>;")
	assert.Contains(t, src, "output[workgroupIndex] = sharedData[0];")
	assert.NotContains(t, src, "atomic")
}

func TestRenderShader_Subgroups(t *testing.T) {
	k := device.Kernel{Kind: device.KernelSubgroupAtomic, WorkgroupSize: 64, WorkgroupsPerTile: 1, GridX: 8}
	src, err := renderShader(k)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(src), "enable subgroups;"))
	assert.Contains(t, src, "subgroupAdd(sum)")
	assert.Contains(t, src, "let step = 64u;")

	k.Kind = device.KernelSubgroupStride
	src, err = renderShader(k)
	require.NoError(t, err)
	assert.Contains(t, src, "numWorkgroups.x * numWorkgroups.y * 64u")
}

func TestRenderShader_Clear(t *testing.T) {
	src, err := renderShader(device.ClearKernel())
	require.NoError(t, err)
	assert.Contains(t, src, "output = 0u;")
}

func TestRenderShader_Invalid(t *testing.T) {
	_, err := renderShader(device.Kernel{Kind: device.KernelTileAtomic})
	assert.Error(t, err)

	_, err = renderShader(device.Kernel{Kind: device.KernelKind(42), WorkgroupSize: 1, WorkgroupsPerTile: 1, GridX: 1})
	assert.Error(t, err)
}
