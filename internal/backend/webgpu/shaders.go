package webgpu

import (
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/born-ml/reducebench/internal/device"
)

// WGSL templates for the reduction kernels. Every specialization constant
// (workgroup size, tile, grid width) is baked into the source, so one
// device.Kernel renders to exactly one shader module.

const clearShader = `
@group(0) @binding(0) var<storage, read_write> output: u32;

@compute @workgroup_size(1)
fn main() {
    output = 0u;
}
`

// tileShader covers KernelTileAtomic, KernelVec4Atomic and KernelPartials.
const tileShader = `
@group(0) @binding(0) var<storage, read> input: array<{{if .Vec4}}vec4u{{else}}u32{{end}}>;
{{if .Partials -}}
@group(0) @binding(1) var<storage, read_write> output: array<u32>;
{{- else -}}
@group(0) @binding(1) var<storage, read_write> output: atomic<u32>;
{{- end}}

var<workgroup> sharedData: array<u32, {{.WorkgroupSize}}>;

@compute @workgroup_size({{.WorkgroupSize}})
fn main(
    @builtin(workgroup_id) workgroupId: vec3u,
    @builtin(local_invocation_index) localIndex: u32,
) {
    let workgroupIndex = workgroupId.x + workgroupId.y * {{.GridX}}u;
    let i = workgroupIndex * {{.TileWidth}}u + localIndex;

    var sum = 0u;
    for (var j = 0u; j < {{.WorkgroupsPerTile}}u; j++) {
{{- if .Vec4}}
        let v = input[i + j * {{.WorkgroupSize}}u];
        sum += v.x + v.y + v.z + v.w;
{{- else}}
        sum += input[i + j * {{.WorkgroupSize}}u];
{{- end}}
    }
    sharedData[localIndex] = sum;
    workgroupBarrier();

    for (var stride = {{.WorkgroupSize}}u / 2u; stride > 0u; stride >>= 1u) {
        if (localIndex < stride) {
            sharedData[localIndex] += sharedData[localIndex + stride];
        }
        workgroupBarrier();
    }

    if (localIndex == 0u) {
{{- if .Partials}}
        output[workgroupIndex] = sharedData[0];
{{- else}}
        atomicAdd(&output, sharedData[0]);
{{- end}}
    }
}
`

// subgroupShader covers KernelSubgroupAtomic and KernelSubgroupStride.
const subgroupShader = `
enable subgroups;

@group(0) @binding(0) var<storage, read> input: array<u32>;
@group(0) @binding(1) var<storage, read_write> output: atomic<u32>;

@compute @workgroup_size({{.WorkgroupSize}})
fn main(
    @builtin(workgroup_id) workgroupId: vec3u,
    @builtin(num_workgroups) numWorkgroups: vec3u,
    @builtin(local_invocation_index) localIndex: u32,
    @builtin(subgroup_invocation_id) lane: u32,
) {
    let workgroupIndex = workgroupId.x + workgroupId.y * {{.GridX}}u;
{{- if .Stride}}
    let i = workgroupIndex * {{.WorkgroupSize}}u + localIndex;
    let step = numWorkgroups.x * numWorkgroups.y * {{.WorkgroupSize}}u;
{{- else}}
    let i = workgroupIndex * {{.TileWidth}}u + localIndex;
    let step = {{.WorkgroupSize}}u;
{{- end}}

    var sum = 0u;
    for (var j = 0u; j < {{.WorkgroupsPerTile}}u; j++) {
        sum += input[i + j * step];
    }

    let total = subgroupAdd(sum);
    if (lane == 0u) {
        atomicAdd(&output, total);
    }
}
`

var (
	tileTemplate     = template.Must(template.New("tile").Parse(tileShader))
	subgroupTemplate = template.Must(template.New("subgroup").Parse(subgroupShader))
)

// shaderParams feeds the templates.
type shaderParams struct {
	device.Kernel
	TileWidth uint32
	Vec4      bool
	Partials  bool
	Stride    bool
}

// renderShader returns the WGSL source for k.
func renderShader(k device.Kernel) (string, error) {
	if k.WorkgroupSize == 0 || k.WorkgroupsPerTile == 0 || k.GridX == 0 {
		return "", errors.Errorf("incomplete specialization %s", k)
	}
	params := shaderParams{
		Kernel:    k,
		TileWidth: k.WorkgroupSize * k.WorkgroupsPerTile,
		Vec4:      k.Kind == device.KernelVec4Atomic,
		Partials:  k.Kind == device.KernelPartials,
		Stride:    k.Kind == device.KernelSubgroupStride,
	}

	var tmpl *template.Template
	switch k.Kind {
	case device.KernelClear:
		return clearShader, nil
	case device.KernelTileAtomic, device.KernelVec4Atomic, device.KernelPartials:
		tmpl = tileTemplate
	case device.KernelSubgroupAtomic, device.KernelSubgroupStride:
		tmpl = subgroupTemplate
	default:
		return "", errors.Errorf("unknown kernel kind %d", int(k.Kind))
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, params); err != nil {
		return "", errors.Wrapf(err, "render %s", k)
	}
	return b.String(), nil
}
