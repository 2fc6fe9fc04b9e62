package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/edaniels/gpucamera/colorconv"
	"github.com/edaniels/gpucamera/gpu"
)

const (
	workgroupSize = 16
	// uniformSize is three vec4<f32> matrix columns followed by a vec4<u32> of dimensions.
	uniformSize = 64
)

// yuvConversionShader returns a compute shader converting a luma buffer and an interleaved
// CbCr buffer, both packed four bytes to a u32, into one RGBA u32 per pixel.
func yuvConversionShader(rng colorconv.Range) string {
	return fmt.Sprintf(`
struct Params {
    c0   : vec4<f32>,
    c1   : vec4<f32>,
    c2   : vec4<f32>,
    dims : vec4<u32>,
};

@group(0) @binding(0) var<storage, read>        luma   : array<u32>;
@group(0) @binding(1) var<storage, read>        chroma : array<u32>;
@group(0) @binding(2) var<storage, read_write>  dst    : array<u32>;
@group(0) @binding(3) var<uniform>              params : Params;

const LUMA_OFFSET: f32 = %f;

fn byteAt(i: u32, isChroma: bool) -> f32 {
    var word: u32;
    if (isChroma) {
        word = chroma[i / 4u];
    } else {
        word = luma[i / 4u];
    }
    return f32((word >> ((i %% 4u) * 8u)) & 0xffu) / 255.0;
}

@compute @workgroup_size(%d, %d, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let width = params.dims.x;
    let height = params.dims.y;
    let chromaWidth = params.dims.z;
    if (gid.x >= width || gid.y >= height) { return; }

    let y = byteAt(gid.y * width + gid.x, false) - LUMA_OFFSET;
    let c = ((gid.y / 2u) * chromaWidth + gid.x / 2u) * 2u;
    let cb = byteAt(c, true) - 0.5;
    let cr = byteAt(c + 1u, true) - 0.5;

    let rgb = clamp(params.c0.xyz * y + params.c1.xyz * cb + params.c2.xyz * cr, vec3<f32>(0.0), vec3<f32>(1.0));
    let px = vec3<u32>(round(rgb * 255.0));
    dst[gid.y * width + gid.x] = px.x | (px.y << 8u) | (px.z << 16u) | (0xffu << 24u);
}
`, rng.LumaOffset(), workgroupSize, workgroupSize)
}

// packUniforms lays the matrix out as three column vectors followed by the output and
// chroma dimensions.
func packUniforms(m colorconv.Matrix3x3, size gpu.Size) []byte {
	buf := make([]byte, uniformSize)
	cols := m.ColumnMajor()
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			off := col*16 + row*4
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(cols[col*3+row]))
		}
	}
	chromaWidth, chromaHeight := colorconv.ChromaSize(size.Width, size.Height)
	binary.LittleEndian.PutUint32(buf[48:], uint32(size.Width))
	binary.LittleEndian.PutUint32(buf[52:], uint32(size.Height))
	binary.LittleEndian.PutUint32(buf[56:], uint32(chromaWidth))
	binary.LittleEndian.PutUint32(buf[60:], uint32(chromaHeight))
	return buf
}

// workgroups returns how many workgroups cover n invocations.
func workgroups(n int) uint32 {
	return uint32((n + workgroupSize - 1) / workgroupSize)
}

// bufferSize rounds a texture byte length up to whole u32 words.
func bufferSize(size gpu.Size, format gpu.TextureFormat) uint64 {
	n := uint64(size.Pixels() * format.BytesPerPixel())
	return (n + 3) &^ 3
}

// padWords extends data to a multiple of four bytes for queue writes.
func padWords(data []byte) []byte {
	if len(data)%4 == 0 {
		return data
	}
	padded := make([]byte, (len(data)+3)&^3)
	copy(padded, data)
	return padded
}
