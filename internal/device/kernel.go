package device

import (
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/naga"
	"github.com/gogpu/tilecache/internal/format"
)

// kernelSource holds the WGSL compute shader source for one colour
// conversion step. The table index matches the Step1/Step2 indices
// format.Conversion returns.
var kernelSource = [format.KernelCount]string{
	format.KernelUnpremultiplyLinear:  "fn unpremultiply_linear(c: vec4<f32>) -> vec4<f32> { if (c.a <= 0.0) { return vec4<f32>(0.0); } return vec4<f32>(c.rgb / c.a, c.a); }",
	format.KernelPremultiplyLinear:    "fn premultiply_linear(c: vec4<f32>) -> vec4<f32> { return vec4<f32>(c.rgb * c.a, c.a); }",
	format.KernelLinearToSRGB:         "fn linear_to_srgb(c: vec4<f32>) -> vec4<f32> { return vec4<f32>(pow(c.rgb, vec3<f32>(1.0/2.2)), c.a); }",
	format.KernelSRGBToLinear:         "fn srgb_to_linear(c: vec4<f32>) -> vec4<f32> { return vec4<f32>(pow(c.rgb, vec3<f32>(2.2)), c.a); }",
	format.KernelLinearToSRGBPremul:   "fn linear_to_srgb_premul(c: vec4<f32>) -> vec4<f32> { let g = pow(c.rgb, vec3<f32>(1.0/2.2)); return vec4<f32>(g * c.a, c.a); }",
	format.KernelSRGBPremulToLinear:   "fn srgb_premul_to_linear(c: vec4<f32>) -> vec4<f32> { if (c.a <= 0.0) { return vec4<f32>(0.0); } let s = c.rgb / c.a; return vec4<f32>(pow(s, vec3<f32>(2.2)), c.a); }",
	format.KernelSRGBToU8:             "fn srgb_to_u8(c: vec4<f32>) -> vec4<f32> { return clamp(c, vec4<f32>(0.0), vec4<f32>(1.0)); }",
	format.KernelU8ToSRGB:             "fn u8_to_srgb(c: vec4<f32>) -> vec4<f32> { return c; }",
	format.KernelSRGBPremulToU8Premul: "fn srgb_premul_to_u8_premul(c: vec4<f32>) -> vec4<f32> { return clamp(c, vec4<f32>(0.0), vec4<f32>(1.0)); }",
	format.KernelU8PremulToSRGBPremul: "fn u8_premul_to_srgb_premul(c: vec4<f32>) -> vec4<f32> { return c; }",
}

var kernelNames = [format.KernelCount]string{
	format.KernelUnpremultiplyLinear:  "unpremultiply_linear",
	format.KernelPremultiplyLinear:    "premultiply_linear",
	format.KernelLinearToSRGB:         "linear_to_srgb",
	format.KernelSRGBToLinear:         "srgb_to_linear",
	format.KernelLinearToSRGBPremul:   "linear_to_srgb_premul",
	format.KernelSRGBPremulToLinear:   "srgb_premul_to_linear",
	format.KernelSRGBToU8:             "srgb_to_u8",
	format.KernelU8ToSRGB:             "u8_to_srgb",
	format.KernelSRGBPremulToU8Premul: "srgb_premul_to_u8_premul",
	format.KernelU8PremulToSRGBPremul: "u8_premul_to_srgb_premul",
}

var (
	kernelOnce  [format.KernelCount]sync.Once
	kernelSPIRV [format.KernelCount][]byte
	kernelErr   [format.KernelCount]error
)

// CompileKernel compiles the WGSL source for conversion step idx to SPIR-V
// via naga, exactly once per process for that step, and returns the
// resulting bytes. Subsequent calls for the same idx return the cached
// result (or cached error) without recompiling.
func CompileKernel(idx int) ([]byte, error) {
	if idx < 0 || idx >= format.KernelCount {
		return nil, fmt.Errorf("device: kernel index %d out of range", idx)
	}
	kernelOnce[idx].Do(func() {
		kernelSPIRV[idx], kernelErr[idx] = naga.Compile(kernelSource[idx])
	})
	return kernelSPIRV[idx], kernelErr[idx]
}

// KernelName returns the human-readable name of conversion step idx, used
// as the Gateway.BuildKernel name and in log messages.
func KernelName(idx int) string {
	if idx < 0 || idx >= format.KernelCount {
		return "unknown"
	}
	return kernelNames[idx]
}

// convertPixels applies the single-step colour conversion kernels the
// Software gateway uses to emulate device dispatch. It expects buf to
// contain len/bpp(srcFormat) pixels packed according to srcFormat, and
// returns a newly allocated buffer packed according to dstFormat.
//
// This is the CPU-side twin of the WGSL functions in kernelSource: both
// must implement the same math so that a test running against Software
// observes the same colours a hardware Gateway would produce.
func convertPixels(buf []byte, src, dst format.PixelFormat) []byte {
	if src == dst {
		out := make([]byte, len(buf))
		copy(out, buf)
		return out
	}
	plan := format.Conversion(src, dst)
	cur := buf
	curFmt := src
	if plan.Step1 >= 0 {
		cur = applyStep(cur, curFmt, plan.Step1)
		curFmt = stepOutput(plan.Step1)
	}
	if plan.Step2 >= 0 {
		cur = applyStep(cur, curFmt, plan.Step2)
		curFmt = stepOutput(plan.Step2)
	}
	return cur
}

func stepOutput(step int) format.PixelFormat {
	switch step {
	case format.KernelUnpremultiplyLinear, format.KernelSRGBToLinear, format.KernelSRGBPremulToLinear:
		return format.RGBAFloatLinear
	case format.KernelPremultiplyLinear:
		return format.RGBAFloatLinearPremul
	case format.KernelLinearToSRGB, format.KernelU8ToSRGB:
		return format.RGBAFloatSRGB
	case format.KernelLinearToSRGBPremul, format.KernelU8PremulToSRGBPremul:
		return format.RGBAFloatSRGBPremul
	case format.KernelSRGBToU8:
		return format.RGBAU8SRGB
	case format.KernelSRGBPremulToU8Premul:
		return format.RGBAU8SRGBPremul
	default:
		return format.RGBAFloatLinear
	}
}

func applyStep(buf []byte, srcFmt format.PixelFormat, step int) []byte {
	switch step {
	case format.KernelU8ToSRGB:
		return u8ToFloat(buf)
	case format.KernelU8PremulToSRGBPremul:
		return u8ToFloat(buf)
	case format.KernelSRGBToU8:
		return floatToU8(buf)
	case format.KernelSRGBPremulToU8Premul:
		return floatToU8(buf)
	default:
		return mapFloatPixels(buf, pixelFn(step))
	}
}

func pixelFn(step int) func(r, g, b, a float32) (float32, float32, float32, float32) {
	switch step {
	case format.KernelUnpremultiplyLinear:
		return func(r, g, b, a float32) (float32, float32, float32, float32) {
			if a <= 0 {
				return 0, 0, 0, a
			}
			return r / a, g / a, b / a, a
		}
	case format.KernelPremultiplyLinear:
		return func(r, g, b, a float32) (float32, float32, float32, float32) {
			return r * a, g * a, b * a, a
		}
	case format.KernelLinearToSRGB:
		return func(r, g, b, a float32) (float32, float32, float32, float32) {
			return encodeGamma(r), encodeGamma(g), encodeGamma(b), a
		}
	case format.KernelSRGBToLinear:
		return func(r, g, b, a float32) (float32, float32, float32, float32) {
			return decodeGamma(r), decodeGamma(g), decodeGamma(b), a
		}
	case format.KernelLinearToSRGBPremul:
		return func(r, g, b, a float32) (float32, float32, float32, float32) {
			return encodeGamma(r) * a, encodeGamma(g) * a, encodeGamma(b) * a, a
		}
	case format.KernelSRGBPremulToLinear:
		return func(r, g, b, a float32) (float32, float32, float32, float32) {
			if a <= 0 {
				return 0, 0, 0, a
			}
			return decodeGamma(r / a), decodeGamma(g / a), decodeGamma(b / a), a
		}
	default:
		return func(r, g, b, a float32) (float32, float32, float32, float32) { return r, g, b, a }
	}
}

func encodeGamma(v float32) float32 {
	if v < 0 {
		v = 0
	}
	return float32(math.Pow(float64(v), 1.0/2.2))
}

func decodeGamma(v float32) float32 {
	if v < 0 {
		v = 0
	}
	return float32(math.Pow(float64(v), 2.2))
}

func mapFloatPixels(buf []byte, fn func(r, g, b, a float32) (float32, float32, float32, float32)) []byte {
	const stride = 16 // 4 float32 channels
	out := make([]byte, len(buf))
	for off := 0; off+stride <= len(buf); off += stride {
		r := readF32(buf, off)
		g := readF32(buf, off+4)
		b := readF32(buf, off+8)
		a := readF32(buf, off+12)
		nr, ng, nb, na := fn(r, g, b, a)
		writeF32(out, off, nr)
		writeF32(out, off+4, ng)
		writeF32(out, off+8, nb)
		writeF32(out, off+12, na)
	}
	return out
}

func u8ToFloat(buf []byte) []byte {
	out := make([]byte, len(buf)*4)
	for i, b := range buf {
		writeF32(out, i*4, float32(b)/255.0)
	}
	return out
}

func floatToU8(buf []byte) []byte {
	n := len(buf) / 4
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		v := readF32(buf, i*4)
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out[i] = byte(v*255.0 + 0.5)
	}
	return out
}

func readF32(buf []byte, off int) float32 {
	bits := uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
	return math.Float32frombits(bits)
}

func writeF32(buf []byte, off int, v float32) {
	bits := math.Float32bits(v)
	buf[off] = byte(bits)
	buf[off+1] = byte(bits >> 8)
	buf[off+2] = byte(bits >> 16)
	buf[off+3] = byte(bits >> 24)
}
