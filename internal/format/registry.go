// Package format enumerates the pixel formats the cache understands and the
// device-side conversion passes between them.
package format

// PixelFormat identifies a typed pixel layout. The registry recognises a
// fixed set of six: the four floating-point colour spaces carried over from
// the colour-management graph (linear vs. sRGB, straight vs. premultiplied
// alpha) plus two 8-bit integer variants of the sRGB pair.
type PixelFormat uint8

const (
	RGBAFloatLinear PixelFormat = iota
	RGBAFloatLinearPremul
	RGBAFloatSRGB
	RGBAFloatSRGBPremul
	RGBAU8SRGB
	RGBAU8SRGBPremul

	formatCount
)

// Info describes the storage characteristics of a PixelFormat.
type Info struct {
	BytesPerPixel  int
	Channels       int
	IsFloat        bool
	IsPremultiplied bool
	IsLinear       bool
}

var infoTable = [formatCount]Info{
	RGBAFloatLinear:        {BytesPerPixel: 16, Channels: 4, IsFloat: true, IsPremultiplied: false, IsLinear: true},
	RGBAFloatLinearPremul:  {BytesPerPixel: 16, Channels: 4, IsFloat: true, IsPremultiplied: true, IsLinear: true},
	RGBAFloatSRGB:          {BytesPerPixel: 16, Channels: 4, IsFloat: true, IsPremultiplied: false, IsLinear: false},
	RGBAFloatSRGBPremul:    {BytesPerPixel: 16, Channels: 4, IsFloat: true, IsPremultiplied: true, IsLinear: false},
	RGBAU8SRGB:             {BytesPerPixel: 4, Channels: 4, IsFloat: false, IsPremultiplied: false, IsLinear: false},
	RGBAU8SRGBPremul:       {BytesPerPixel: 4, Channels: 4, IsFloat: false, IsPremultiplied: true, IsLinear: false},
}

// Info returns the storage description for f, or the zero Info if f is out
// of range.
func (f PixelFormat) Info() Info {
	if f >= formatCount {
		return Info{}
	}
	return infoTable[f]
}

// BytesPerPixel reports the per-pixel storage size of f.
func (f PixelFormat) BytesPerPixel() int { return f.Info().BytesPerPixel }

// IsValid reports whether f names one of the six registered formats.
func (f PixelFormat) IsValid() bool { return f < formatCount }

func (f PixelFormat) String() string {
	switch f {
	case RGBAFloatLinear:
		return "RGBAFloatLinear"
	case RGBAFloatLinearPremul:
		return "RGBAFloatLinearPremul"
	case RGBAFloatSRGB:
		return "RGBAFloatSRGB"
	case RGBAFloatSRGBPremul:
		return "RGBAFloatSRGBPremul"
	case RGBAU8SRGB:
		return "RGBAU8SRGB"
	case RGBAU8SRGBPremul:
		return "RGBAU8SRGBPremul"
	default:
		return "Unknown"
	}
}

// Kind classifies the relationship between two formats as resolved by
// Conversion.
type Kind int

const (
	// Unsupported means one or both formats are not in the registry.
	Unsupported Kind = iota
	// Equal means no conversion pass is required.
	Equal
	// Convert means one or two device kernel passes are required; Step2 is
	// -1 when only one pass is needed.
	Convert
)

// Plan is the result of resolving a conversion between two formats.
type Plan struct {
	Kind  Kind
	Step1 int // kernel table index, or -1
	Step2 int // kernel table index, or -1 when a single pass suffices
}

// Kernel step indices, matching the ten-entry colour kernel table described
// by the conversion graph below. Index values are stable and used both to
// select a Plan and to look up a compiled kernel in internal/device.
const (
	KernelUnpremultiplyLinear  = 0 // RGBAFloatLinearPremul   -> RGBAFloatLinear
	KernelPremultiplyLinear    = 1 // RGBAFloatLinear         -> RGBAFloatLinearPremul
	KernelLinearToSRGB         = 2 // RGBAFloatLinear         -> RGBAFloatSRGB
	KernelSRGBToLinear         = 3 // RGBAFloatSRGB           -> RGBAFloatLinear
	KernelLinearToSRGBPremul   = 4 // RGBAFloatLinear         -> RGBAFloatSRGBPremul
	KernelSRGBPremulToLinear   = 5 // RGBAFloatSRGBPremul     -> RGBAFloatLinear
	KernelSRGBToU8             = 6 // RGBAFloatSRGB           -> RGBAU8SRGB
	KernelU8ToSRGB              = 7 // RGBAU8SRGB              -> RGBAFloatSRGB
	KernelSRGBPremulToU8Premul = 8 // RGBAFloatSRGBPremul     -> RGBAU8SRGBPremul
	KernelU8PremulToSRGBPremul = 9 // RGBAU8SRGBPremul        -> RGBAFloatSRGBPremul
	kernelCount                = 10
)

// KernelCount is the number of distinct device conversion kernels the
// registry's graph requires.
const KernelCount = kernelCount

// IsSupported reports whether both formats are registered.
func IsSupported(in, out PixelFormat) bool {
	return in.IsValid() && out.IsValid()
}

// Conversion resolves the conversion path between in and out. Indirect
// paths always tie-break through RGBAFloatLinear, mirroring the original
// colour graph's use of linear RGBA as the universal intermediate.
//
// The two uint8 formats are one conversion step away from their float sRGB
// counterparts (a scale pass) and are otherwise routed through
// RGBAFloatSRGB(Premul) exactly like the float formats route through
// RGBAFloatLinear, so a uint8<->linear conversion costs two passes: one
// scale step plus one of the float graph's existing single-step edges.
func Conversion(in, out PixelFormat) Plan {
	if !IsSupported(in, out) {
		return Plan{Kind: Unsupported, Step1: -1, Step2: -1}
	}
	if in == out {
		return Plan{Kind: Equal, Step1: -1, Step2: -1}
	}

	// Single-step edges of the float colour graph, all pivoting on
	// RGBAFloatLinear as the hub.
	type edge struct{ a, b PixelFormat }
	direct := map[edge]int{
		{RGBAFloatLinearPremul, RGBAFloatLinear}: KernelUnpremultiplyLinear,
		{RGBAFloatLinear, RGBAFloatLinearPremul}: KernelPremultiplyLinear,
		{RGBAFloatLinear, RGBAFloatSRGB}:         KernelLinearToSRGB,
		{RGBAFloatSRGB, RGBAFloatLinear}:         KernelSRGBToLinear,
		{RGBAFloatLinear, RGBAFloatSRGBPremul}:   KernelLinearToSRGBPremul,
		{RGBAFloatSRGBPremul, RGBAFloatLinear}:   KernelSRGBPremulToLinear,
		{RGBAFloatSRGB, RGBAU8SRGB}:              KernelSRGBToU8,
		{RGBAU8SRGB, RGBAFloatSRGB}:              KernelU8ToSRGB,
		{RGBAFloatSRGBPremul, RGBAU8SRGBPremul}:  KernelSRGBPremulToU8Premul,
		{RGBAU8SRGBPremul, RGBAFloatSRGBPremul}:  KernelU8PremulToSRGBPremul,
	}

	if step, ok := direct[edge{in, out}]; ok {
		return Plan{Kind: Convert, Step1: step, Step2: -1}
	}

	// Two-step paths via RGBAFloatLinear.
	toLinear, toLinearOK := direct[edge{in, RGBAFloatLinear}]
	fromLinear, fromLinearOK := direct[edge{RGBAFloatLinear, out}]
	if toLinearOK && fromLinearOK {
		return Plan{Kind: Convert, Step1: toLinear, Step2: fromLinear}
	}

	// uint8 endpoints route through their float sRGB sibling, plus at most
	// one direct edge of the float graph, so no plan exceeds two device
	// passes. Pairs that would need a third pass (e.g. RGBAU8SRGB ->
	// RGBAFloatLinearPremul) are not routed here and fall through to
	// Unsupported below.
	if in == RGBAU8SRGB {
		if step, ok := direct[edge{RGBAFloatSRGB, out}]; ok {
			return Plan{Kind: Convert, Step1: KernelU8ToSRGB, Step2: step}
		}
	}
	if in == RGBAU8SRGBPremul {
		if step, ok := direct[edge{RGBAFloatSRGBPremul, out}]; ok {
			return Plan{Kind: Convert, Step1: KernelU8PremulToSRGBPremul, Step2: step}
		}
	}
	if out == RGBAU8SRGB {
		if step, ok := direct[edge{in, RGBAFloatSRGB}]; ok {
			return Plan{Kind: Convert, Step1: step, Step2: KernelSRGBToU8}
		}
	}
	if out == RGBAU8SRGBPremul {
		if step, ok := direct[edge{in, RGBAFloatSRGBPremul}]; ok {
			return Plan{Kind: Convert, Step1: step, Step2: KernelSRGBPremulToU8Premul}
		}
	}

	// No path within the two-pass budget (e.g. RGBAU8SRGB <->
	// RGBAU8SRGBPremul) is unsupported by this registry; callers fall back
	// to CPU conversion.
	return Plan{Kind: Unsupported, Step1: -1, Step2: -1}
}
