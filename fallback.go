package tilecache

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/gogpu/tilecache/internal/format"
)

// FallbackConvert performs a CPU-side pixel format conversion for a format
// pair the device kernel table has no path for (format.Unsupported),
// using golang.org/x/image/draw's scaler as a premultiplied/
// non-premultiplied-aware color converter. Only the two uint8 sRGB
// formats are supported; float formats have no stdlib image.Image
// representation and must go through the device conversion path instead.
func FallbackConvert(src []byte, w, h int, srcFormat, dstFormat format.PixelFormat) ([]byte, error) {
	srcImg, err := wrapU8Image(src, w, h, srcFormat)
	if err != nil {
		return nil, fmt.Errorf("tilecache: fallback_convert: source: %w", err)
	}

	dst := make([]byte, w*h*4)
	dstImg, err := wrapU8Image(dst, w, h, dstFormat)
	if err != nil {
		return nil, fmt.Errorf("tilecache: fallback_convert: destination: %w", err)
	}

	r := dstImg.Bounds()
	draw.NearestNeighbor.Scale(dstImg, r, srcImg, srcImg.Bounds(), draw.Src, nil)
	return dst, nil
}

func wrapU8Image(pix []byte, w, h int, f format.PixelFormat) (draw.Image, error) {
	rect := image.Rect(0, 0, w, h)
	switch f {
	case format.RGBAU8SRGBPremul:
		return &image.RGBA{Pix: pix, Stride: w * 4, Rect: rect}, nil
	case format.RGBAU8SRGB:
		return &image.NRGBA{Pix: pix, Stride: w * 4, Rect: rect}, nil
	default:
		return nil, fmt.Errorf("%w: %s has no CPU image representation", ErrConversionUnsupported, f)
	}
}
