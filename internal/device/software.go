package device

import (
	"fmt"
	"sync"

	"github.com/gogpu/tilecache/internal/format"
)

// Software is a reference Gateway backed by plain host memory. It performs
// every conversion kernel as a straightforward per-pixel loop, and never
// fails allocation unless Budget is set and exceeded, which lets tests
// exercise the eviction-and-retry path deterministically.
type Software struct {
	mu       sync.Mutex
	budget   int64 // 0 means unlimited
	used     int64
	kernels  map[string]*Kernel
	dispatch int
}

// NewSoftware constructs a Software gateway. budget, if non-zero, is the
// maximum number of bytes of image storage CreateImage will allow before
// returning ErrOutOfResources.
func NewSoftware(budget int64) *Software {
	return &Software{budget: budget, kernels: make(map[string]*Kernel)}
}

func (s *Software) CreateImage(width, height int, f format.PixelFormat) (*Image, error) {
	size := int64(width * height * f.BytesPerPixel())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budget != 0 && s.used+size > s.budget {
		return nil, fmt.Errorf("software device: %w", ErrOutOfResources)
	}
	s.used += size
	return &Image{
		Handle: make([]byte, size),
		Width:  width,
		Height: height,
		Format: f,
	}, nil
}

func (s *Software) DestroyImage(img *Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used -= int64(img.Width * img.Height * img.Format.BytesPerPixel())
	img.Handle = nil
	return nil
}

func (s *Software) bytes(img *Image) []byte {
	return img.Handle.([]byte)
}

func (s *Software) MapImage(img *Image) ([]byte, error) {
	return s.bytes(img), nil
}

func (s *Software) UnmapImage(img *Image) error {
	return nil
}

func rowBytes(w int, f format.PixelFormat) int { return w * f.BytesPerPixel() }

func (s *Software) ReadImage(img *Image, region Rectangle, dst []byte, rowstride int) error {
	data := s.bytes(img)
	bpp := img.Format.BytesPerPixel()
	srcStride := img.Width * bpp
	dstStride := rowstride
	if dstStride == 0 {
		dstStride = region.W * bpp
	}
	for row := 0; row < region.H; row++ {
		srcOff := (region.Y+row)*srcStride + region.X*bpp
		dstOff := row * dstStride
		if srcOff+region.W*bpp > len(data) || dstOff+region.W*bpp > len(dst) {
			return fmt.Errorf("software device: read out of range: %w", ErrTransferFailed)
		}
		copy(dst[dstOff:dstOff+region.W*bpp], data[srcOff:srcOff+region.W*bpp])
	}
	return nil
}

func (s *Software) WriteImage(img *Image, region Rectangle, src []byte, rowstride int) error {
	data := s.bytes(img)
	bpp := img.Format.BytesPerPixel()
	dstStride := img.Width * bpp
	srcStride := rowstride
	if srcStride == 0 {
		srcStride = region.W * bpp
	}
	for row := 0; row < region.H; row++ {
		dstOff := (region.Y+row)*dstStride + region.X*bpp
		srcOff := row * srcStride
		if dstOff+region.W*bpp > len(data) || srcOff+region.W*bpp > len(src) {
			return fmt.Errorf("software device: write out of range: %w", ErrTransferFailed)
		}
		copy(data[dstOff:dstOff+region.W*bpp], src[srcOff:srcOff+region.W*bpp])
	}
	return nil
}

func (s *Software) CopyImage(src *Image, srcRegion Rectangle, dst *Image, dstOrigin Point) error {
	bpp := src.Format.BytesPerPixel()
	buf := make([]byte, srcRegion.W*bpp*srcRegion.H)
	if err := s.ReadImage(src, srcRegion, buf, srcRegion.W*bpp); err != nil {
		return err
	}
	dstRegion := Rectangle{X: dstOrigin.X, Y: dstOrigin.Y, W: srcRegion.W, H: srcRegion.H}
	return s.WriteImage(dst, dstRegion, buf, srcRegion.W*bpp)
}

func (s *Software) Barrier() error { return nil }
func (s *Software) Finish() error  { return nil }

func (s *Software) BuildKernel(name string, source string) (*Kernel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.kernels[name]; ok {
		return k, nil
	}
	k := &Kernel{Handle: source, Name: name}
	s.kernels[name] = k
	return k, nil
}

// Dispatch runs a conversion as a per-pixel CPU loop. The conversion is
// chosen by srcFormat and dstFormat alone (the whole format.Conversion
// plan between them); k is not consulted. Equal formats are a straight
// byte copy.
func (s *Software) Dispatch(k *Kernel, src, dst *Image, region Rectangle, srcFormat, dstFormat format.PixelFormat) error {
	s.mu.Lock()
	s.dispatch++
	s.mu.Unlock()

	srcBpp := srcFormat.BytesPerPixel()
	buf := make([]byte, region.W*srcBpp*region.H)
	if err := s.ReadImage(src, region, buf, region.W*srcBpp); err != nil {
		return err
	}
	converted := convertPixels(buf, srcFormat, dstFormat)
	dstBpp := dstFormat.BytesPerPixel()
	dstRegion := Rectangle{X: region.X, Y: region.Y, W: region.W, H: region.H}
	return s.WriteImage(dst, dstRegion, converted, region.W*dstBpp)
}

// DispatchCount reports how many kernel dispatches this gateway has
// performed, for tests asserting conversion-pass counts.
func (s *Software) DispatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatch
}
