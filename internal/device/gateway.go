// Package device abstracts the OpenCL-like device API this module drives:
// context, command queue, image create/destroy, map/unmap, read/write/copy
// image, barrier, finish, and kernel build/dispatch. Two implementations
// are provided: Software, a reference implementation backed by plain host
// memory for use in tests, and the wgpu/gpucontext/naga-backed
// implementation in hardware.go for real devices.
package device

import (
	"errors"

	"github.com/gogpu/tilecache/internal/format"
)

// Errors surfaced by a Gateway. Callers compare with errors.Is.
var (
	// ErrOutOfResources signals a transient device allocation failure the
	// caller should retry after evicting other images.
	ErrOutOfResources = errors.New("device: out of resources")
	// ErrAllocationFailed signals an allocation failure. The cache's
	// Request treats it like ErrOutOfResources: evict, then retry.
	ErrAllocationFailed = errors.New("device: allocation failed")
	// ErrTransferFailed signals a map/unmap/read/write/copy failure.
	ErrTransferFailed = errors.New("device: transfer failed")
)

// Image is an opaque device-resident image. Concrete Gateway
// implementations populate Handle with their own representation (a plain
// byte slice for Software, a wgpu core.TextureID for the hardware
// implementation).
type Image struct {
	Handle any
	Width  int
	Height int
	Format format.PixelFormat
}

// Kernel is an opaque compiled device kernel handle, produced by
// Gateway.BuildKernel.
type Kernel struct {
	Handle any
	Name   string
}

// Gateway is the façade every cache and iterator component drives the
// device through. Implementations need not be safe for concurrent use from
// multiple goroutines beyond what a single command queue naturally
// serialises; callers already hold a buffer lock around any sequence of
// calls against one buffer (see the concurrency model).
type Gateway interface {
	// CreateImage allocates a device image of the given dimensions and
	// format. Returns ErrOutOfResources or ErrAllocationFailed on failure.
	CreateImage(width, height int, f format.PixelFormat) (*Image, error)
	// DestroyImage releases a device image created by CreateImage.
	DestroyImage(img *Image) error

	// MapImage blocks until img's bytes are available on the host and
	// returns a slice view over them (rowmajor, tightly packed).
	MapImage(img *Image) ([]byte, error)
	// UnmapImage ends a MapImage view, flushing any host writes back to
	// the device if the mapping was opened for write.
	UnmapImage(img *Image) error

	// ReadImage performs a blocking device->host read of region from img
	// into dst at the given rowstride (0 means tightly packed).
	ReadImage(img *Image, region Rectangle, dst []byte, rowstride int) error
	// WriteImage performs a device<-host write of region into img from
	// src at the given rowstride.
	WriteImage(img *Image, region Rectangle, src []byte, rowstride int) error
	// CopyImage copies srcRegion of src into dst at dstOrigin, entirely
	// device-side.
	CopyImage(src *Image, srcRegion Rectangle, dst *Image, dstOrigin Point) error

	// Barrier enqueues a happens-before boundary between commands already
	// enqueued and commands enqueued afterwards.
	Barrier() error
	// Finish blocks the host until the command queue drains.
	Finish() error

	// BuildKernel compiles source (WGSL) into a kernel named name,
	// suitable for repeated Dispatch calls.
	BuildKernel(name string, source string) (*Kernel, error)
	// Dispatch enqueues k against src, producing dst, over the given
	// pixel region, converting from srcFormat to dstFormat.
	Dispatch(k *Kernel, src, dst *Image, region Rectangle, srcFormat, dstFormat format.PixelFormat) error
}

// Rectangle mirrors the root package's Rectangle without importing it, to
// keep this package free of a dependency on the parent module.
type Rectangle struct {
	X, Y, W, H int
}

// Point is an integer 2D coordinate.
type Point struct {
	X, Y int
}
