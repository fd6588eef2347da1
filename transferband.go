package tilecache

import (
	"fmt"

	"github.com/gogpu/tilecache/internal/device"
	"github.com/gogpu/tilecache/internal/format"
	"github.com/gogpu/tilecache/internal/worker"
)

// uploadBanded copies roi of buffer into img (already sized roi.W x roi.H,
// format f) through host, a scratch slice of exactly roi.W*roi.H*bpp bytes.
// Regions at or above WorkerBandThreshold pixels are split into WorkerCount
// horizontal bands and transferred concurrently on the shared worker pool;
// smaller regions take the direct single-shot path.
func uploadBanded(gw device.Gateway, buffer BufferHandle, img *device.Image, roi Rectangle, f format.PixelFormat, host []byte) error {
	if roi.W*roi.H < WorkerBandThreshold {
		if err := buffer.Get(roi, f, host, 0); err != nil {
			return fmt.Errorf("tilecache: upload: reading buffer: %w", ErrDeviceTransferFailure)
		}
		rect := device.Rectangle{X: 0, Y: 0, W: roi.W, H: roi.H}
		if err := gw.WriteImage(img, rect, host, 0); err != nil {
			return fmt.Errorf("tilecache: upload: writing image: %w", ErrDeviceTransferFailure)
		}
		return nil
	}

	bpp := f.BytesPerPixel()
	bands := worker.Bands(0, 0, roi.W, roi.H, bpp)
	err := sharedWorkerPool().Run(bands, func(b worker.Band) error {
		band := host[b.Offset : b.Offset+b.W*b.H*bpp]
		bandROI := Rectangle{X: roi.X + b.X, Y: roi.Y + b.Y, W: b.W, H: b.H}
		if err := buffer.Get(bandROI, f, band, 0); err != nil {
			return err
		}
		rect := device.Rectangle{X: b.X, Y: b.Y, W: b.W, H: b.H}
		return gw.WriteImage(img, rect, band, 0)
	})
	if err != nil {
		return fmt.Errorf("tilecache: upload: banded transfer: %w", ErrDeviceTransferFailure)
	}
	return nil
}

// downloadBanded is uploadBanded's mirror image: it reads img back through
// host and writes it into roi of buffer, banding the transfer across the
// shared worker pool once the region reaches WorkerBandThreshold pixels.
func downloadBanded(gw device.Gateway, buffer BufferHandle, img *device.Image, roi Rectangle, f format.PixelFormat, host []byte) error {
	if roi.W*roi.H < WorkerBandThreshold {
		rect := device.Rectangle{X: 0, Y: 0, W: roi.W, H: roi.H}
		if err := gw.ReadImage(img, rect, host, 0); err != nil {
			return fmt.Errorf("tilecache: download: reading image: %w", ErrDeviceTransferFailure)
		}
		if err := buffer.Set(roi, f, host, 0); err != nil {
			return fmt.Errorf("tilecache: download: writing buffer: %w", ErrDeviceTransferFailure)
		}
		return nil
	}

	bpp := f.BytesPerPixel()
	bands := worker.Bands(0, 0, roi.W, roi.H, bpp)
	err := sharedWorkerPool().Run(bands, func(b worker.Band) error {
		band := host[b.Offset : b.Offset+b.W*b.H*bpp]
		rect := device.Rectangle{X: b.X, Y: b.Y, W: b.W, H: b.H}
		if err := gw.ReadImage(img, rect, band, 0); err != nil {
			return err
		}
		bandROI := Rectangle{X: roi.X + b.X, Y: roi.Y + b.Y, W: b.W, H: b.H}
		return buffer.Set(bandROI, f, band, 0)
	})
	if err != nil {
		return fmt.Errorf("tilecache: download: banded transfer: %w", ErrDeviceTransferFailure)
	}
	return nil
}
