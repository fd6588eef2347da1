package tilecache

import (
	"bytes"
	"testing"

	"github.com/gogpu/tilecache/internal/device"
	"github.com/gogpu/tilecache/internal/devimage"
	"github.com/gogpu/tilecache/internal/format"
	"github.com/gogpu/tilecache/internal/testbuffer"
)

func TestDeviceIteratorReadStreamUploadsEveryTile(t *testing.T) {
	gw := device.NewSoftware(0)
	pool := devimage.New(gw)
	buf := testbuffer.New(256, 256, 128, 128, format.RGBAU8SRGB)

	pix := buf.Pixels()
	for i := range pix {
		pix[i] = byte(i % 256)
	}
	if err := buf.Set(NewRectangle(0, 0, 256, 256), format.RGBAU8SRGB, pix, 0); err != nil {
		t.Fatal(err)
	}

	it := NewDeviceIterator(gw, pool, buf, NewRectangle(0, 0, 256, 256), format.RGBAU8SRGB, StreamCLRead)

	steps := 0
	for {
		ok, err := it.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		steps++

		roi := it.ROI(0)
		img := it.Image(0)
		if img == nil {
			t.Fatalf("expected a non-nil image for roi %v", roi)
		}
		want := make([]byte, roi.W*roi.H*4)
		if err := buf.Get(roi, format.RGBAU8SRGB, want, 0); err != nil {
			t.Fatal(err)
		}
		got := make([]byte, roi.W*roi.H*4)
		if err := gw.ReadImage(img, device.Rectangle{X: 0, Y: 0, W: roi.W, H: roi.H}, got, 0); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("device image for roi %v did not match buffer contents", roi)
		}
	}
	if steps != 4 {
		t.Fatalf("expected 4 tile-steps, got %d", steps)
	}
}

func TestDeviceIteratorWriteStreamFlushesBackToBuffer(t *testing.T) {
	gw := device.NewSoftware(0)
	pool := devimage.New(gw)
	buf := testbuffer.New(256, 256, 128, 128, format.RGBAU8SRGB)

	it := NewDeviceIterator(gw, pool, buf, NewRectangle(0, 0, 256, 256), format.RGBAU8SRGB, StreamCLWrite)

	for {
		ok, err := it.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		roi := it.ROI(0)
		img := it.Image(0)
		fill := make([]byte, roi.W*roi.H*4)
		for i := range fill {
			fill[i] = 0x5A
		}
		if err := gw.WriteImage(img, device.Rectangle{X: 0, Y: 0, W: roi.W, H: roi.H}, fill, 0); err != nil {
			t.Fatal(err)
		}
	}

	got := buf.Pixels()
	for i, b := range got {
		if b != 0x5A {
			t.Fatalf("byte %d: expected flushed write 0x5A, got 0x%02X", i, b)
		}
	}
}

func TestDeviceIteratorCoversMultipleBarrierBatches(t *testing.T) {
	gw := device.NewSoftware(0)
	pool := devimage.New(gw)
	// 512x512 over 128x128 tiles is 16 tiles; BatchSize is 4, so this spans
	// four separate barrier-bracketed batches of steps.
	buf := testbuffer.New(512, 512, 128, 128, format.RGBAU8SRGB)

	it := NewDeviceIterator(gw, pool, buf, NewRectangle(0, 0, 512, 512), format.RGBAU8SRGB, StreamCLRead)

	steps := 0
	for {
		ok, err := it.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		steps++
		if it.Length() != 128*128 {
			t.Fatalf("step %d: expected a full tile's worth of pixels, got %d", steps, it.Length())
		}
	}
	if steps != 16 {
		t.Fatalf("expected 16 tile-steps across 4 batches of %d, got %d", BatchSize, steps)
	}
}

func TestDeviceIteratorEndForcesCleanup(t *testing.T) {
	gw := device.NewSoftware(0)
	pool := devimage.New(gw)
	buf := testbuffer.New(256, 256, 128, 128, format.RGBAU8SRGB)

	it := NewDeviceIterator(gw, pool, buf, NewRectangle(0, 0, 256, 256), format.RGBAU8SRGB, StreamCLWrite)

	ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("expected a step, got ok=%v err=%v", ok, err)
	}
	img := it.Image(0)
	roi := it.ROI(0)
	fill := make([]byte, roi.W*roi.H*4)
	for i := range fill {
		fill[i] = 0x11
	}
	if err := gw.WriteImage(img, device.Rectangle{X: 0, Y: 0, W: roi.W, H: roi.H}, fill, 0); err != nil {
		t.Fatal(err)
	}

	if err := it.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	// End must flush the pending write even though iteration didn't drain
	// to completion naturally.
	got := make([]byte, roi.W*roi.H*4)
	if err := buf.Get(roi, format.RGBAU8SRGB, got, 0); err != nil {
		t.Fatal(err)
	}
	for i, b := range got {
		if b != 0x11 {
			t.Fatalf("byte %d: expected flushed write 0x11 after End, got 0x%02X", i, b)
		}
	}

	// End is safe to call again.
	if err := it.End(); err != nil {
		t.Fatalf("second end: %v", err)
	}

	if _, err := it.Next(); err == nil {
		t.Fatalf("expected Next to reject calls after End")
	}
}

func TestDeviceIteratorTwoStreamsCopyThroughDevice(t *testing.T) {
	gw := device.NewSoftware(0)
	pool := devimage.New(gw)
	src := testbuffer.New(256, 256, 128, 128, format.RGBAU8SRGB)
	dst := testbuffer.New(256, 256, 128, 128, format.RGBAU8SRGB)

	pix := src.Pixels()
	for i := range pix {
		pix[i] = byte((i * 7) % 256)
	}
	if err := src.Set(NewRectangle(0, 0, 256, 256), format.RGBAU8SRGB, pix, 0); err != nil {
		t.Fatal(err)
	}

	it := NewDeviceIterator(gw, pool, src, NewRectangle(0, 0, 256, 256), format.RGBAU8SRGB, StreamCLRead)
	idx, err := it.AddStream(dst, nil, format.RGBAU8SRGB, StreamCLWrite)
	if err != nil {
		t.Fatalf("add_stream: %v", err)
	}

	for {
		ok, err := it.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		roi := it.ROI(0)
		host := make([]byte, roi.W*roi.H*4)
		if err := gw.ReadImage(it.Image(0), device.Rectangle{X: 0, Y: 0, W: roi.W, H: roi.H}, host, 0); err != nil {
			t.Fatal(err)
		}
		if err := gw.WriteImage(it.Image(idx), device.Rectangle{X: 0, Y: 0, W: roi.W, H: roi.H}, host, 0); err != nil {
			t.Fatal(err)
		}
	}

	if !bytes.Equal(src.Pixels(), dst.Pixels()) {
		t.Fatalf("expected dst to mirror src after a device-routed copy pass")
	}
}
