package tilecache

import (
	"bytes"
	"testing"

	"github.com/gogpu/tilecache/internal/device"
	"github.com/gogpu/tilecache/internal/format"
	"github.com/gogpu/tilecache/internal/testbuffer"
)

// A region at or above WorkerBandThreshold pixels must round-trip
// identically whether or not the worker pool bands it, and the banded path
// must actually exercise Bands/Run rather than silently falling back.
func TestUploadDownloadBandedRoundTripsLargeRegion(t *testing.T) {
	gw := device.NewSoftware(0)
	buf := testbuffer.New(512, 512, 512, 512, format.RGBAU8SRGB)
	roi := NewRectangle(0, 0, 512, 512)
	if roi.W*roi.H < WorkerBandThreshold {
		t.Fatalf("test fixture too small to exercise the banded path")
	}

	want := make([]byte, roi.W*roi.H*4)
	for i := range want {
		want[i] = byte(i)
	}
	if err := buf.Set(roi, format.RGBAU8SRGB, want, 0); err != nil {
		t.Fatal(err)
	}

	img, err := gw.CreateImage(roi.W, roi.H, format.RGBAU8SRGB)
	if err != nil {
		t.Fatal(err)
	}

	uploadHost := make([]byte, roi.W*roi.H*4)
	if err := uploadBanded(gw, buf, img, roi, format.RGBAU8SRGB, uploadHost); err != nil {
		t.Fatalf("uploadBanded: %v", err)
	}

	deviceGot := make([]byte, roi.W*roi.H*4)
	if err := gw.ReadImage(img, device.Rectangle{X: 0, Y: 0, W: roi.W, H: roi.H}, deviceGot, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(deviceGot, want) {
		t.Fatalf("uploadBanded did not transfer every band to the device image")
	}

	// Overwrite the device image with a distinct pattern, then download it
	// back to a fresh buffer to exercise downloadBanded's own bands.
	fill := make([]byte, roi.W*roi.H*4)
	for i := range fill {
		fill[i] = byte(255 - i)
	}
	if err := gw.WriteImage(img, device.Rectangle{X: 0, Y: 0, W: roi.W, H: roi.H}, fill, 0); err != nil {
		t.Fatal(err)
	}

	dlBuf := testbuffer.New(512, 512, 512, 512, format.RGBAU8SRGB)
	downloadHost := make([]byte, roi.W*roi.H*4)
	if err := downloadBanded(gw, dlBuf, img, roi, format.RGBAU8SRGB, downloadHost); err != nil {
		t.Fatalf("downloadBanded: %v", err)
	}
	if !bytes.Equal(dlBuf.Pixels(), fill) {
		t.Fatalf("downloadBanded did not write every band back to the buffer")
	}
}

// A region below WorkerBandThreshold must still round-trip via the direct
// single-shot path.
func TestUploadDownloadBandedSmallRegionTakesDirectPath(t *testing.T) {
	gw := device.NewSoftware(0)
	buf := testbuffer.New(64, 64, 64, 64, format.RGBAU8SRGB)
	roi := NewRectangle(0, 0, 64, 64)
	if roi.W*roi.H >= WorkerBandThreshold {
		t.Fatalf("test fixture should be below the banding threshold")
	}

	want := make([]byte, roi.W*roi.H*4)
	for i := range want {
		want[i] = byte(i * 3)
	}
	if err := buf.Set(roi, format.RGBAU8SRGB, want, 0); err != nil {
		t.Fatal(err)
	}

	img, err := gw.CreateImage(roi.W, roi.H, format.RGBAU8SRGB)
	if err != nil {
		t.Fatal(err)
	}
	host := make([]byte, roi.W*roi.H*4)
	if err := uploadBanded(gw, buf, img, roi, format.RGBAU8SRGB, host); err != nil {
		t.Fatalf("uploadBanded: %v", err)
	}

	got := make([]byte, roi.W*roi.H*4)
	if err := gw.ReadImage(img, device.Rectangle{X: 0, Y: 0, W: roi.W, H: roi.H}, got, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("small-region upload did not match")
	}
}
