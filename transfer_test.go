package tilecache

import (
	"testing"

	"github.com/gogpu/tilecache/internal/device"
	"github.com/gogpu/tilecache/internal/format"
	"github.com/gogpu/tilecache/internal/testbuffer"
)

func TestCacheFromSkipsSmallReads(t *testing.T) {
	s, _ := newTestStore(0)
	buf := testbuffer.New(512, 512, 128, 128, format.RGBAU8SRGB)

	dest := make([]byte, 64*64*4)
	ok, err := s.CacheFrom(buf, NewRectangle(0, 0, 64, 64), dest, format.RGBAU8SRGB, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected small read to bypass the cache")
	}
}

func TestCacheFromMissWithoutDirtyEntry(t *testing.T) {
	s, _ := newTestStore(0)
	buf := testbuffer.New(1024, 1024, 128, 128, format.RGBAU8SRGB)

	dest := make([]byte, 256*256*4)
	ok, err := s.CacheFrom(buf, NewRectangle(0, 0, 256, 256), dest, format.RGBAU8SRGB, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected miss with no Dirty entry present")
	}
}

func TestCacheFromEqualFormatReadsDirectlyFromDevice(t *testing.T) {
	s, gw := newTestStore(0)
	buf := testbuffer.New(1024, 1024, 128, 128, format.RGBAU8SRGB)
	roi := NewRectangle(0, 0, 256, 256)

	img, err := gw.CreateImage(roi.W, roi.H, format.RGBAU8SRGB)
	if err != nil {
		t.Fatal(err)
	}
	want := make([]byte, roi.W*roi.H*4)
	for i := range want {
		want[i] = byte(i % 251)
	}
	if err := gw.WriteImage(img, device.Rectangle{X: 0, Y: 0, W: roi.W, H: roi.H}, want, 0); err != nil {
		t.Fatal(err)
	}
	s.Set(buf, img, roi, Dirty)

	dest := make([]byte, roi.W*roi.H*4)
	ok, err := s.CacheFrom(buf, roi, dest, format.RGBAU8SRGB, 0)
	if err != nil {
		t.Fatalf("cache_from: %v", err)
	}
	if !ok {
		t.Fatalf("expected a cache hit on the Equal path")
	}
	for i := range want {
		if dest[i] != want[i] {
			t.Fatalf("pixel %d mismatch: want %d got %d", i, want[i], dest[i])
		}
	}
}

func TestCacheFromConvertPathSingleStep(t *testing.T) {
	s, gw := newTestStore(0)
	buf := testbuffer.New(1024, 1024, 128, 128, format.RGBAU8SRGB)
	roi := NewRectangle(0, 0, 256, 256)

	img, err := gw.CreateImage(roi.W, roi.H, format.RGBAU8SRGB)
	if err != nil {
		t.Fatal(err)
	}
	s.Set(buf, img, roi, Dirty)

	dest := make([]byte, roi.W*roi.H*16) // RGBAFloatSRGB is 16 bytes/pixel
	ok, err := s.CacheFrom(buf, roi, dest, format.RGBAFloatSRGB, 0)
	if err != nil {
		t.Fatalf("cache_from: %v", err)
	}
	if !ok {
		t.Fatalf("expected a cache hit on the Convert path")
	}
	if gw.DispatchCount() != 1 {
		t.Fatalf("expected exactly one kernel dispatch, got %d", gw.DispatchCount())
	}
}

func TestCacheFromConvertPathTwoSteps(t *testing.T) {
	s, gw := newTestStore(0)
	buf := testbuffer.New(1024, 1024, 128, 128, format.RGBAU8SRGB)
	roi := NewRectangle(0, 0, 256, 256)

	img, err := gw.CreateImage(roi.W, roi.H, format.RGBAU8SRGB)
	if err != nil {
		t.Fatal(err)
	}
	s.Set(buf, img, roi, Dirty)

	dest := make([]byte, roi.W*roi.H*16)
	ok, err := s.CacheFrom(buf, roi, dest, format.RGBAFloatLinear, 0)
	if err != nil {
		t.Fatalf("cache_from: %v", err)
	}
	if !ok {
		t.Fatalf("expected a cache hit on the two-step Convert path")
	}
	if gw.DispatchCount() != 2 {
		t.Fatalf("expected exactly two kernel dispatches, got %d", gw.DispatchCount())
	}
}

func TestCacheFromUnsupportedInvalidatesAndMisses(t *testing.T) {
	s, gw := newTestStore(0)
	buf := testbuffer.New(1024, 1024, 128, 128, format.RGBAU8SRGBPremul)
	roi := NewRectangle(0, 0, 256, 256)

	img, err := gw.CreateImage(roi.W, roi.H, format.RGBAU8SRGBPremul)
	if err != nil {
		t.Fatal(err)
	}
	entry := s.Set(buf, img, roi, Dirty)

	dest := make([]byte, roi.W*roi.H*4)
	ok, err := s.CacheFrom(buf, roi, dest, format.RGBAU8SRGB, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected Unsupported pair to report a miss")
	}
	if entry.Mode() != Clean {
		t.Fatalf("expected invalidate to merge the Dirty entry to Clean, got %v", entry.Mode())
	}
}

func TestCacheFromConvertPathSubregionCopiesFirst(t *testing.T) {
	s, gw := newTestStore(0)
	buf := testbuffer.New(1024, 1024, 128, 128, format.RGBAU8SRGB)
	entryROI := NewRectangle(0, 0, 512, 512)
	readROI := NewRectangle(0, 0, 256, 256)

	img, err := gw.CreateImage(entryROI.W, entryROI.H, format.RGBAU8SRGB)
	if err != nil {
		t.Fatal(err)
	}
	s.Set(buf, img, entryROI, Dirty)

	dest := make([]byte, readROI.W*readROI.H*16)
	ok, err := s.CacheFrom(buf, readROI, dest, format.RGBAFloatSRGB, 0)
	if err != nil {
		t.Fatalf("cache_from: %v", err)
	}
	if !ok {
		t.Fatalf("expected a hit when the containing entry is larger than the request")
	}
}

func TestFallbackConvertSameU8FormatKeepsSize(t *testing.T) {
	src := make([]byte, 4*4*4)
	for i := range src {
		src[i] = byte(i)
	}
	out, err := FallbackConvert(src, 4, 4, format.RGBAU8SRGBPremul, format.RGBAU8SRGBPremul)
	if err != nil {
		t.Fatalf("fallback_convert: %v", err)
	}
	if len(out) != len(src) {
		t.Fatalf("expected same-size output, got %d vs %d", len(out), len(src))
	}
}
