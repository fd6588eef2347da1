package tilecache

import (
	"fmt"

	"github.com/gogpu/tilecache/internal/device"
	"github.com/gogpu/tilecache/internal/format"
)

// CacheFrom tries to satisfy a CPU-side read of roi, converted to f, from
// buffer's device-resident cache, writing into dest at rowstride (0 means
// tightly packed). It returns true iff served from the cache; false means
// the caller must fall back to the buffer's own tile store.
func (s *Store) CacheFrom(buffer BufferHandle, roi Rectangle, dest []byte, f format.PixelFormat, rowstride int) (bool, error) {
	if roi.W < SmallReadThreshold && roi.H < SmallReadThreshold {
		return false, nil
	}

	entry := s.findContainingDirty(buffer, roi)
	if entry == nil {
		return false, nil
	}

	plan := format.Conversion(buffer.Format(), f)
	switch plan.Kind {
	case format.Unsupported:
		if err := s.Invalidate(buffer, roi); err != nil {
			return false, err
		}
		return false, nil

	case format.Equal:
		if err := s.gw.ReadImage(entry.tex, toDeviceRect(relative(roi, entry.roi)), dest, rowstride); err != nil {
			if ierr := s.Invalidate(buffer, roi); ierr != nil {
				return false, ierr
			}
			return false, nil
		}
		s.bump(entry)
		return true, nil

	case format.Convert:
		if err := s.convertFrom(entry, roi, dest, f, rowstride, plan); err != nil {
			if ierr := s.Invalidate(buffer, roi); ierr != nil {
				return false, ierr
			}
			return false, nil
		}
		s.bump(entry)
		return true, nil

	default:
		return false, fmt.Errorf("tilecache: cache_from: %w", ErrContractViolation)
	}
}

// findContainingDirty returns the first Dirty entry of buffer whose roi
// fully contains target, walking the per-buffer LRU in MRU order.
func (s *Store) findContainingDirty(buffer BufferHandle, target Rectangle) *CacheEntry {
	l := s.listFor(buffer)
	for e := l.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*CacheEntry)
		if entry.mode == Dirty && entry.roi.Contains(target) {
			return entry
		}
	}
	return nil
}

// convertFrom runs the Convert path of CacheFrom: allocate a NoCache
// temporary in the target format, optionally copy+barrier through a
// second temporary in the source format when entry.roi and roi differ,
// convert on the device, then read back. Both temporaries are always
// disposed before returning, on every exit including error paths.
func (s *Store) convertFrom(entry *CacheEntry, roi Rectangle, dest []byte, f format.PixelFormat, rowstride int, plan format.Plan) error {
	aux, err := s.gw.CreateImage(roi.W, roi.H, f)
	if err != nil {
		return fmt.Errorf("tilecache: cache_from: allocating aux image: %w", ErrDeviceTransferFailure)
	}
	auxEntry := s.Set(entry.buffer, aux, roi, NoCache)
	defer s.disposeTemp(auxEntry)

	var convertSrc *device.Image
	if entry.roi.Equal(roi) {
		convertSrc = entry.tex
	} else {
		buf, err := s.gw.CreateImage(roi.W, roi.H, entry.tex.Format)
		if err != nil {
			return fmt.Errorf("tilecache: cache_from: allocating buf image: %w", ErrDeviceTransferFailure)
		}
		bufEntry := s.Set(entry.buffer, buf, roi, NoCache)
		defer s.disposeTemp(bufEntry)

		sub := relative(roi, entry.roi)
		if err := s.gw.CopyImage(entry.tex, toDeviceRect(sub), buf, device.Point{}); err != nil {
			return fmt.Errorf("tilecache: cache_from: copying sub-region: %w", ErrDeviceTransferFailure)
		}
		if err := s.gw.Barrier(); err != nil {
			return fmt.Errorf("tilecache: cache_from: barrier: %w", ErrDeviceTransferFailure)
		}
		convertSrc = buf
	}

	if err := s.runConversion(convertSrc, aux, roi, entry.tex.Format, f, plan); err != nil {
		return err
	}

	full := device.Rectangle{X: 0, Y: 0, W: roi.W, H: roi.H}
	if err := s.gw.ReadImage(aux, full, dest, rowstride); err != nil {
		return fmt.Errorf("tilecache: cache_from: reading converted image: %w", ErrDeviceTransferFailure)
	}
	return nil
}

// runConversion dispatches one or two colour-conversion kernels per plan.
// A two-step plan runs through an intermediate image allocated as
// RGBAFloatLinear, and both dispatches name it RGBAFloatLinear, including
// on the uint8 routes whose first kernel ends in a float sRGB format.
func (s *Store) runConversion(src, dst *device.Image, region Rectangle, srcFormat, dstFormat format.PixelFormat, plan format.Plan) error {
	k1, err := s.buildKernel(plan.Step1)
	if err != nil {
		return err
	}
	rect := device.Rectangle{X: 0, Y: 0, W: region.W, H: region.H}

	if plan.Step2 < 0 {
		if err := s.gw.Dispatch(k1, src, dst, rect, srcFormat, dstFormat); err != nil {
			return fmt.Errorf("tilecache: cache_from: conversion dispatch: %w", ErrDeviceTransferFailure)
		}
		return nil
	}

	mid, err := s.gw.CreateImage(region.W, region.H, format.RGBAFloatLinear)
	if err != nil {
		return fmt.Errorf("tilecache: cache_from: allocating intermediate: %w", ErrDeviceTransferFailure)
	}
	defer s.gw.DestroyImage(mid)

	if err := s.gw.Dispatch(k1, src, mid, rect, srcFormat, format.RGBAFloatLinear); err != nil {
		return fmt.Errorf("tilecache: cache_from: first conversion dispatch: %w", ErrDeviceTransferFailure)
	}
	if err := s.gw.Barrier(); err != nil {
		return fmt.Errorf("tilecache: cache_from: barrier between conversions: %w", ErrDeviceTransferFailure)
	}
	k2, err := s.buildKernel(plan.Step2)
	if err != nil {
		return err
	}
	if err := s.gw.Dispatch(k2, mid, dst, rect, format.RGBAFloatLinear, dstFormat); err != nil {
		return fmt.Errorf("tilecache: cache_from: second conversion dispatch: %w", ErrDeviceTransferFailure)
	}
	return nil
}

func (s *Store) buildKernel(step int) (*device.Kernel, error) {
	name := device.KernelName(step)
	src, err := device.CompileKernel(step)
	if err != nil {
		return nil, fmt.Errorf("tilecache: compiling kernel %s: %w", name, err)
	}
	k, err := s.gw.BuildKernel(name, string(src))
	if err != nil {
		return nil, fmt.Errorf("tilecache: building kernel %s: %w", name, ErrDeviceTransferFailure)
	}
	return k, nil
}

// disposeTemp disposes a NoCache temporary entry created during a
// conversion, ignoring the (impossible, since it was just created and is
// never locked) error case.
func (s *Store) disposeTemp(entry *CacheEntry) {
	_ = s.disposeEntry(entry)
}

// relative expresses target in coordinates local to container's origin.
func relative(target, container Rectangle) Rectangle {
	return Rectangle{X: target.X - container.X, Y: target.Y - container.Y, W: target.W, H: target.H}
}

func toDeviceRect(r Rectangle) device.Rectangle {
	return device.Rectangle{X: r.X, Y: r.Y, W: r.W, H: r.H}
}
