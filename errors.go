package tilecache

import "errors"

// Sentinel errors for the error kinds this package distinguishes. Wrap with
// fmt.Errorf("tilecache: %s: %w", ctx, Err...) at the point of origin and
// compare with errors.Is.
var (
	// ErrDeviceAllocFailure indicates the device refused an allocation and
	// the eviction-and-retry loop could not reclaim enough memory.
	ErrDeviceAllocFailure = errors.New("tilecache: device allocation failure")

	// ErrDeviceTransferFailure indicates a map/unmap/read/write/copy
	// operation against the device failed.
	ErrDeviceTransferFailure = errors.New("tilecache: device transfer failure")

	// ErrConversionUnsupported indicates the requested format pair has no
	// conversion path in the registry.
	ErrConversionUnsupported = errors.New("tilecache: unsupported format conversion")

	// ErrContractViolation indicates a programming error: disposing a
	// locked entry, exceeding the maximum stream count, or advancing a
	// finished iterator.
	ErrContractViolation = errors.New("tilecache: contract violation")

	// ErrTileLockFailure indicates the underlying buffer's tile store
	// refused a lock.
	ErrTileLockFailure = errors.New("tilecache: tile lock failure")

	// ErrEntryLocked indicates an operation targeted a CacheEntry that is
	// currently the target of an in-flight transfer.
	ErrEntryLocked = errors.New("tilecache: entry is locked")
)
