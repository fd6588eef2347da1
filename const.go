package tilecache

// Externally controlled constants. Each protects a specific invariant
// documented at its declaration; none are expected to vary at runtime.
const (
	// MaxStreams is the maximum number of streams a HostIterator or
	// DeviceIterator may hold. It must be at least 6.
	MaxStreams = 8

	// BatchSize is the number of consecutive tile steps a DeviceIterator
	// groups under one pair of opening/closing barriers before fencing the
	// device queue again.
	BatchSize = 4

	// WorkerCount is the fixed size of the CPU worker pool used for
	// parallel host<->device band transfers.
	WorkerCount = 4

	// WorkerBandThreshold is the minimum pixel count (width * height) a
	// host<->device transfer must reach before DeviceIterator splits it
	// into WorkerCount bands on the shared worker pool; below it, the
	// goroutine fan-out costs more than the single-threaded copy it would
	// save.
	WorkerBandThreshold = 256 * 256

	// SmallReadThreshold is CacheFrom's small-read cutoff (in pixels): a
	// requested region whose width and height are both below it never
	// attempts a device-resident read, since the CPU tile path is cheaper.
	// A region with either dimension at or above it does attempt one.
	SmallReadThreshold = 256

	// ShadowEpsilon is the base epsilon used when logging floating point
	// shadow-memory comparisons.
	ShadowEpsilon = 2.3e-5
)
