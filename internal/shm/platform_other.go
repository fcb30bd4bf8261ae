//go:build !linux && !darwin

package shm

import (
	"context"
	"os"
	"time"
)

// MapRegion is not implemented on this platform.
func MapRegion(_ context.Context, _ MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

// UnmapRegion is a no-op on this platform.
func UnmapRegion(_ context.Context, _ *MappedRegion) error {
	return nil
}

// EnsureDir is not implemented on this platform.
func EnsureDir(_ string, _ os.FileMode) error {
	return ErrUnsupported
}

var processStart = time.Now()

// MonotonicNanos falls back to the process-local monotonic clock.
func MonotonicNanos() uint64 {
	return uint64(time.Since(processStart).Nanoseconds())
}
