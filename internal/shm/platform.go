// Package shm contains the platform-specific helpers behind the shared volume state:
// directory preparation, file sizing, memory mapping and atomic access to mapped words.
package shm

import (
	"errors"
	"os"
	"unsafe"
)

// Failure kinds reported by MapRegion. Every returned error wraps exactly one of them.
var (
	ErrDirectory   = errors.New("shared memory directory unavailable")
	ErrOpen        = errors.New("shared memory file open failed")
	ErrResize      = errors.New("shared memory file resize failed")
	ErrMap         = errors.New("shared memory mapping failed")
	ErrNoSpace     = errors.New("not enough space left for shared memory")
	ErrTooSmall    = errors.New("shared memory file smaller than the layout")
	ErrUnsupported = errors.New("shared memory mapping not supported on this platform")
)

// MappedRegion represents a memory-mapped shared region and the handle backing it.
type MappedRegion struct {
	Addr []byte
	Path string

	fd int
}

// Pointer returns the address of the first mapped byte.
func (r *MappedRegion) Pointer() unsafe.Pointer {
	if r == nil || len(r.Addr) == 0 {
		return nil
	}
	return unsafe.Pointer(&r.Addr[0])
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	// Path is the backing file. Its parent directory is prepared when Create is set.
	Path string
	// Size is the exact number of bytes mapped, and the file size when creating.
	Size int
	// Create allows creating the directory and the file, and sizes the file.
	Create bool
	// DirMode is applied to a directory this call creates.
	DirMode os.FileMode
	// FileMode is used when the file is created.
	FileMode os.FileMode
}

// Function implementations are provided in platform-specific files (platform_unix.go, platform_other.go).
