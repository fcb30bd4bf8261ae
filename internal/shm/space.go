package shm

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

const devShm = "/dev/shm"

// canCreate reports whether size more bytes fit next to path. Only tmpfs under
// /dev/shm on linux is checked; there a mapping past the free space faults on
// first touch instead of failing the truncate.
func canCreate(size uint64, path string) bool {
	if runtime.GOOS != "linux" {
		return true
	}
	clean := filepath.Clean(path)
	if clean != devShm && !strings.HasPrefix(clean, devShm+"/") {
		return true
	}
	stat, err := disk.Usage(devShm)
	if err != nil {
		return true
	}
	return stat.Free >= size
}
