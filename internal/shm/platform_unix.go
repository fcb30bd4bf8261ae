//go:build linux || darwin

package shm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sys/unix"
)

// MapRegion opens or creates the backing file and maps it read-write and shared.
// On failure nothing stays open or mapped.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("%w: invalid size %d", ErrMap, opts.Size)
	}
	if opts.Create {
		if err := EnsureDir(filepath.Dir(opts.Path), opts.DirMode); err != nil {
			return nil, err
		}
	}

	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(opts.Path, flags, uint32(opts.FileMode.Perm()))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v%s", ErrOpen, opts.Path, err, remediation(err))
	}

	if err := sizeFile(fd, opts); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: %s: %v", ErrMap, opts.Path, err)
	}

	region := &MappedRegion{
		Addr: addr,
		Path: opts.Path,
		fd:   fd,
	}
	runtime.SetFinalizer(region, func(r *MappedRegion) { _ = r.release() })
	return region, nil
}

// UnmapRegion unmaps the region and closes its handle. Calling it again is a no-op.
func UnmapRegion(_ context.Context, region *MappedRegion) error {
	if region == nil {
		return nil
	}
	runtime.SetFinalizer(region, nil)
	return region.release()
}

func (r *MappedRegion) release() error {
	var errs []error
	if r.Addr != nil {
		if err := unix.Munmap(r.Addr); err != nil {
			errs = append(errs, fmt.Errorf("munmap %s: %w", r.Path, err))
		}
		r.Addr = nil
	}
	if r.fd >= 0 {
		if err := unix.Close(r.fd); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", r.Path, err))
		}
		r.fd = -1
	}
	return errors.Join(errs...)
}

// EnsureDir checks that dir is writable and searchable, creating it with mode
// when it does not exist. A chmod failure after creation is reported.
func EnsureDir(dir string, mode os.FileMode) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrDirectory, dir)
		}
		if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
			return fmt.Errorf("%w: %s exists but is not writable (%v). "+
				"Re-run the driver installation to grant group write access", ErrDirectory, dir, err)
		}
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: stat %s: %v", ErrDirectory, dir, err)
	}

	if err := os.MkdirAll(dir, mode); err != nil {
		return fmt.Errorf("%w: create %s: %v. "+
			"Re-run the driver installation to create it with the right permissions", ErrDirectory, dir, err)
	}
	// MkdirAll is subject to the umask.
	if err := os.Chmod(dir, mode); err != nil {
		return fmt.Errorf("%w: chmod %s to %#o: %v", ErrDirectory, dir, mode.Perm(), err)
	}
	return nil
}

func sizeFile(fd int, opts MapOptions) error {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrResize, opts.Path, err)
	}
	if !opts.Create {
		if st.Size < int64(opts.Size) {
			return fmt.Errorf("%w: %s has %d bytes, need %d", ErrTooSmall, opts.Path, st.Size, opts.Size)
		}
		return nil
	}
	if st.Size < int64(opts.Size) && !canCreate(uint64(int64(opts.Size)-st.Size), opts.Path) {
		return fmt.Errorf("%w: path %s, size %d", ErrNoSpace, opts.Path, opts.Size)
	}
	if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
		return fmt.Errorf("%w: %s to %d bytes: %v", ErrResize, opts.Path, opts.Size, err)
	}
	return nil
}

func remediation(err error) string {
	if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
		return ". Check the file permissions or re-run the driver installation"
	}
	return ""
}

// MonotonicNanos reads CLOCK_MONOTONIC, which every process on the host shares.
func MonotonicNanos() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Nano())
}
