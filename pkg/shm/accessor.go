package shm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/srediag/appvolume-shm/internal/logger"
	internalshm "github.com/srediag/appvolume-shm/internal/shm"
)

// Mapping failures. Errors returned by MapFor wrap one of them.
var (
	ErrDirectory       = internalshm.ErrDirectory
	ErrOpen            = internalshm.ErrOpen
	ErrResize          = internalshm.ErrResize
	ErrMap             = internalshm.ErrMap
	ErrNoSpace         = internalshm.ErrNoSpace
	ErrTooSmall        = internalshm.ErrTooSmall
	ErrUnsupported     = internalshm.ErrUnsupported
	ErrVersionMismatch = errors.New("shared state layout version mismatch")
)

const (
	// DefaultFileName is the backing file shared by every user and the daemon.
	DefaultFileName = "appvolume-global.shm"
	// DefaultDirMode grants the group write and search access.
	DefaultDirMode os.FileMode = 0o775
	// DefaultFileMode lets the group map the file read-write.
	DefaultFileMode os.FileMode = 0o664

	darwinDir      = "/Library/Application Support/Micmute"
	darwinFileName = "micmute-volume-global.shm"
	unixDir        = "/dev/shm/appvolume"

	noIdentity = math.MaxUint32
)

// DefaultPath returns the well-known backing file for this platform. It does
// not depend on the caller's identity: the privileged daemon and every user
// application rendezvous on the same file.
func DefaultPath() string {
	if runtime.GOOS == "darwin" {
		return filepath.Join(darwinDir, darwinFileName)
	}
	return filepath.Join(unixDir, DefaultFileName)
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithPath overrides the backing file.
func WithPath(path string) Option {
	return func(a *Accessor) { a.path = path }
}

// WithDirMode sets the mode of a backing directory created by MapFor.
func WithDirMode(mode os.FileMode) Option {
	return func(a *Accessor) { a.dirMode = mode }
}

// WithFileMode sets the mode of a backing file created by MapFor.
func WithFileMode(mode os.FileMode) Option {
	return func(a *Accessor) { a.fileMode = mode }
}

// WithStrictVersion makes MapFor fail on a file initialized with another
// layout version instead of only reporting it.
func WithStrictVersion(strict bool) Option {
	return func(a *Accessor) { a.strict = strict }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(a *Accessor) { a.log = l }
}

// Accessor exclusively owns one mapping of the backing file. A State returned
// by it is valid until the next MapFor, Unmap or Close. An Accessor is not
// safe for concurrent use; callers serialize access.
type Accessor struct {
	path     string
	dirMode  os.FileMode
	fileMode os.FileMode
	strict   bool
	log      *logger.Logger

	region      *internalshm.MappedRegion
	state       *State
	identity    uint32
	initialized bool
	mismatch    uint32
}

// NewAccessor returns an unmapped accessor.
func NewAccessor(opts ...Option) *Accessor {
	a := &Accessor{
		path:     DefaultPath(),
		dirMode:  DefaultDirMode,
		fileMode: DefaultFileMode,
		log:      logger.New("shm", os.Stderr),
		identity: noIdentity,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MapFor maps the backing file on behalf of identity. It returns immediately
// when already mapped for the same identity and remaps for a different one.
// With create set the directory and file are created when missing and the
// file is sized to StateSize. Every successful map runs the initialization
// race. On error the accessor is left unmapped.
func (a *Accessor) MapFor(ctx context.Context, identity uint32, create bool) error {
	if a.state != nil && a.identity == identity {
		return nil
	}
	if err := a.Unmap(); err != nil {
		a.log.Warnf("release previous mapping of %s: %v", a.Path(), err)
	}

	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Path:     a.Path(),
		Size:     StateSize,
		Create:   create,
		DirMode:  modeOr(a.dirMode, DefaultDirMode),
		FileMode: modeOr(a.fileMode, DefaultFileMode),
	})
	if err != nil {
		return err
	}

	state := stateAt(region.Pointer())
	won := Initialize(state)
	var mismatch uint32
	if !won {
		if v := state.Header.Version(); v != Version {
			if a.strict {
				if uerr := internalshm.UnmapRegion(ctx, region); uerr != nil {
					a.log.Warnf("release %s: %v", region.Path, uerr)
				}
				return fmt.Errorf("%w: %s has version %d, this build uses %d",
					ErrVersionMismatch, region.Path, v, Version)
			}
			// There is no migration; the file is used as if it had this layout.
			a.log.Warnf("%s has layout version %d, this build uses %d; reusing it as is",
				region.Path, v, Version)
			mismatch = v
		}
	} else {
		a.log.Infof("initialized shared state %s (version %d)", region.Path, Version)
	}

	a.region = region
	a.state = state
	a.identity = identity
	a.initialized = won
	a.mismatch = mismatch
	return nil
}

// Unmap releases the mapping and closes the backing handle. It is safe to
// call on an unmapped accessor and to call repeatedly.
func (a *Accessor) Unmap() error {
	region := a.region
	a.region = nil
	a.state = nil
	a.identity = noIdentity
	a.initialized = false
	a.mismatch = 0
	return internalshm.UnmapRegion(context.Background(), region)
}

// Close is Unmap.
func (a *Accessor) Close() error {
	return a.Unmap()
}

// Move transfers the mapping and configuration to a new Accessor. a is left
// unmapped and can be mapped again.
func (a *Accessor) Move() *Accessor {
	moved := *a
	a.region = nil
	a.state = nil
	a.identity = noIdentity
	a.initialized = false
	a.mismatch = 0
	return &moved
}

// State returns the mapped state, or nil when unmapped.
func (a *Accessor) State() *State {
	return a.state
}

// Valid reports whether the accessor holds a mapping.
func (a *Accessor) Valid() bool {
	return a.state != nil
}

// Identity returns the identity of the current mapping.
func (a *Accessor) Identity() (uint32, bool) {
	return a.identity, a.state != nil
}

// Initialized reports whether the current mapping won the initialization race.
func (a *Accessor) Initialized() bool {
	return a.initialized
}

// VersionMismatch returns the foreign layout version found when mapping, or 0.
func (a *Accessor) VersionMismatch() uint32 {
	return a.mismatch
}

// Path returns the backing file path.
func (a *Accessor) Path() string {
	if a.path == "" {
		return DefaultPath()
	}
	return a.path
}

func modeOr(mode, def os.FileMode) os.FileMode {
	if mode == 0 {
		return def
	}
	return mode
}
