package shm

import (
	"unsafe"

	internalshm "github.com/srediag/appvolume-shm/internal/shm"
)

// Memory layout constants. The layout is an ABI shared by every process that
// maps the backing file; any change to it must bump Version.
const (
	// Version is written to Header.version by the process that initializes the region.
	Version = uint32(1)

	// MaxEntries is the fixed number of slots in the entry table.
	MaxEntries = 128

	// IdentifierCapacity is the size of an entry's identifier buffer, terminator included.
	IdentifierCapacity = 192

	// HeaderSize is the header footprint, one cache line.
	HeaderSize = 64

	// EntrySize is the footprint of one slot, a multiple of 16.
	EntrySize = 224

	// StateSize is the exact size of the mapped region.
	StateSize = HeaderSize + MaxEntries*EntrySize

	// FlagMute is bit 0 of Entry.Flags.
	FlagMute = uint32(1)

	// UnityGain is the gain of an untouched or cleared slot.
	UnityGain = float32(1.0)
)

// Header sits at offset 0 of the region. Fields are only touched through
// atomic helpers; none of them is composed with the entry table into a
// single transaction.
type Header struct {
	version       uint32   // 0x00: 0 until initialized
	entryCount    uint32   // 0x04: advisory occupied-slot count
	generation    uint64   // 0x08: bumped last on every mutation
	lastWriterPID uint64   // 0x10: diagnostic
	lastWriterUID uint64   // 0x18: diagnostic
	_             [32]byte // 0x20-0x3F: padding to one cache line
}

// Entry is one slot of the table. Entries are plain memory: readers may see a
// torn entry while another process writes it.
type Entry struct {
	Hash       uint64     // 0x00: 0 marks an empty slot
	ID         Identifier // 0x08: NUL-terminated identifier
	Gain       float32    // 0xC8: linear gain, 1.0 is unity
	Flags      uint32     // 0xCC: FlagMute
	LastUpdate uint64     // 0xD0: CLOCK_MONOTONIC nanoseconds of the last write
	_          [8]byte    // 0xD8-0xDF: pad to a 16-byte multiple
}

// State is the whole mapped region.
type State struct {
	Header  Header
	Entries [MaxEntries]Entry
}

// Compile-time layout checks.
var (
	_ [HeaderSize - unsafe.Sizeof(Header{})]byte
	_ [unsafe.Sizeof(Header{}) - HeaderSize]byte
	_ [EntrySize - unsafe.Sizeof(Entry{})]byte
	_ [unsafe.Sizeof(Entry{}) - EntrySize]byte
	_ [StateSize - unsafe.Sizeof(State{})]byte
	_ [unsafe.Sizeof(State{}) - StateSize]byte
	_ [-(EntrySize % 16)]byte
)

// Empty reports whether the slot is free. A cleared slot has both a zero hash
// and an empty identifier; a slot missing either one is treated as free too.
func (e *Entry) Empty() bool {
	return e.Hash == 0 || e.ID.Empty()
}

// Muted reports the mute flag.
func (e *Entry) Muted() bool {
	return e.Flags&FlagMute != 0
}

func (e *Entry) clear() {
	*e = Entry{Gain: UnityGain}
}

// Version returns the layout version, 0 when the region is uninitialized.
func (h *Header) Version() uint32 {
	return internalshm.LoadUint32(unsafe.Pointer(&h.version))
}

// EntryCount returns the advisory number of occupied slots. It may disagree
// with the table under concurrent access.
func (h *Header) EntryCount() uint32 {
	return internalshm.LoadUint32(unsafe.Pointer(&h.entryCount))
}

// Generation returns the change counter.
func (h *Header) Generation() uint64 {
	return internalshm.LoadUint64(unsafe.Pointer(&h.generation))
}

// LastWriterPID returns the process id of the last writer.
func (h *Header) LastWriterPID() uint64 {
	return internalshm.LoadUint64(unsafe.Pointer(&h.lastWriterPID))
}

// LastWriterUID returns the user id of the last writer.
func (h *Header) LastWriterUID() uint64 {
	return internalshm.LoadUint64(unsafe.Pointer(&h.lastWriterUID))
}

func (h *Header) casVersion(old, new uint32) bool {
	return internalshm.CompareAndSwapUint32(unsafe.Pointer(&h.version), old, new)
}

func (h *Header) incEntryCount() {
	internalshm.AddUint32(unsafe.Pointer(&h.entryCount), 1)
}

func (h *Header) decEntryCount() {
	internalshm.AddUint32(unsafe.Pointer(&h.entryCount), ^uint32(0))
}

func (h *Header) setEntryCount(n uint32) {
	internalshm.StoreUint32(unsafe.Pointer(&h.entryCount), n)
}

// bumpGeneration publishes every write made before it.
func (h *Header) bumpGeneration() uint64 {
	return internalshm.AddUint64(unsafe.Pointer(&h.generation), 1)
}

func (h *Header) setGeneration(g uint64) {
	internalshm.StoreUint64(unsafe.Pointer(&h.generation), g)
}

func (h *Header) setWriter(pid, uid uint64) {
	internalshm.StoreUint64(unsafe.Pointer(&h.lastWriterPID), pid)
	internalshm.StoreUint64(unsafe.Pointer(&h.lastWriterUID), uid)
}

// stateAt views a mapped region as a State.
func stateAt(p unsafe.Pointer) *State {
	return (*State)(p)
}
