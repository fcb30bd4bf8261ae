package shm

import (
	"errors"
	"fmt"
	"os"

	internalshm "github.com/srediag/appvolume-shm/internal/shm"
)

var (
	// ErrEmptyIdentifier is returned for an identifier that stores as "".
	ErrEmptyIdentifier = errors.New("empty application identifier")
	// ErrNotFound is returned when no slot holds the identifier.
	ErrNotFound = errors.New("application identifier not tracked")
	// ErrTableExhausted is returned when no slot can be allocated. Eviction makes
	// it unreachable with a non-empty table.
	ErrTableExhausted = errors.New("no free or evictable slot")
)

// Clock and writer identity, swapped by tests.
var (
	now            = internalshm.MonotonicNanos
	writerIdentity = func() (pid, uid uint64) {
		return uint64(os.Getpid()), uint64(os.Getuid())
	}
)

// Volume is a copy of one occupied entry.
type Volume struct {
	Identifier string
	Gain       float32
	Muted      bool
	LastUpdate uint64
}

// Result describes the slot an Update wrote.
type Result struct {
	Slot int
	// Created is set when the identifier had no slot before the call.
	Created bool
	// Evicted names the identifier whose slot was reassigned, if any.
	Evicted string
	// Generation is the value the call published.
	Generation uint64
}

// Initialize performs the one-time initialization race: a single compare and
// swap of the version from 0. Only the winner resets the counters and returns
// true; every other caller leaves the state untouched.
func Initialize(s *State) bool {
	if !s.Header.casVersion(0, Version) {
		return false
	}
	s.Header.setEntryCount(0)
	s.Header.setGeneration(1)
	s.Header.setWriter(writerIdentity())
	return true
}

// Reset zeroes the whole region and runs Initialize again.
func Reset(s *State) {
	*s = State{}
	Initialize(s)
}

// FindSlot returns the slot holding id, or -1. The hash rejects most slots;
// a hash match is confirmed by comparing the identifier bytes.
func FindSlot(s *State, id string) int {
	id = Truncate(id)
	if id == "" {
		return -1
	}
	return find(s, hashFunc(id), id)
}

func find(s *State, hash uint64, id string) int {
	for i := range s.Entries {
		e := &s.Entries[i]
		if e.Hash == hash && e.ID.Equal(id) {
			return i
		}
	}
	return -1
}

// allocate returns the first free slot, counting it as occupied. On a full
// table it returns the least recently updated slot for the caller to overwrite.
func allocate(s *State) (slot int, evicted bool) {
	for i := range s.Entries {
		if s.Entries[i].Empty() {
			s.Header.incEntryCount()
			return i, false
		}
	}
	if len(s.Entries) == 0 {
		return -1, false
	}
	oldest := 0
	for i := 1; i < len(s.Entries); i++ {
		if s.Entries[i].LastUpdate < s.Entries[oldest].LastUpdate {
			oldest = i
		}
	}
	return oldest, true
}

// Update writes gain and mute for id, reusing its slot or allocating one
// (possibly evicting another identifier). The writer identity is stored next,
// and the generation is bumped last so the preceding writes are published
// with it.
func Update(s *State, id string, gain float32, mute bool) (Result, error) {
	id = Truncate(id)
	if id == "" {
		return Result{}, ErrEmptyIdentifier
	}
	hash := hashFunc(id)

	res := Result{Slot: find(s, hash, id)}
	if res.Slot < 0 {
		slot, evicted := allocate(s)
		if slot < 0 {
			return Result{}, ErrTableExhausted
		}
		res.Slot, res.Created = slot, true
		if evicted {
			res.Evicted = s.Entries[slot].ID.String()
		}
	}

	e := &s.Entries[res.Slot]
	e.Hash = hash
	e.ID.Set(id)
	e.Gain = gain
	e.Flags = 0
	if mute {
		e.Flags = FlagMute
	}
	e.LastUpdate = now()

	s.Header.setWriter(writerIdentity())
	res.Generation = s.Header.bumpGeneration()
	return res, nil
}

// Remove clears the slot holding id. The entry count decrement and the
// generation bump are separate atomic operations.
func Remove(s *State, id string) error {
	id = Truncate(id)
	if id == "" {
		return ErrEmptyIdentifier
	}
	slot := find(s, hashFunc(id), id)
	if slot < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.Entries[slot].clear()
	s.Header.decEntryCount()
	s.Header.bumpGeneration()
	return nil
}

// Lookup returns a copy of the entry for id. The copy is not synchronized
// with writers and may be torn.
func Lookup(s *State, id string) (Volume, bool) {
	slot := FindSlot(s, id)
	if slot < 0 {
		return Volume{}, false
	}
	return s.Entries[slot].volume(), true
}

// Snapshot copies every occupied entry in slot order. Like Lookup it takes no
// lock; see ConsistentSnapshot for a generation-checked copy.
func Snapshot(s *State) []Volume {
	out := make([]Volume, 0, MaxEntries)
	for i := range s.Entries {
		e := &s.Entries[i]
		if e.Empty() {
			continue
		}
		out = append(out, e.volume())
	}
	return out
}

func (e *Entry) volume() Volume {
	return Volume{
		Identifier: e.ID.String(),
		Gain:       e.Gain,
		Muted:      e.Muted(),
		LastUpdate: e.LastUpdate,
	}
}
