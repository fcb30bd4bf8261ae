package shm

import (
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Index is a process-local identifier-to-slot map that spares the linear scan
// on repeated lookups. It never lives in the shared region. Other processes
// move identifiers between slots without telling it, so every hint is checked
// against the raw slot and a miss falls back to the scan.
type Index struct {
	slots cmap.ConcurrentMap[string, int]
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{slots: cmap.New[int]()}
}

// Rebuild replaces the index content with the occupied slots of s.
func (x *Index) Rebuild(s *State) {
	x.slots.Clear()
	for i := range s.Entries {
		e := &s.Entries[i]
		if e.Empty() {
			continue
		}
		x.slots.Set(e.ID.String(), i)
	}
}

// Find returns the slot holding id, or -1, and refreshes the hint.
func (x *Index) Find(s *State, id string) int {
	id = Truncate(id)
	if id == "" {
		return -1
	}
	hash := hashFunc(id)
	if slot, ok := x.slots.Get(id); ok && slot >= 0 && slot < len(s.Entries) {
		e := &s.Entries[slot]
		if e.Hash == hash && e.ID.Equal(id) {
			return slot
		}
	}
	slot := find(s, hash, id)
	if slot < 0 {
		x.slots.Remove(id)
	} else {
		x.slots.Set(id, slot)
	}
	return slot
}

// Lookup returns a copy of the entry for id, locating it through the index.
func (x *Index) Lookup(s *State, id string) (Volume, bool) {
	slot := x.Find(s, id)
	if slot < 0 {
		return Volume{}, false
	}
	return s.Entries[slot].volume(), true
}

// Note records the outcome of an Update of id.
func (x *Index) Note(id string, res Result) {
	if res.Evicted != "" {
		x.slots.Remove(res.Evicted)
	}
	x.slots.Set(Truncate(id), res.Slot)
}

// Forget drops the hint for id.
func (x *Index) Forget(id string) {
	x.slots.Remove(Truncate(id))
}

// Clear drops every hint.
func (x *Index) Clear() {
	x.slots.Clear()
}

// Len returns the number of hints.
func (x *Index) Len() int {
	return x.slots.Count()
}
