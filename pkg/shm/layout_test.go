package shm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestLayoutOffsets(t *testing.T) {
	var h Header
	assert.Equal(t, uintptr(0), unsafe.Offsetof(h.version))
	assert.Equal(t, uintptr(4), unsafe.Offsetof(h.entryCount))
	assert.Equal(t, uintptr(8), unsafe.Offsetof(h.generation))
	assert.Equal(t, uintptr(16), unsafe.Offsetof(h.lastWriterPID))
	assert.Equal(t, uintptr(24), unsafe.Offsetof(h.lastWriterUID))
	assert.Equal(t, uintptr(HeaderSize), unsafe.Sizeof(h))

	var e Entry
	assert.Equal(t, uintptr(0), unsafe.Offsetof(e.Hash))
	assert.Equal(t, uintptr(8), unsafe.Offsetof(e.ID))
	assert.Equal(t, uintptr(200), unsafe.Offsetof(e.Gain))
	assert.Equal(t, uintptr(204), unsafe.Offsetof(e.Flags))
	assert.Equal(t, uintptr(208), unsafe.Offsetof(e.LastUpdate))
	assert.Equal(t, uintptr(EntrySize), unsafe.Sizeof(e))
	assert.Zero(t, EntrySize%16)

	var s State
	assert.Equal(t, uintptr(HeaderSize), unsafe.Offsetof(s.Entries))
	assert.Equal(t, uintptr(28736), unsafe.Sizeof(s))
	assert.Equal(t, 28736, StateSize)
}

func TestEntryClear(t *testing.T) {
	var e Entry
	e.Hash = 7
	e.ID.Set("com.app.one")
	e.Gain = 0.25
	e.Flags = FlagMute
	e.LastUpdate = 99
	assert.False(t, e.Empty())
	assert.True(t, e.Muted())

	e.clear()
	assert.True(t, e.Empty())
	assert.Equal(t, uint64(0), e.Hash)
	assert.True(t, e.ID.Empty())
	assert.Equal(t, UnityGain, e.Gain)
	assert.Equal(t, uint32(0), e.Flags)
	assert.Equal(t, uint64(0), e.LastUpdate)
}
