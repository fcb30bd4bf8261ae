package shm

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"
)

type TableTestSuite struct {
	suite.Suite

	state *State
	clock uint64

	savedNow      func() uint64
	savedIdentity func() (uint64, uint64)
	savedHash     func(string) uint64
}

func (s *TableTestSuite) SetupTest() {
	s.savedNow, s.savedIdentity, s.savedHash = now, writerIdentity, hashFunc
	s.clock = 1000
	now = func() uint64 {
		s.clock++
		return s.clock
	}
	writerIdentity = func() (uint64, uint64) { return 4242, 501 }

	s.state = new(State)
	s.True(Initialize(s.state))
}

func (s *TableTestSuite) TearDownTest() {
	now, writerIdentity, hashFunc = s.savedNow, s.savedIdentity, s.savedHash
}

func (s *TableTestSuite) TestInitializeOnce() {
	h := &s.state.Header
	s.Equal(Version, h.Version())
	s.Equal(uint32(0), h.EntryCount())
	s.Equal(uint64(1), h.Generation())
	s.Equal(uint64(4242), h.LastWriterPID())
	s.Equal(uint64(501), h.LastWriterUID())

	_, err := Update(s.state, "com.app.one", 0.5, false)
	s.Require().NoError(err)

	// a second initializer loses and leaves the state alone
	s.False(Initialize(s.state))
	s.Equal(uint32(1), h.EntryCount())
	s.Equal(uint64(2), h.Generation())
}

func (s *TableTestSuite) TestInitializeRace() {
	st := new(State)
	var (
		wins  atomic.Int32
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if Initialize(st) {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	s.Equal(int32(1), wins.Load())
	s.Equal(Version, st.Header.Version())
	s.Equal(uint64(1), st.Header.Generation())
}

func (s *TableTestSuite) TestUpdateAndLookup() {
	res, err := Update(s.state, "com.app.one", 0.5, false)
	s.Require().NoError(err)
	s.Equal(0, res.Slot)
	s.True(res.Created)
	s.Empty(res.Evicted)
	s.Equal(uint64(2), res.Generation)

	v, ok := Lookup(s.state, "com.app.one")
	s.Require().True(ok)
	s.Equal("com.app.one", v.Identifier)
	s.Equal(float32(0.5), v.Gain)
	s.False(v.Muted)
	s.Equal(uint64(1001), v.LastUpdate)

	res, err = Update(s.state, "com.app.two", 1.25, true)
	s.Require().NoError(err)
	s.Equal(1, res.Slot)
	s.Equal(uint64(3), res.Generation)

	v, ok = Lookup(s.state, "com.app.two")
	s.Require().True(ok)
	s.True(v.Muted)
	s.Equal(FlagMute, s.state.Entries[1].Flags)

	s.Equal(uint32(2), s.state.Header.EntryCount())
	s.Equal(-1, FindSlot(s.state, "com.app.three"))
	_, ok = Lookup(s.state, "com.app.three")
	s.False(ok)
}

func (s *TableTestSuite) TestUpdateThenRewrite() {
	h := &s.state.Header
	gen := h.Generation()

	_, err := Update(s.state, "com.app.one", 0.5, false)
	s.Require().NoError(err)
	s.Equal(uint32(1), h.EntryCount())
	s.Equal(gen+1, h.Generation())
	v, ok := Lookup(s.state, "com.app.one")
	s.Require().True(ok)
	s.Equal(float32(0.5), v.Gain)
	s.False(v.Muted)

	_, err = Update(s.state, "com.app.one", 1.0, true)
	s.Require().NoError(err)
	s.Equal(uint32(1), h.EntryCount())
	s.Equal(gen+2, h.Generation())
	v, ok = Lookup(s.state, "com.app.one")
	s.Require().True(ok)
	s.Equal(float32(1.0), v.Gain)
	s.True(v.Muted)
}

func (s *TableTestSuite) TestUpdateIsRepeatable() {
	for i := 0; i < 5; i++ {
		res, err := Update(s.state, "com.app.one", 0.75, true)
		s.Require().NoError(err)
		s.Equal(0, res.Slot)
		s.Equal(i == 0, res.Created)
		s.Equal(uint64(2+i), res.Generation)
	}
	s.Equal(uint32(1), s.state.Header.EntryCount())
	s.Len(Snapshot(s.state), 1)
}

func (s *TableTestSuite) TestIdentifiersAreCaseSensitive() {
	_, err := Update(s.state, "com.App.one", 0.2, false)
	s.Require().NoError(err)
	_, err = Update(s.state, "com.app.one", 0.8, false)
	s.Require().NoError(err)
	s.Equal(0, FindSlot(s.state, "com.App.one"))
	s.Equal(1, FindSlot(s.state, "com.app.one"))
}

func (s *TableTestSuite) TestEmptyIdentifier() {
	for _, id := range []string{"", "\x00com.app"} {
		_, err := Update(s.state, id, 0.5, false)
		s.ErrorIs(err, ErrEmptyIdentifier)
		s.ErrorIs(Remove(s.state, id), ErrEmptyIdentifier)
		s.Equal(-1, FindSlot(s.state, id))
	}
	s.Equal(uint64(1), s.state.Header.Generation())
}

func (s *TableTestSuite) TestLongIdentifierIsTruncated() {
	long := strings.Repeat("x", 300)
	res, err := Update(s.state, long, 0.3, false)
	s.Require().NoError(err)

	v, ok := Lookup(s.state, long)
	s.Require().True(ok)
	s.Len(v.Identifier, IdentifierCapacity-1)

	// the same truncated form resolves to the same slot
	again, err := Update(s.state, long[:IdentifierCapacity-1]+"tail", 0.4, false)
	s.Require().NoError(err)
	s.Equal(res.Slot, again.Slot)
	s.False(again.Created)
}

func (s *TableTestSuite) TestHashCollision() {
	hashFunc = func(string) uint64 { return 42 }

	_, err := Update(s.state, "com.app.one", 0.1, false)
	s.Require().NoError(err)
	_, err = Update(s.state, "com.app.two", 0.2, true)
	s.Require().NoError(err)

	one, ok := Lookup(s.state, "com.app.one")
	s.Require().True(ok)
	two, ok := Lookup(s.state, "com.app.two")
	s.Require().True(ok)
	s.Equal(float32(0.1), one.Gain)
	s.Equal(float32(0.2), two.Gain)
	s.True(two.Muted)
	s.Equal(-1, FindSlot(s.state, "com.app.three"))
}

func (s *TableTestSuite) TestRemove() {
	_, err := Update(s.state, "com.app.one", 0.5, true)
	s.Require().NoError(err)
	_, err = Update(s.state, "com.app.two", 0.5, false)
	s.Require().NoError(err)
	gen := s.state.Header.Generation()

	s.Require().NoError(Remove(s.state, "com.app.one"))
	s.Equal(gen+1, s.state.Header.Generation())
	s.Equal(uint32(1), s.state.Header.EntryCount())
	s.Equal(-1, FindSlot(s.state, "com.app.one"))

	e := &s.state.Entries[0]
	s.True(e.Empty())
	s.Equal(uint64(0), e.Hash)
	s.Equal(UnityGain, e.Gain)
	s.Equal(uint32(0), e.Flags)

	// the freed slot is reused first
	res, err := Update(s.state, "com.app.three", 1, false)
	s.Require().NoError(err)
	s.Equal(0, res.Slot)
}

func (s *TableTestSuite) TestRemoveAbsent() {
	_, err := Update(s.state, "com.app.one", 0.5, false)
	s.Require().NoError(err)
	gen := s.state.Header.Generation()

	err = Remove(s.state, "com.app.missing")
	s.ErrorIs(err, ErrNotFound)
	s.Contains(err.Error(), "com.app.missing")
	s.Equal(gen, s.state.Header.Generation())
	s.Equal(uint32(1), s.state.Header.EntryCount())
}

func (s *TableTestSuite) TestEvictsLeastRecentlyUpdated() {
	for i := 0; i < MaxEntries; i++ {
		res, err := Update(s.state, fmt.Sprintf("com.app.%03d", i), 0.5, false)
		s.Require().NoError(err)
		s.Equal(i, res.Slot)
	}
	s.Equal(uint32(MaxEntries), s.state.Header.EntryCount())

	// refresh the oldest so the second one becomes the victim
	_, err := Update(s.state, "com.app.000", 0.6, false)
	s.Require().NoError(err)

	res, err := Update(s.state, "com.app.new", 0.9, true)
	s.Require().NoError(err)
	s.Equal(1, res.Slot)
	s.True(res.Created)
	s.Equal("com.app.001", res.Evicted)
	s.Equal(uint32(MaxEntries), s.state.Header.EntryCount())

	s.Equal(-1, FindSlot(s.state, "com.app.001"))
	v, ok := Lookup(s.state, "com.app.new")
	s.Require().True(ok)
	s.True(v.Muted)
	s.Len(Snapshot(s.state), MaxEntries)
}

func (s *TableTestSuite) TestReset() {
	for i := 0; i < 3; i++ {
		_, err := Update(s.state, fmt.Sprintf("com.app.%d", i), 0.5, true)
		s.Require().NoError(err)
	}
	writerIdentity = func() (uint64, uint64) { return 7, 8 }

	Reset(s.state)
	h := &s.state.Header
	s.Equal(Version, h.Version())
	s.Equal(uint32(0), h.EntryCount())
	s.Equal(uint64(1), h.Generation())
	s.Equal(uint64(7), h.LastWriterPID())
	s.Empty(Snapshot(s.state))
	for i := range s.state.Entries {
		s.Require().Equal(Entry{}, s.state.Entries[i])
	}
}

func (s *TableTestSuite) TestWriterIdentity() {
	writerIdentity = func() (uint64, uint64) { return 99, 0 }
	_, err := Update(s.state, "com.app.one", 0.5, false)
	s.Require().NoError(err)
	s.Equal(uint64(99), s.state.Header.LastWriterPID())
	s.Equal(uint64(0), s.state.Header.LastWriterUID())
}

func (s *TableTestSuite) TestSnapshotSlotOrder() {
	for _, id := range []string{"c", "a", "b"} {
		_, err := Update(s.state, id, 1, false)
		s.Require().NoError(err)
	}
	s.Require().NoError(Remove(s.state, "a"))

	snap := Snapshot(s.state)
	s.Require().Len(snap, 2)
	s.Equal("c", snap[0].Identifier)
	s.Equal("b", snap[1].Identifier)
}

func (s *TableTestSuite) TestTornSlotIsSkipped() {
	_, err := Update(s.state, "com.app.one", 0.5, false)
	s.Require().NoError(err)
	// a writer interrupted after the hash store
	s.state.Entries[1].Hash = 77
	s.Len(Snapshot(s.state), 1)

	res, err := Update(s.state, "com.app.two", 0.5, false)
	s.Require().NoError(err)
	s.Equal(1, res.Slot)
}

func TestTableTestSuite(t *testing.T) {
	suite.Run(t, new(TableTestSuite))
}
