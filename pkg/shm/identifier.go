package shm

import (
	"bytes"
	"strings"
)

// Identifier is the fixed-capacity identifier buffer of an entry. It always
// holds a NUL terminator, so at most IdentifierCapacity-1 bytes are stored and
// longer identifiers are silently truncated.
type Identifier [IdentifierCapacity]byte

// Set stores s truncated to capacity, clears the remainder and reports whether
// s was cut. A NUL inside s ends the stored identifier.
func (b *Identifier) Set(s string) (truncated bool) {
	t := Truncate(s)
	n := copy(b[:], t)
	clear(b[n:])
	return len(t) < len(s)
}

// String returns the stored identifier up to the terminator.
func (b *Identifier) String() string {
	return string(b[:b.length()])
}

// Empty reports whether the buffer starts with the terminator.
func (b *Identifier) Empty() bool {
	return b[0] == 0
}

// Equal compares the stored identifier with s the way a bounded C string
// comparison would: s is considered up to its first NUL and capacity-1 bytes.
func (b *Identifier) Equal(s string) bool {
	s = Truncate(s)
	stored := b[:b.length()]
	return len(stored) == len(s) && string(stored) == s
}

func (b *Identifier) length() int {
	if i := bytes.IndexByte(b[:], 0); i >= 0 {
		return i
	}
	return IdentifierCapacity
}

// Truncate returns s as it would be stored in an Identifier.
func Truncate(s string) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	if len(s) > IdentifierCapacity-1 {
		s = s[:IdentifierCapacity-1]
	}
	return s
}
