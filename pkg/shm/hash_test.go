package shm

import (
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashIdentifier(t *testing.T) {
	assert.Equal(t, uint64(0xcbf29ce484222325), HashIdentifier(""))
	assert.Equal(t, uint64(0xaf63dc4c8601ec8c), HashIdentifier("a"))
	assert.Equal(t, uint64(0x85944171f73967e8), HashIdentifier("foobar"))

	for _, id := range []string{"com.app.one", "org.mozilla.firefox", "x"} {
		h := fnv.New64a()
		_, _ = h.Write([]byte(id))
		assert.Equal(t, h.Sum64(), HashIdentifier(id), id)
	}

	assert.NotEqual(t, HashIdentifier("com.App.one"), HashIdentifier("com.app.one"))
	// hashing stops at the terminator, like the stored C string
	assert.Equal(t, HashIdentifier("foobar"), HashIdentifier("foobar\x00tail"))
}
