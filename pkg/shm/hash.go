package shm

const (
	fnvOffset64 = uint64(14695981039346656037)
	fnvPrime64  = uint64(1099511628211)
)

// HashIdentifier returns the 64-bit FNV-1a hash of id's bytes up to the first
// NUL. It is case-sensitive and identical in every process. The hash only
// pre-filters lookups; matches are always confirmed byte for byte.
func HashIdentifier(id string) uint64 {
	hash := fnvOffset64
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c == 0 {
			break
		}
		hash ^= uint64(c)
		hash *= fnvPrime64
	}
	return hash
}

// hashFunc is swapped by tests to force collisions.
var hashFunc = HashIdentifier
