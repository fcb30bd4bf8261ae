// Package shm implements the shared-memory store of per-application volume and
// mute state used by the audio daemon and user applications.
//
// The store is one fixed-size file mapped by every cooperating process. Its
// layout (a 64-byte header followed by 128 fixed slots) is an ABI: see
// layout.go. An Accessor owns one mapping and runs the first-writer-wins
// initialization when it maps; the table functions (Update, Remove, Lookup,
// Snapshot) operate on the mapped State and carry no cross-process lock.
//
// Only the header fields are atomic. Update and Remove bump the generation
// after their other writes, so a reader comparing the generation before and
// after a copy can tell whether it overlapped a write (ConsistentSnapshot).
// Plain Lookup and Snapshot may observe a torn entry; the state is soft
// control-plane data and this is accepted.
//
// Example usage:
//
//	acc := shm.NewAccessor()
//	defer acc.Close()
//	if err := acc.MapFor(ctx, uint32(os.Getuid()), true); err != nil {
//	  return err
//	}
//	if _, err := shm.Update(acc.State(), "com.app.one", 0.5, false); err != nil {
//	  return err
//	}
//	v, ok := shm.Lookup(acc.State(), "com.app.one")
package shm
