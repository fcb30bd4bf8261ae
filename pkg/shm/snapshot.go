package shm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrSnapshotContended is returned when the generation kept moving across
// every snapshot attempt.
var ErrSnapshotContended = errors.New("shared state changed during every snapshot attempt")

// errOverlap marks an attempt that overlapped a write. Callers see
// ErrSnapshotContended after retry exhaustion.
var errOverlap = errors.New("snapshot overlapped a concurrent write")

// snapshotCopy is swapped by tests to simulate a concurrent writer.
var snapshotCopy = Snapshot

const (
	snapshotMaxRetries     = 10
	snapshotInitialBackoff = 50 * time.Microsecond
	snapshotMaxBackoff     = time.Millisecond
)

// ConsistentSnapshot copies every occupied entry and returns it with the
// generation it was taken at. The generation is read before and after the
// copy; an attempt that saw it change is discarded and retried with
// exponential backoff. A writer that does not bump the generation, or a torn
// entry written between two identical generations, is not detected.
func ConsistentSnapshot(ctx context.Context, s *State) ([]Volume, uint64, error) {
	var (
		out []Volume
		gen uint64
	)
	op := func() error {
		before := s.Header.Generation()
		vols := snapshotCopy(s)
		if s.Header.Generation() != before {
			return errOverlap
		}
		out, gen = vols, before
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = snapshotInitialBackoff
	b.MaxInterval = snapshotMaxBackoff
	b.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, snapshotMaxRetries), ctx))
	switch {
	case err == nil:
		return out, gen, nil
	case errors.Is(err, errOverlap):
		return nil, 0, ErrSnapshotContended
	default:
		return nil, 0, err
	}
}
