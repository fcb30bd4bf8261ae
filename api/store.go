// Package api defines public API contracts for appvolume-shm.
package api

import "context"

// VolumeStore is the per-application volume and mute table as seen by one
// process. Identifiers are case-sensitive; an empty identifier is rejected.
type VolumeStore interface {
	// SetVolume stores a linear gain for id and keeps its mute flag.
	SetVolume(id string, gain float32) error
	// Volume returns the gain of id, unity gain with an error when untracked.
	Volume(id string) (float32, error)
	// SetMute stores the mute flag of id and keeps its gain.
	SetMute(id string, mute bool) error
	// IsMuted reports the mute flag of id, false when untracked.
	IsMuted(id string) bool
	// Remove stops tracking id.
	Remove(id string) error
	// Applications lists the tracked identifiers.
	Applications() []string
}

// Lifecycle maps and releases the shared state.
type Lifecycle interface {
	Initialize(ctx context.Context) error
	Shutdown() error
}
