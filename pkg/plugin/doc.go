// Package plugin is the per-process facade over the shared application volume
// state: a Driver for the audio engine, control applications and tools, plus a
// Watcher that reports changes made by other processes.
package plugin
