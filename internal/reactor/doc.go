// Package reactor owns the single-threaded event loop shared by both binaries.
//
// Ownership boundary:
// - one dispatcher goroutine that runs every callback in order
// - socket and console readers that only copy input and post it
// - one-shot timers whose callbacks are delivered onto the loop
//
// State machines driven by a Loop never see two callbacks at once, so they
// keep their state without locks. Callbacks must return promptly and must
// not call Post or Do themselves.
package reactor
