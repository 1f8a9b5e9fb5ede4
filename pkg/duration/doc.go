// Package duration arms deadlines for timed recordings.
//
// A start command may carry a duration. The module arms one timer per
// recording id; when it fires, the expiry callback runs and the module
// treats it exactly like a stop command. An explicit stop cancels the timer
// without running the callback.
//
// # Replacement
//
// Arming a timer for a recording id that already has one replaces it. There
// is no stacking.
//
// # Stale Expiry
//
// A timer can fire concurrently with a Cancel. Callers must therefore check
// that the recording id passed to the callback is still the active one
// before acting on it.
package duration
