// Package connection keeps a broker session alive.
//
// A Supervisor owns a single ConnectFunc. When the underlying transport
// reports that the session dropped, the supervisor retries ConnectFunc with
// exponential backoff until it succeeds or the supervisor is closed.
//
// # Backoff
//
// Delays start at one second and double after each failure up to a ceiling
// of thirty seconds. A random jitter of up to 20% of the base delay is added
// so that a fleet of modules restarted together does not hit the broker in
// lockstep:
//
//	delay = base + random(0, base * 0.2)
//
// The sequence resets after every successful connect.
package connection
