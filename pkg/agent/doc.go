// Package agent runs one recording module.
//
// An Agent owns the module's recording state machine. It subscribes to its
// own command topic, answers every command with exactly one response, and
// publishes status updates on transitions and as a periodic heartbeat.
//
// # Event Loop
//
// All state lives on a single goroutine started by Run. Inbound commands,
// duration timer expiries, capture faults, heartbeat ticks and bus
// reconnects are all events on that loop, so handlers never race each
// other. A config command that arrives just as a timed recording ends
// is simply handled before or after the stop, never during it.
//
// # States
//
//	idle --start--> recording --stop / duration elapsed--> idle
//	any --capture fault--> error --(immediately)--> idle
//
// The agent never reports "disconnected"; that state is assigned by the
// controller when heartbeats stop arriving.
//
// # Duplicates
//
// The bus delivers at least once. Responses are cached by request id, and a
// redelivered command gets the cached response again instead of being
// executed twice.
package agent
