// Package wire defines the JSON message records exchanged between the
// recording controller and its recording modules.
//
// Every payload on the bus is a UTF-8 JSON object. Commands flow from the
// controller to a module, responses and status updates flow back.
//
// # Topics
//
// All traffic for one module lives under a common prefix:
//
//	{base}/{module_id}/command   controller -> module
//	{base}/{module_id}/response  module -> controller, correlated by request_id
//	{base}/{module_id}/status    module -> controller, heartbeats and transitions
//	{base}/{module_id}/data      module -> controller, recording artifacts
//
// The controller subscribes with single-level wildcards, for example
// "rslogger/audio/+/status".
//
// # Correlation
//
// Each Command carries a request_id chosen by the sender. The module echoes it
// in exactly one Response. Request ids are opaque strings; the controller
// uses random UUIDs.
//
// # Optional Fields
//
// Optional values are pointers or omitempty fields. An absent or zero
// "duration" means record until stopped. An absent "config" means keep the current
// configuration. Unknown fields are ignored for forward compatibility.
package wire
