// Package log captures the control protocol as a stream of events.
//
// Protocol capture is separate from operational logging (slog). It records
// every command, response, status update and data event a process sends or
// receives, plus state transitions and protocol errors, so a session can be
// replayed and inspected after the fact.
//
// # Basic Usage
//
//	// Console during development
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary capture file
//	fl, _ := log.NewFileLogger("/var/log/rsaudio/mic-1.rlog")
//	cfg.ProtocolLogger = fl
//
// Components wrap the Logger in a Recorder, which stamps each event with
// the session id, local role and module id.
//
// # File Format
//
// Capture files are a plain concatenation of CBOR-encoded events with the
// .rlog extension. The rsaudio-log tool views and summarizes them.
package log
