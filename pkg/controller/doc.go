// Package controller coordinates a fleet of recording modules.
//
// A Controller watches every module's status topic, keeps a Registry of the
// modules it has heard from, and sends commands through a Dispatcher that
// correlates each Response by request id. Operator calls such as StartAll
// fan a command out to every live module and collect one Outcome per
// module.
//
// # Liveness
//
// Modules register implicitly with their first Status. A module whose last
// Status is older than the stale threshold is reported as disconnected
// until it is heard from again.
//
// # Outcomes
//
// Command results are data, never panics or blocking errors:
//
//	OutcomeOK       the module accepted the command
//	OutcomeError    the module rejected it, or it could not be sent
//	OutcomeTimeout  no response before the deadline
//
// A timeout says nothing about whether the module executed the command.
package controller
