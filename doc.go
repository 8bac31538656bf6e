// Package cohort launches a group of worker processes that all run the same
// entry point and supervises them until the group either joins cleanly or one
// worker fails. When a worker fails the remaining workers are terminated and
// the failure is reported as a single typed error describing which worker
// broke first and how.
//
// Worker entry points are ordinary Go functions registered with Register and
// dispatched by re-executing the current binary, so Init must run at the very
// start of main: in the parent it is a no-op, in a spawned worker it runs the
// entry point and never returns. Workers that are foreign commands rather
// than registered functions are launched with StartCommand and supervised the
// same way, except that failures can only be classified from their exit
// status.
//
// Cooperative shutdown is delivered as an interrupt: a worker entry point
// receives a context that is cancelled on SIGINT, and a worker that returns
// context.Canceled after an interrupt counts as stopped, not failed. Group
// teardown after a failure uses a single termination request per survivor
// with no forced-kill escalation.
//
// Parent-death binding and symbolic signal names are only available on
// Linux and other Unix platforms. On Windows the supervisor still tracks
// exits and exit codes, but workers cannot be tied to the parent's lifetime
// and termination falls back to killing the direct child.
package cohort
