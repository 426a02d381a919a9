// Package daemonrun is the runtime behind `lrcforge serve`: it builds the
// logger, opens the history ledger, wires the batch engine and merger into
// the daemon, and waits for a shutdown signal.
package daemonrun
