// Package daemon coordinates the long-running lrcforge process.
//
// It takes a flock-based lock so two daemons never share one state
// directory, owns the HTTP API server, and frames batch and merge events as
// Server-Sent Events. Batch orchestration itself lives in the task and batch
// packages; the daemon only adapts it to HTTP and manages startup and
// shutdown.
package daemon
