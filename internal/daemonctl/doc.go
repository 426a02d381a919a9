// Package daemonctl starts and stops a background lrcforge daemon on behalf
// of the CLI, using the HTTP API for readiness and the pid file for signals.
package daemonctl
