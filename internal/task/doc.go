// Package task owns batch lifecycle for the daemon: it admits at most one
// batch at a time, resets the event history for each new batch, and exposes
// cancel, status and subscription to the HTTP layer.
package task
