// Package phase runs blocking operations on bounded workers and replays their
// progress callbacks, in order, on the goroutine that submitted them.
package phase
