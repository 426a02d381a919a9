// Package batch models a batch of audio items and runs it through the two
// processing phases: transcription to an LRC file, then tagging into an MP3.
//
// A Runner processes items strictly in order on a single goroutine. Each phase
// is skipped when its artifact already exists, so re-running a finished batch
// is a no-op that reports every item as successful. A failing item is recorded
// and reported on the event bus and the batch moves on. Cancellation is
// checked between items and never interrupts the item in flight.
package batch
