// Package merge concatenates audio files into a single WAV with ffmpeg's
// concat demuxer. One merge job runs at a time, independent of the batch
// pipeline, and reports progress on its own event bus.
package merge
