// Package command runs the external audio tools (ffmpeg, ffprobe,
// whisper-cli) with line-streamed output. Each child gets its own process
// group so cancellation terminates helpers the tool spawned as well.
package command
