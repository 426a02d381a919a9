// Package ffprobe inspects source audio through ffprobe's JSON output.
package ffprobe
