// Package transcribe implements phase one: source audio is inspected with
// ffprobe, downmixed to 16 kHz mono WAV with ffmpeg, and fed to the
// whisper.cpp CLI. Segments are parsed from its stdout as they appear and
// written out as an LRC file.
package transcribe
