// Package config loads, normalizes, validates, and persists lrcforge settings.
//
// Settings live in a TOML file (default ~/.config/lrcforge/config.toml) split
// into sections for library paths, the HTTP server, transcription, ID3 tags, the
// batch engine, and logging. Load applies defaults, expands ~ paths, honours
// environment overrides, and rejects unusable values with errors that name the
// offending key. Live wraps a loaded config for the daemon so API edits and
// on-disk edits (via Watch) replace it atomically.
package config
