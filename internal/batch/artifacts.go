package batch

import "os"

// FileArtifacts checks the filesystem for regular files.
type FileArtifacts struct{}

// Exists reports whether path names an existing regular file.
func (FileArtifacts) Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
