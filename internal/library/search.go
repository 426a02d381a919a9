package library

import (
	"os"
	"path/filepath"
	"strings"

	"lrcforge/internal/config"
)

// MaxSearchResults caps autocomplete suggestions.
const MaxSearchResults = 20

// PathKind filters autocomplete results.
type PathKind string

const (
	KindDirectory PathKind = "directory"
	KindFile      PathKind = "file"
)

// ParsePathKind maps a query value to a kind, defaulting to directories.
func ParsePathKind(value string) PathKind {
	if strings.EqualFold(strings.TrimSpace(value), string(KindFile)) {
		return KindFile
	}
	return KindDirectory
}

var commonDirs = []string{"", "Desktop", "Documents", "Downloads", "Music", "Pictures", "Videos"}

// SearchPaths suggests absolute paths for prefix. An existing directory lists
// its children; otherwise siblings of the prefix whose names start with its
// last element are returned. An empty prefix suggests common home folders.
// Errors yield an empty result.
func SearchPaths(prefix string, kind PathKind) []string {
	results := []string{}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return results
		}
		for _, name := range commonDirs {
			dir := filepath.Join(home, name)
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				results = append(results, dir)
			}
		}
		return results
	}

	expanded, err := config.ExpandPath(prefix)
	if err != nil {
		return results
	}

	dir, namePrefix := expanded, ""
	if info, err := os.Stat(expanded); err != nil || !info.IsDir() {
		dir, namePrefix = filepath.Dir(expanded), filepath.Base(expanded)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return results
	}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), namePrefix) {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		if kind == KindDirectory && !info.IsDir() {
			continue
		}
		if kind == KindFile && !info.Mode().IsRegular() {
			continue
		}
		results = append(results, full)
		if len(results) >= MaxSearchResults {
			break
		}
	}
	return results
}
