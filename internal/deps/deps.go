package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"lrcforge/internal/config"
	"lrcforge/internal/media/ffprobe"
)

// Requirement defines an external dependency lrcforge relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists the binaries the pipeline shells out to.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Transcription.FFmpegBinary,
			Description: "Audio extraction, MP3 encoding and merging",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobe.BinaryFor(cfg.Transcription.FFmpegBinary),
			Description: "Source audio inspection",
		},
		{
			Name:        "whisper.cpp",
			Command:     cfg.Transcription.WhisperBinary,
			Description: "Speech recognition for lyric transcription",
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		if err := unix.Access(resolved, unix.X_OK); err != nil {
			status.Detail = fmt.Sprintf("binary %q not executable: %v", resolved, err)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckModel reports whether the configured whisper model file is present.
func CheckModel(cfg *config.Config) Status {
	path := cfg.ModelPath()
	status := Status{
		Name:        "Whisper model",
		Command:     path,
		Description: fmt.Sprintf("ggml weights for %s", cfg.Transcription.Model),
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		status.Detail = fmt.Sprintf("model file missing: %v", err)
	case info.IsDir():
		status.Detail = "model path is a directory"
	default:
		status.Available = true
	}
	return status
}

// CheckAll runs every dependency check for cfg.
func CheckAll(cfg *config.Config) []Status {
	results := CheckBinaries(Requirements(cfg))
	return append(results, CheckModel(cfg))
}

// Healthy reports whether every required dependency is available.
func Healthy(statuses []Status) bool {
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			return false
		}
	}
	return true
}
